package seed

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/codejudge/domain"
	"github.com/isdmx/codejudge/store/sqlite"
)

func TestDefault(t *testing.T) {
	problems, err := Default()
	require.NoError(t, err)
	require.Len(t, problems, 3)

	findMax := problems[0]
	assert.Equal(t, "find-maximum-element", findMax.ID)
	assert.Equal(t, "find-maximum-element", findMax.Slug)
	assert.Equal(t, 2000, findMax.TimeLimitMs)
	require.Len(t, findMax.TestCases, 3)
	assert.Equal(t, "find-maximum-element-1", findMax.TestCases[0].ID)
	assert.Equal(t, "9", findMax.TestCases[0].ExpectedOutput)
	assert.True(t, findMax.TestCases[2].IsHidden)
	assert.Len(t, findMax.VisibleTestCases(), 2)
	assert.Contains(t, findMax.DriverFor("javascript").Postfix, "findMax(input)")
	assert.Empty(t, findMax.DriverFor("cpp"))
}

func TestLoad_Drivers(t *testing.T) {
	problems, err := Load(strings.NewReader(`
problems:
  - title: Double It
    drivers:
      JavaScript:
        prefix: "'use strict';\n"
        postfix: "console.log(double(Number(require('fs').readFileSync(0, 'utf8'))));\n"
    test_cases:
      - input: "2"
        output: "4"
`))
	require.NoError(t, err)
	require.Len(t, problems, 1)

	driver := problems[0].DriverFor("javascript")
	assert.Equal(t, "'use strict';\n", driver.Prefix)
	assert.Contains(t, driver.Postfix, "double(")
}

func TestLoad_ExplicitIDs(t *testing.T) {
	problems, err := Load(strings.NewReader(`
problems:
  - id: p-1
    slug: echo
    title: Echo Input
    test_cases:
      - input: "hi"
        output: "hi"
`))
	require.NoError(t, err)
	require.Len(t, problems, 1)
	assert.Equal(t, "p-1", problems[0].ID)
	assert.Equal(t, "echo", problems[0].Slug)
	assert.Equal(t, "p-1-1", problems[0].TestCases[0].ID)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing title", "problems:\n  - test_cases: []\n"},
		{"duplicate slug", "problems:\n  - title: A B\n  - title: a-b\n"},
		{"unknown field", "problems:\n  - title: A\n    timeout: 3\n"},
		{"malformed", "problems: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.yaml))
			require.Error(t, err)
		})
	}
}

func TestLoad_Empty(t *testing.T) {
	problems, err := Load(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, problems)
}

func TestApply_Idempotent(t *testing.T) {
	ctx := context.Background()
	store, err := sqlite.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	problems, err := Default()
	require.NoError(t, err)

	logger := zaptest.NewLogger(t)
	require.NoError(t, Apply(ctx, store, logger, problems))
	require.NoError(t, Apply(ctx, store, logger, problems))

	p, err := store.GetProblemWithTestCases(ctx, "find-maximum-element")
	require.NoError(t, err)
	assert.Equal(t, "Find Maximum Element", p.Title)
	assert.Len(t, p.TestCases, 3)
	assert.Equal(t, problems[0].Drivers, p.Drivers)

	// Problems without drivers read back without any.
	other, err := store.GetProblemWithTestCases(ctx, "reverse-an-array")
	require.NoError(t, err)
	assert.Empty(t, other.Drivers)
}

type failingWriter struct{}

func (failingWriter) UpsertProblem(context.Context, *domain.Problem) error {
	return domain.ErrStoreUnavailable
}

func TestApply_StopsOnError(t *testing.T) {
	problems, err := Default()
	require.NoError(t, err)

	err = Apply(context.Background(), failingWriter{}, zaptest.NewLogger(t), problems)
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
}
