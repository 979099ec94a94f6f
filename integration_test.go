//go:build unix

package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/codejudge/api"
	"github.com/isdmx/codejudge/config"
	"github.com/isdmx/codejudge/domain"
	"github.com/isdmx/codejudge/judge"
	"github.com/isdmx/codejudge/limiter"
	"github.com/isdmx/codejudge/sandbox"
	"github.com/isdmx/codejudge/store"
	"github.com/isdmx/codejudge/store/seed"
	"github.com/isdmx/codejudge/store/sqlstore"
)

// The local backend runs commands through sh, so python and c are remapped
// onto shell scripts; c keeps a compile step that always fails.
const integrationConfig = `
sandbox:
  backend: local
  enable_local_backend: true
  timeout_ms: 2000
  teardown_grace_ms: 500
  max_concurrent: 2
store:
  driver: sqlite
  dsn: ":memory:"
auth:
  jwt_secret: integration-secret
logging:
  mode: development
  level: debug
languages:
  python:
    run_cmd: sh solution.py
  c:
    compile_cmd: "echo 'solution.c:1: error: expected ;' >&2; exit 1"
    run_cmd: sh solution.c
`

const sumScript = "read a b\necho $((a + b))\n"

type stack struct {
	cfg   *config.Config
	store *sqlstore.Store
	judge *judge.Judge
}

func newStack(t *testing.T) *stack {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(integrationConfig), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	log := zaptest.NewLogger(t)
	ctx := context.Background()

	st, err := store.Open(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.UpsertProblem(ctx, &domain.Problem{
		ID: "sum", Title: "Sum", Slug: "sum",
		TestCases: []domain.TestCase{
			{ID: "sum-1", Input: "1 2\n", ExpectedOutput: "3"},
			{ID: "sum-2", Input: "10 20\n", ExpectedOutput: "30"},
			{ID: "sum-3", Input: "-5 5\n", ExpectedOutput: "0", IsHidden: true},
		},
	}))
	require.NoError(t, st.UpsertProblem(ctx, &domain.Problem{
		ID: "slow", Title: "Slow", Slug: "slow", TimeLimitMs: 200,
		TestCases: []domain.TestCase{{ID: "slow-1", Input: "", ExpectedOutput: "done"}},
	}))

	executor, closeFn, err := sandbox.NewExecutor(log, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeFn() })

	lim, closeLimiter := limiter.New(cfg, log)
	t.Cleanup(func() { _ = closeLimiter() })

	runner := sandbox.NewRunner(sandbox.NewRegistry(cfg), executor, lim, log)
	j := judge.New(log, runner, st, st, st, judge.WithConfig(cfg.Judge))

	return &stack{cfg: cfg, store: st, judge: j}
}

func TestSubmitAcceptedAwardsProgress(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	sub, err := s.judge.SubmitSolution(ctx, "u1", "sum", sumScript, "python")
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictAccepted, sub.Status)
	assert.Equal(t, 100, sub.Score)
	require.Len(t, sub.Results, 3)

	progress, err := s.store.GetProgress(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, progress.ProblemsSolved)
	assert.Equal(t, 10, progress.TotalScore)

	subs, err := s.judge.GetUserSubmissions(ctx, "u1", "sum")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, sub.ID, subs[0].ID)
	assert.Equal(t, domain.VerdictAccepted, subs[0].Status)
}

func TestSubmitVerdicts(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		problem   string
		language  string
		code      string
		wantScore int
		want      domain.Verdict
	}{
		{"wrong answer", "sum", "python", "read a b\necho $((a * b))\n", 0, domain.VerdictWrongAnswer},
		{"partial", "sum", "python", "read a b\nif [ \"$a\" = 1 ]; then echo 3; else echo 0; fi\n", 67, domain.VerdictWrongAnswer},
		{"runtime error", "sum", "python", "exit 7\n", 0, domain.VerdictRuntimeError},
		{"compilation error", "sum", "c", sumScript, 0, domain.VerdictCompilationError},
		{"time limit", "slow", "python", "sleep 5\necho done\n", 0, domain.VerdictTimeLimitExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, err := s.judge.SubmitSolution(ctx, "u2", tt.problem, tt.code, tt.language)
			require.NoError(t, err)
			assert.Equal(t, tt.want, sub.Status)
			assert.Equal(t, tt.wantScore, sub.Score)
		})
	}

	progress, err := s.store.GetProgress(ctx, "u2")
	require.NoError(t, err)
	assert.Zero(t, progress.ProblemsSolved)
}

func TestSeededDriverWithNode(t *testing.T) {
	if _, err := exec.LookPath("node"); err != nil {
		t.Skip("node is not installed")
	}
	s := newStack(t)
	ctx := context.Background()

	problems, err := seed.Default()
	require.NoError(t, err)
	require.NoError(t, seed.Apply(ctx, s.store, zaptest.NewLogger(t), problems))

	tests := []struct {
		name      string
		code      string
		want      domain.Verdict
		wantScore int
	}{
		{"math max", "function findMax(arr) {\n  return Math.max(...arr);\n}\n", domain.VerdictAccepted, 100},
		{"first element", "function findMax(arr) {\n  return arr[0];\n}\n", domain.VerdictWrongAnswer, 33},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, err := s.judge.SubmitSolution(ctx, "u4", "find-maximum-element", tt.code, "javascript")
			require.NoError(t, err)
			assert.Equal(t, tt.want, sub.Status)
			assert.Equal(t, tt.wantScore, sub.Score)
		})
	}
}

func TestTimeLimitIsEnforced(t *testing.T) {
	s := newStack(t)

	start := time.Now()
	results, err := s.judge.RunCode(context.Background(), "sleep 5\necho done\n", "python", "slow")
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, domain.CaseFailed, results[0].Status)
	assert.Equal(t, domain.VerdictTimeLimitExceeded, results[0].Verdict)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestUnsupportedLanguageCreatesNoSubmission(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	_, err := s.judge.SubmitSolution(ctx, "u3", "sum", "puts 1", "ruby")
	require.ErrorIs(t, err, domain.ErrUnsupportedLanguage)

	subs, err := s.judge.GetUserSubmissions(ctx, "u3", "sum")
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestRESTRoundTrip(t *testing.T) {
	s := newStack(t)
	auth := api.NewTokenAuth(s.cfg.Auth.JWTSecret)
	srv := httptest.NewServer(api.NewRouter(zaptest.NewLogger(t), s.judge, auth,
		api.WithProgress(s.store), api.WithHealthCheck(s.store)))
	t.Cleanup(srv.Close)

	token, err := api.IssueToken(auth, "rest-user", api.RoleUser, time.Minute)
	require.NoError(t, err)

	post := func(path, body string) *http.Response {
		req, err := http.NewRequest(http.MethodPost, srv.URL+path, strings.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	payload, err := json.Marshal(map[string]string{"code": sumScript, "language": "python"})
	require.NoError(t, err)

	resp := post("/api/v1/problems/sum/run", string(payload))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var run struct {
		Results []domain.TestResult `json:"results"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&run))
	assert.Len(t, run.Results, 2, "hidden cases are not run")

	resp = post("/api/v1/problems/sum/submit", string(payload))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var sub domain.Submission
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sub))
	assert.Equal(t, domain.VerdictAccepted, sub.Status)
	assert.Equal(t, "rest-user", sub.UserID)

	resp = post("/api/v1/problems/missing/submit", string(payload))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	health, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}
