package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/codejudge/config"
	"github.com/isdmx/codejudge/domain"
)

type mockJudge struct {
	results []domain.TestResult
	sub     *domain.Submission
	subs    []domain.Submission
	err     error

	calls []string
}

func (m *mockJudge) RunCode(_ context.Context, _, language, problemID string) ([]domain.TestResult, error) {
	m.calls = append(m.calls, fmt.Sprintf("run %s %s", problemID, language))
	return m.results, m.err
}

func (m *mockJudge) SubmitSolution(_ context.Context, userID, problemID, _, language string) (*domain.Submission, error) {
	m.calls = append(m.calls, fmt.Sprintf("submit %s %s %s", userID, problemID, language))
	return m.sub, m.err
}

func (m *mockJudge) GetUserSubmissions(_ context.Context, userID, problemID string) ([]domain.Submission, error) {
	m.calls = append(m.calls, fmt.Sprintf("list %s %s", userID, problemID))
	return m.subs, m.err
}

func newTestServer(t *testing.T, j *mockJudge) *MCPServer {
	t.Helper()
	cfg := &config.Config{MCP: config.MCPConfig{Transport: "stdio", HTTPPort: 8081}}
	return New(cfg, zaptest.NewLogger(t), j, []string{"python", "cpp"})
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return text.Text
}

func TestToolsAreListed(t *testing.T) {
	s := newTestServer(t, &mockJudge{})

	msg := s.GetMCPServer().HandleMessage(context.Background(),
		json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	body, err := json.Marshal(msg)
	require.NoError(t, err)

	for _, name := range []string{"run_code", "submit_solution", "list_submissions"} {
		assert.Contains(t, string(body), `"`+name+`"`)
	}
	assert.Contains(t, string(body), `"cpp"`)
}

func TestHandleRunCode(t *testing.T) {
	j := &mockJudge{results: []domain.TestResult{{Input: "1", ExpectedOutput: "1", ActualOutput: "1\n", Status: domain.CasePassed}}}
	s := newTestServer(t, j)

	res, err := s.handleRunCode(context.Background(), callRequest("run_code", map[string]any{
		"problem_id": "p1", "code": "print(1)", "language": "python",
	}))
	require.NoError(t, err)
	assert.False(t, res.IsError)

	var body struct {
		Results []domain.TestResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &body))
	require.Len(t, body.Results, 1)
	assert.Equal(t, domain.CasePassed, body.Results[0].Status)
	assert.Equal(t, []string{"run p1 python"}, j.calls)
}

func TestHandleRunCodeMissingArgument(t *testing.T) {
	j := &mockJudge{}
	s := newTestServer(t, j)

	res, err := s.handleRunCode(context.Background(), callRequest("run_code", map[string]any{
		"problem_id": "p1", "language": "python",
	}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "code")
	assert.Empty(t, j.calls)
}

func TestHandleSubmitSolution(t *testing.T) {
	j := &mockJudge{sub: &domain.Submission{ID: "s1", UserID: "u1", Status: domain.VerdictWrongAnswer, Score: 50}}
	s := newTestServer(t, j)

	res, err := s.handleSubmitSolution(context.Background(), callRequest("submit_solution", map[string]any{
		"user_id": "u1", "problem_id": "p1", "code": "x", "language": "cpp",
	}))
	require.NoError(t, err)
	assert.False(t, res.IsError)

	var sub domain.Submission
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &sub))
	assert.Equal(t, domain.VerdictWrongAnswer, sub.Status)
	assert.Equal(t, 50, sub.Score)
	assert.Equal(t, []string{"submit u1 p1 cpp"}, j.calls)
}

func TestHandleSubmitSolutionErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"caller error is returned verbatim", fmt.Errorf("%w: ruby", domain.ErrUnsupportedLanguage), "unsupported language: ruby"},
		{"store outage is summarized", fmt.Errorf("creating submission: %w", domain.ErrStoreUnavailable), "submission failed: store unavailable"},
		{"internal error is summarized", fmt.Errorf("secret detail"), "submission failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &mockJudge{err: tt.err})
			res, err := s.handleSubmitSolution(context.Background(), callRequest("submit_solution", map[string]any{
				"user_id": "u1", "problem_id": "p1", "code": "x", "language": "python",
			}))
			require.NoError(t, err)
			assert.True(t, res.IsError)
			assert.Equal(t, tt.want, resultText(t, res))
		})
	}
}

func TestHandleListSubmissions(t *testing.T) {
	j := &mockJudge{subs: []domain.Submission{{ID: "s2"}, {ID: "s1"}}}
	s := newTestServer(t, j)

	res, err := s.handleListSubmissions(context.Background(), callRequest("list_submissions", map[string]any{
		"user_id": "u1", "problem_id": "p1",
	}))
	require.NoError(t, err)

	var subs []domain.Submission
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &subs))
	require.Len(t, subs, 2)
	assert.Equal(t, "s2", subs[0].ID)
}

func TestServeHTTPRequiresHTTPTransport(t *testing.T) {
	s := newTestServer(t, &mockJudge{})
	assert.Error(t, s.ServeHTTP())
	assert.NoError(t, s.Shutdown(context.Background()))
}
