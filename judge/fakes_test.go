package judge

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/isdmx/codejudge/domain"
	"github.com/isdmx/codejudge/sandbox"
)

// fakeRunner answers by stdin; unknown inputs echo nothing.
type fakeRunner struct {
	mu        sync.Mutex
	languages map[string]bool
	byStdin   map[string]sandbox.ExecutionResult
	onRun     func(req sandbox.ExecutionRequest)
	runErr    error
	requests  []sandbox.ExecutionRequest
}

func newFakeRunner(byStdin map[string]sandbox.ExecutionResult) *fakeRunner {
	return &fakeRunner{
		languages: map[string]bool{"javascript": true, "python": true},
		byStdin:   byStdin,
	}
}

func (f *fakeRunner) CheckLanguage(language string) error {
	if !f.languages[language] {
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedLanguage, language)
	}
	return nil
}

func (f *fakeRunner) Run(_ context.Context, req sandbox.ExecutionRequest) (sandbox.ExecutionResult, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	onRun := f.onRun
	f.mu.Unlock()

	if onRun != nil {
		onRun(req)
	}
	if f.runErr != nil {
		return sandbox.ExecutionResult{}, f.runErr
	}
	return f.byStdin[req.Stdin], nil
}

func (f *fakeRunner) runs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// memStore implements every store port in memory.
type memStore struct {
	mu          sync.Mutex
	problems    map[string]*domain.Problem
	submissions map[string]*domain.Submission
	created     []domain.Submission
	updates     []domain.SubmissionUpdate
	progress    map[string]*domain.UserProgress

	updateErr    error
	progressErr  error
	acceptedSeed int
}

func newMemStore(problems ...*domain.Problem) *memStore {
	m := &memStore{
		problems:    make(map[string]*domain.Problem),
		submissions: make(map[string]*domain.Submission),
		progress:    make(map[string]*domain.UserProgress),
	}
	for _, p := range problems {
		m.problems[p.ID] = p
	}
	return m
}

func (m *memStore) GetProblemWithTestCases(_ context.Context, problemID string) (*domain.Problem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.problems[problemID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrProblemNotFound, problemID)
	}
	return p, nil
}

func (m *memStore) Create(_ context.Context, sub *domain.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *sub
	m.submissions[sub.ID] = &cp
	m.created = append(m.created, cp)
	return nil
}

func (m *memStore) Update(_ context.Context, id string, update domain.SubmissionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	sub, ok := m.submissions[id]
	if !ok {
		return domain.ErrSubmissionNotFound
	}
	sub.Status = update.Status
	sub.Score = update.Score
	sub.Results = append([]domain.TestResult(nil), update.Results...)
	m.updates = append(m.updates, update)
	return nil
}

func (m *memStore) ListByUserAndProblem(_ context.Context, userID, problemID string) ([]domain.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Submission
	for _, s := range m.submissions {
		if s.UserID == userID && s.ProblemID == problemID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) CountAccepted(_ context.Context, userID, problemID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.acceptedSeed
	for _, s := range m.submissions {
		if s.UserID == userID && s.ProblemID == problemID && s.Status == domain.VerdictAccepted {
			n++
		}
	}
	return n, nil
}

func (m *memStore) IncrementSolved(_ context.Context, userID string, solved, score int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.progressErr != nil {
		return m.progressErr
	}
	p, ok := m.progress[userID]
	if !ok {
		p = &domain.UserProgress{UserID: userID}
		m.progress[userID] = p
	}
	p.ProblemsSolved += solved
	p.TotalScore += score
	return nil
}

func (m *memStore) stored(id string) domain.Submission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.submissions[id]
}

func (m *memStore) userProgress(userID string) domain.UserProgress {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.progress[userID]; ok {
		return *p
	}
	return domain.UserProgress{UserID: userID}
}

// findMaxProblem mirrors the seeded "Find Maximum" problem.
func findMaxProblem() *domain.Problem {
	return &domain.Problem{
		ID:    "find-max",
		Title: "Find Maximum",
		TestCases: []domain.TestCase{
			{ID: "tc1", Input: "1 5 3", ExpectedOutput: "5"},
			{ID: "tc2", Input: "-1 -5 -3", ExpectedOutput: "-1"},
			{ID: "tc3", Input: "10 20 30 40", ExpectedOutput: "40", IsHidden: true},
		},
	}
}

func answer(stdout string) sandbox.ExecutionResult {
	return sandbox.ExecutionResult{Stdout: stdout + "\n"}
}

func tle() sandbox.ExecutionResult {
	return sandbox.ExecutionResult{
		Stderr:     sandbox.DiagnosticTimeLimitExceeded,
		ExitCode:   sandbox.ExitCodeTimeout,
		TimedOut:   true,
		Diagnostic: sandbox.DiagnosticTimeLimitExceeded,
	}
}

func runtimeErr(msg string) sandbox.ExecutionResult {
	return sandbox.ExecutionResult{Stderr: msg, ExitCode: 1}
}

func compileErr() sandbox.ExecutionResult {
	return sandbox.ExecutionResult{Stderr: "error: expected ';'", ExitCode: 1, Diagnostic: sandbox.DiagnosticCompilationFailed}
}
