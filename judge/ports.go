package judge

import (
	"context"

	"github.com/isdmx/codejudge/domain"
	"github.com/isdmx/codejudge/sandbox"
)

// ProblemStore reads problems together with all their test cases
type ProblemStore interface {
	GetProblemWithTestCases(ctx context.Context, problemID string) (*domain.Problem, error)
}

// SubmissionStore persists submissions. Create stores sub as given; the
// judge assigns its ID and creation time.
type SubmissionStore interface {
	Create(ctx context.Context, sub *domain.Submission) error
	Update(ctx context.Context, id string, update domain.SubmissionUpdate) error
	ListByUserAndProblem(ctx context.Context, userID, problemID string) ([]domain.Submission, error)
	CountAccepted(ctx context.Context, userID, problemID string) (int, error)
}

// ProgressStore maintains the per-user aggregate, creating it on first use
type ProgressStore interface {
	IncrementSolved(ctx context.Context, userID string, solved, score int) error
}

// CodeRunner executes one request in the sandbox
type CodeRunner interface {
	CheckLanguage(language string) error
	Run(ctx context.Context, req sandbox.ExecutionRequest) (sandbox.ExecutionResult, error)
}
