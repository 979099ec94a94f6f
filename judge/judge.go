package judge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/isdmx/codejudge/config"
	"github.com/isdmx/codejudge/domain"
	"github.com/isdmx/codejudge/sandbox"
)

// Verdict aggregation policies
const (
	PolicyLastFailure = config.VerdictPolicyLastFailure
	PolicyMostSevere  = config.VerdictPolicyMostSevere
)

// Judge evaluates code against problems. It holds no per-call state and is
// safe for concurrent use.
type Judge struct {
	logger      *zap.Logger
	runner      CodeRunner
	problems    ProblemStore
	submissions SubmissionStore
	progress    ProgressStore

	policy       string
	solvedScore  int
	awardRepeats bool
	now          func() time.Time
	newID        func() string
}

// Option defines a functional option for Judge
type Option func(*Judge)

// WithVerdictPolicy selects how failing cases combine into one verdict
func WithVerdictPolicy(policy string) Option {
	return func(j *Judge) {
		j.policy = policy
	}
}

// WithSolvedScore sets the score credited for an accepted submission
func WithSolvedScore(points int) Option {
	return func(j *Judge) {
		j.solvedScore = points
	}
}

// WithAwardRepeatSolves controls whether re-accepting a solved problem credits again
func WithAwardRepeatSolves(award bool) Option {
	return func(j *Judge) {
		j.awardRepeats = award
	}
}

// WithClock overrides the time source for submission timestamps
func WithClock(now func() time.Time) Option {
	return func(j *Judge) {
		j.now = now
	}
}

// WithConfig applies the judge section of the application configuration
func WithConfig(cfg config.JudgeConfig) Option {
	return func(j *Judge) {
		j.policy = cfg.VerdictPolicy
		j.solvedScore = cfg.SolvedScore
		j.awardRepeats = cfg.AwardRepeatSolves
	}
}

// New creates a Judge
func New(logger *zap.Logger, runner CodeRunner, problems ProblemStore, submissions SubmissionStore, progress ProgressStore, opts ...Option) *Judge {
	j := &Judge{
		logger:       logger,
		runner:       runner,
		problems:     problems,
		submissions:  submissions,
		progress:     progress,
		policy:       PolicyLastFailure,
		solvedScore:  10,
		awardRepeats: true,
		now:          time.Now,
		newID:        uuid.NewString,
	}

	for _, opt := range opts {
		opt(j)
	}

	return j
}

// RunCode runs code against the visible test cases of a problem. Nothing is persisted.
func (j *Judge) RunCode(ctx context.Context, code, language, problemID string) ([]domain.TestResult, error) {
	if err := j.runner.CheckLanguage(language); err != nil {
		return nil, err
	}

	problem, err := j.problems.GetProblemWithTestCases(ctx, problemID)
	if err != nil {
		return nil, err
	}

	cases := problem.VisibleTestCases()
	results := make([]domain.TestResult, 0, len(cases))
	for _, tc := range cases {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		exec, err := j.runner.Run(ctx, executionRequest(problem, code, language, tc))
		if err != nil {
			return nil, fmt.Errorf("running test case %s: %w", tc.ID, err)
		}

		result := testResult(tc, exec)
		result.Stderr = exec.Stderr
		results = append(results, result)
	}

	return results, nil
}

// SubmitSolution judges code against every test case of a problem and
// records the outcome. A PENDING submission is written before any code runs.
func (j *Judge) SubmitSolution(ctx context.Context, userID, problemID, code, language string) (*domain.Submission, error) {
	if err := j.runner.CheckLanguage(language); err != nil {
		return nil, err
	}

	sub := &domain.Submission{
		ID:        j.newID(),
		UserID:    userID,
		ProblemID: problemID,
		Code:      code,
		Language:  language,
		Status:    domain.VerdictPending,
		Results:   []domain.TestResult{},
		CreatedAt: j.now().UTC(),
	}
	if err := j.submissions.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("creating submission: %w", err)
	}

	log := j.logger.With(
		zap.String("submission_id", sub.ID),
		zap.String("user_id", userID),
		zap.String("problem_id", problemID),
		zap.String("language", language))

	update, err := j.evaluate(ctx, sub, log)
	if err != nil {
		j.abandon(ctx, log, sub, err)
		return nil, err
	}

	if err := j.submissions.Update(ctx, sub.ID, update); err != nil {
		j.abandon(ctx, log, sub, err)
		return nil, fmt.Errorf("updating submission: %w", err)
	}
	sub.Status = update.Status
	sub.Score = update.Score
	sub.Results = update.Results

	log.Info("submission judged", zap.String("verdict", string(sub.Status)), zap.Int("score", sub.Score))

	if sub.Status == domain.VerdictAccepted {
		if err := j.credit(ctx, userID, problemID); err != nil {
			return nil, err
		}
	}

	return sub, nil
}

// evaluate runs all cases strictly in order. Results gathered before a
// failure are kept on sub for the error path.
func (j *Judge) evaluate(ctx context.Context, sub *domain.Submission, log *zap.Logger) (domain.SubmissionUpdate, error) {
	problem, err := j.problems.GetProblemWithTestCases(ctx, sub.ProblemID)
	if err != nil {
		return domain.SubmissionUpdate{}, err
	}

	agg := newAggregator(j.policy)
	passedCount := 0
	for i, tc := range problem.TestCases {
		if err := ctx.Err(); err != nil {
			return domain.SubmissionUpdate{}, err
		}

		exec, err := j.runner.Run(ctx, executionRequest(problem, sub.Code, sub.Language, tc))
		if err != nil {
			return domain.SubmissionUpdate{}, fmt.Errorf("running test case %d: %w", i+1, err)
		}

		result := testResult(tc, exec)
		if result.Status == domain.CasePassed {
			passedCount++
		} else {
			agg.fail(result.Verdict)
			log.Debug("test case failed", zap.Int("case", i+1), zap.String("verdict", string(result.Verdict)))
		}
		sub.Results = append(sub.Results, result)
	}

	s := score(passedCount, len(problem.TestCases))
	return domain.SubmissionUpdate{
		Status:  agg.final(s),
		Score:   s,
		Results: sub.Results,
	}, nil
}

// abandon moves a submission that could not be judged to RUNTIME_ERROR. It
// runs even when ctx is already cancelled; if it fails the row stays PENDING.
func (j *Judge) abandon(ctx context.Context, log *zap.Logger, sub *domain.Submission, cause error) {
	log.Error("submission judging failed", zap.Error(cause), zap.Int("completed_cases", len(sub.Results)))

	updateCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	err := j.submissions.Update(updateCtx, sub.ID, domain.SubmissionUpdate{
		Status:  domain.VerdictRuntimeError,
		Score:   0,
		Results: sub.Results,
	})
	if err != nil {
		log.Error("failed to record judging failure, submission left pending", zap.Error(err))
	}
}

func (j *Judge) credit(ctx context.Context, userID, problemID string) error {
	if !j.awardRepeats {
		n, err := j.submissions.CountAccepted(ctx, userID, problemID)
		if err != nil {
			return fmt.Errorf("counting accepted submissions: %w", err)
		}
		// The submission just judged is already counted.
		if n > 1 {
			return nil
		}
	}

	if err := j.progress.IncrementSolved(ctx, userID, 1, j.solvedScore); err != nil {
		return fmt.Errorf("updating progress: %w", err)
	}
	return nil
}

// GetUserSubmissions lists a user's submissions for a problem, newest first
func (j *Judge) GetUserSubmissions(ctx context.Context, userID, problemID string) ([]domain.Submission, error) {
	subs, err := j.submissions.ListByUserAndProblem(ctx, userID, problemID)
	if err != nil {
		return nil, err
	}
	if subs == nil {
		subs = []domain.Submission{}
	}
	return subs, nil
}

func executionRequest(problem *domain.Problem, code, language string, tc domain.TestCase) sandbox.ExecutionRequest {
	driver := problem.DriverFor(language)
	return sandbox.ExecutionRequest{
		SourceCode:    code,
		Language:      language,
		Stdin:         tc.Input,
		TimeLimitMs:   problem.TimeLimitMs,
		MemoryLimitMB: problem.MemoryLimitMB,
		PrefixCode:    driver.Prefix,
		PostfixCode:   driver.Postfix,
	}
}

func testResult(tc domain.TestCase, exec sandbox.ExecutionResult) domain.TestResult {
	result := domain.TestResult{
		TestCaseID:      tc.ID,
		Input:           tc.Input,
		ExpectedOutput:  tc.ExpectedOutput,
		ActualOutput:    exec.Stdout,
		Status:          domain.CasePassed,
		ExecutionTimeMs: exec.ExecutionTimeMs,
	}
	if !passed(exec, tc.ExpectedOutput) {
		result.Status = domain.CaseFailed
		result.Verdict = classify(exec)
	}
	return result
}

// IsCallerError reports whether err stems from the request rather than the system
func IsCallerError(err error) bool {
	return errors.Is(err, domain.ErrUnsupportedLanguage) || errors.Is(err, domain.ErrProblemNotFound)
}
