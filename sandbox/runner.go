package sandbox

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/isdmx/codejudge/limiter"
)

// Runner resolves a language profile, waits for an execution slot and
// hands the request to the Executor.
type Runner struct {
	registry *Registry
	executor Executor
	limiter  limiter.Limiter
	logger   *zap.Logger
}

// NewRunner creates a Runner. A nil limiter leaves concurrency unbounded.
func NewRunner(registry *Registry, executor Executor, lim limiter.Limiter, logger *zap.Logger) *Runner {
	return &Runner{
		registry: registry,
		executor: executor,
		limiter:  lim,
		logger:   logger,
	}
}

// CheckLanguage returns domain.ErrUnsupportedLanguage (wrapped) for unknown languages
func (r *Runner) CheckLanguage(language string) error {
	_, err := r.registry.ProfileFor(language)
	return err
}

// Languages lists the supported language identifiers
func (r *Runner) Languages() []string {
	return r.registry.Languages()
}

// Run executes req. Errors are reserved for an unsupported language or a
// caller that gave up while waiting for a slot; everything else is in the result.
func (r *Runner) Run(ctx context.Context, req ExecutionRequest) (ExecutionResult, error) {
	profile, err := r.registry.ProfileFor(req.Language)
	if err != nil {
		return ExecutionResult{}, err
	}

	if r.limiter != nil {
		release, err := r.limiter.Acquire(ctx)
		if err != nil {
			return ExecutionResult{}, fmt.Errorf("waiting for execution slot: %w", err)
		}
		defer release()
	}

	profile = profile.WithDriver(req.PrefixCode, req.PostfixCode)

	r.logger.Debug("executing", zap.String("language", profile.Language), zap.Int("time_limit_ms", req.TimeLimitMs))
	return r.executor.Execute(ctx, req, profile), nil
}
