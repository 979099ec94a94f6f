package sandbox

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/isdmx/codejudge/config"
)

// Config holds the resource envelope applied to every run
type Config struct {
	DefaultTimeLimitMs int
	DefaultMemoryMB    int
	CPUQuota           int64
	CPUPeriod          int64
	PidsLimit          int64
	CompileTimeout     time.Duration
	MaxOutputBytes     int
	TeardownGrace      time.Duration
	User               string
}

// ConfigFromApp derives the executor envelope from the application configuration
func ConfigFromApp(cfg *config.Config) *Config {
	return &Config{
		DefaultTimeLimitMs: cfg.Sandbox.TimeoutMs,
		DefaultMemoryMB:    cfg.Sandbox.MemoryMB,
		CPUQuota:           cfg.Sandbox.CPUQuota,
		CPUPeriod:          cfg.Sandbox.CPUPeriod,
		PidsLimit:          cfg.Sandbox.PidsLimit,
		CompileTimeout:     time.Duration(cfg.Sandbox.CompileTimeoutMs) * time.Millisecond,
		MaxOutputBytes:     cfg.Sandbox.MaxOutputKB * BytesPerKB,
		TeardownGrace:      cfg.GetTeardownGrace(),
		User:               cfg.Sandbox.User,
	}
}

// withDefaults fills unset limits of req
func (c *Config) withDefaults(req ExecutionRequest) ExecutionRequest {
	if req.TimeLimitMs <= 0 {
		req.TimeLimitMs = c.DefaultTimeLimitMs
	}
	if req.MemoryLimitMB <= 0 {
		req.MemoryLimitMB = c.DefaultMemoryMB
	}
	return req
}

func (c *Config) teardownGrace() time.Duration {
	if c.TeardownGrace <= 0 {
		return 2 * time.Second
	}
	return c.TeardownGrace
}

// ContainerExecutor implements Executor on top of a container Engine
type ContainerExecutor struct {
	logger *zap.Logger
	config *Config
	engine Engine
	fs     FileSystem
}

// ContainerExecutorOption defines a functional option for ContainerExecutor
type ContainerExecutorOption func(*ContainerExecutor)

// WithFileSystem sets the FileSystem used for workspaces
func WithFileSystem(fs FileSystem) ContainerExecutorOption {
	return func(c *ContainerExecutor) {
		c.fs = fs
	}
}

// NewContainerExecutor creates a new ContainerExecutor with default implementations and optional interfaces
func NewContainerExecutor(logger *zap.Logger, config *Config, engine Engine, opts ...ContainerExecutorOption) *ContainerExecutor {
	executor := &ContainerExecutor{
		logger: logger,
		config: config,
		engine: engine,
		fs:     &RealFileSystem{},
	}

	for _, opt := range opts {
		opt(executor)
	}

	return executor
}

// Execute runs req in a fresh environment. The workspace and the environment
// are released on every path, including panics.
func (c *ContainerExecutor) Execute(ctx context.Context, req ExecutionRequest, profile LanguageProfile) (result ExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic during execution", zap.Any("panic", r), zap.Stack("stack"))
			result = internalErrorResult(fmt.Errorf("internal fault: %v", r))
		}
	}()

	req = c.config.withDefaults(req)
	log := c.logger.With(zap.String("language", profile.Language))

	ws, err := newWorkspace(c.fs, log, profile, req.SourceCode)
	if err != nil {
		log.Error("workspace setup failed", zap.Error(err))
		return internalErrorResult(err)
	}
	defer ws.Remove()

	timeLimit := time.Duration(req.TimeLimitMs) * time.Millisecond
	spec := EnvironmentSpec{
		Name:         "codejudge-" + uuid.NewString(),
		Image:        profile.Image,
		WorkspaceDir: ws.Dir,
		Environment:  profile.Environment,
		User:         c.config.User,
		MemoryBytes:  int64(req.MemoryLimitMB) * BytesPerMB,
		CPUQuota:     c.config.CPUQuota,
		CPUPeriod:    c.config.CPUPeriod,
		PidsLimit:    c.config.PidsLimit,
		LifetimeSecs: lifetimeSeconds(c.config.CompileTimeout + timeLimit + c.config.teardownGrace()),
	}

	envID, err := c.engine.Create(ctx, spec)
	if err != nil {
		log.Error("environment creation failed", zap.String("image", spec.Image), zap.Error(err))
		return internalErrorResult(err)
	}
	log = log.With(zap.String("environment", envID))
	defer c.teardown(ctx, log, envID)

	if profile.HasCompileStep() {
		compiled, err := c.execWithDeadline(ctx, log, envID, shellCommand(profile.CompileCommand), nil, c.config.CompileTimeout)
		if err != nil {
			log.Error("compile phase failed", zap.Error(err))
			return internalErrorResult(err)
		}
		comp := compileResult(compiled)
		if comp.failed() {
			log.Debug("compilation failed", zap.Int("exit_code", comp.ExitCode), zap.Bool("timed_out", comp.TimedOut))
			if comp.TimedOut {
				comp.ExitCode = ExitCodeTimeout
				comp.Stderr += "\ncompilation timed out"
			}
			return compileFailedResult(comp)
		}
	}

	run, err := c.execWithDeadline(ctx, log, envID, shellCommand(profile.RunCommand), strings.NewReader(req.Stdin), timeLimit)
	if err != nil {
		log.Error("run phase failed", zap.Error(err))
		return internalErrorResult(err)
	}
	if run.TimedOut {
		log.Info("time limit exceeded", zap.Duration("limit", timeLimit))
		return timeoutResult(run.Stdout, run.Stderr, run.Duration)
	}

	result = ExecutionResult{
		Stdout:          run.Stdout,
		Stderr:          run.Stderr,
		ExitCode:        run.ExitCode,
		ExecutionTimeMs: run.Duration.Milliseconds(),
	}

	statsCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.teardownGrace())
	defer cancel()
	if stats, err := c.engine.Stats(statsCtx, envID); err != nil {
		log.Warn("failed to sample resource usage", zap.Error(err))
	} else {
		result.MemoryUsedBytes = stats.PeakMemoryBytes()
	}

	log.Debug("execution finished",
		zap.Int("exit_code", result.ExitCode),
		zap.Int64("time_ms", result.ExecutionTimeMs),
		zap.Int64("memory_bytes", result.MemoryUsedBytes))

	return result
}

// execWithDeadline races command against limit. When the deadline wins the
// whole environment is killed, not just abandoned.
func (c *ContainerExecutor) execWithDeadline(ctx context.Context, log *zap.Logger, envID string, command []string, stdin io.Reader, limit time.Duration) (runResult, error) {
	stdout := newOutputBuffer(c.config.MaxOutputBytes)
	stderr := newOutputBuffer(c.config.MaxOutputBytes)

	execCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan execOutcome, 1)

	start := time.Now()
	go func() {
		exitCode, err := c.engine.Exec(execCtx, envID, command, stdin, stdout, stderr)
		done <- execOutcome{exitCode: exitCode, err: err}
	}()

	timer := time.NewTimer(limit)
	defer timer.Stop()

	select {
	case out := <-done:
		elapsed := time.Since(start)
		if out.err != nil {
			return runResult{}, out.err
		}
		out, errOut := captured(stdout, stderr)
		return runResult{
			Stdout:   out,
			Stderr:   errOut,
			ExitCode: out.exitCode,
			Duration: elapsed,
		}, nil

	case <-timer.C:
		elapsed := time.Since(start)
		c.kill(ctx, log, envID)
		cancel()
		c.await(log, done)
		out, errOut := captured(stdout, stderr)
		return runResult{
			Stdout:   out,
			Stderr:   errOut,
			TimedOut: true,
			Duration: elapsed,
		}, nil

	case <-ctx.Done():
		c.kill(ctx, log, envID)
		cancel()
		c.await(log, done)
		return runResult{}, fmt.Errorf("execution cancelled: %w", ctx.Err())
	}
}

func (c *ContainerExecutor) kill(ctx context.Context, log *zap.Logger, envID string) {
	killCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.teardownGrace())
	defer cancel()
	if err := c.engine.Kill(killCtx, envID); err != nil {
		log.Warn("failed to kill environment", zap.Error(err))
	}
}

type execOutcome struct {
	exitCode int
	err      error
}

// await gives a killed exec a bounded grace period to unwind.
func (c *ContainerExecutor) await(log *zap.Logger, done <-chan execOutcome) {
	select {
	case <-done:
	case <-time.After(c.config.teardownGrace()):
		log.Warn("exec did not unwind after kill, abandoning it")
	}
}

// teardown removes the environment under a bounded grace period. It never
// blocks the caller for longer than that, even if the engine hangs.
func (c *ContainerExecutor) teardown(ctx context.Context, log *zap.Logger, envID string) {
	grace := c.config.teardownGrace()
	teardownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
	defer cancel()

	removed := make(chan error, 1)
	go func() {
		removed <- c.engine.Remove(teardownCtx, envID)
	}()

	select {
	case err := <-removed:
		if err != nil {
			log.Warn("failed to remove environment", zap.Error(err))
		}
	case <-teardownCtx.Done():
		log.Warn("environment removal timed out, abandoning it", zap.Duration("grace", grace))
	}
}

func lifetimeSeconds(d time.Duration) int {
	return int(d.Seconds()) + 5
}
