package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// LocalExecutor runs code directly on the host (for development only).
// There is no isolation: memory and CPU ceilings are not enforced and the
// program sees the host network and file system.
type LocalExecutor struct {
	logger *zap.Logger
	config *Config
	fs     FileSystem
}

// LocalExecutorOption defines a functional option for LocalExecutor
type LocalExecutorOption func(*LocalExecutor)

// WithLocalFileSystem sets the FileSystem for LocalExecutor
func WithLocalFileSystem(fs FileSystem) LocalExecutorOption {
	return func(l *LocalExecutor) {
		l.fs = fs
	}
}

// NewLocalExecutor creates a new LocalExecutor with default implementations and optional interfaces
func NewLocalExecutor(logger *zap.Logger, config *Config, opts ...LocalExecutorOption) *LocalExecutor {
	executor := &LocalExecutor{
		logger: logger,
		config: config,
		fs:     &RealFileSystem{},
	}

	for _, opt := range opts {
		opt(executor)
	}

	return executor
}

// Execute runs the code locally (WARNING: This is not secure and should only be used for development)
func (l *LocalExecutor) Execute(ctx context.Context, req ExecutionRequest, profile LanguageProfile) (result ExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("panic during local execution", zap.Any("panic", r), zap.Stack("stack"))
			result = internalErrorResult(fmt.Errorf("internal fault: %v", r))
		}
	}()

	req = l.config.withDefaults(req)
	log := l.logger.With(zap.String("language", profile.Language), zap.String("backend", "local"))

	ws, err := newWorkspace(l.fs, log, profile, req.SourceCode)
	if err != nil {
		log.Error("workspace setup failed", zap.Error(err))
		return internalErrorResult(err)
	}
	defer ws.Remove()

	env := append(os.Environ(), envList(profile.Environment)...)

	if profile.HasCompileStep() {
		compiled, _, err := l.runProcess(ctx, ws.Dir, env, profile.CompileCommand, nil, l.config.CompileTimeout)
		if err != nil {
			log.Error("compile phase failed", zap.Error(err))
			return internalErrorResult(err)
		}
		comp := compileResult(compiled)
		if comp.failed() {
			if comp.TimedOut {
				comp.ExitCode = ExitCodeTimeout
				comp.Stderr += "\ncompilation timed out"
			}
			return compileFailedResult(comp)
		}
	}

	timeLimit := time.Duration(req.TimeLimitMs) * time.Millisecond
	run, peak, err := l.runProcess(ctx, ws.Dir, env, profile.RunCommand, strings.NewReader(req.Stdin), timeLimit)
	if err != nil {
		log.Error("run phase failed", zap.Error(err))
		return internalErrorResult(err)
	}
	if run.TimedOut {
		return timeoutResult(run.Stdout, run.Stderr, run.Duration)
	}

	return ExecutionResult{
		Stdout:          run.Stdout,
		Stderr:          run.Stderr,
		ExitCode:        run.ExitCode,
		ExecutionTimeMs: run.Duration.Milliseconds(),
		MemoryUsedBytes: peak,
	}
}

// runProcess starts command in its own process group so that a timeout
// takes down everything the program forked.
func (l *LocalExecutor) runProcess(ctx context.Context, dir string, env []string, command string, stdin io.Reader, limit time.Duration) (runResult, int64, error) {
	stdout := newOutputBuffer(l.config.MaxOutputBytes)
	stderr := newOutputBuffer(l.config.MaxOutputBytes)

	cmd := exec.Command("sh", "-c", command) //nolint:gosec // Running user code is intended functionality
	cmd.Dir = dir
	cmd.Env = env
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = l.config.teardownGrace()
	setProcessGroup(cmd)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return runResult{}, 0, fmt.Errorf("failed to start process: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	timer := time.NewTimer(limit)
	defer timer.Stop()

	select {
	case err := <-done:
		elapsed := time.Since(start)
		exitCode, err := exitCodeOf(cmd, err)
		if err != nil {
			return runResult{}, 0, err
		}
		out, errOut := captured(stdout, stderr)
		return runResult{
			Stdout:   out,
			Stderr:   errOut,
			ExitCode: exitCode,
			Duration: elapsed,
		}, peakRSS(cmd.ProcessState), nil

	case <-timer.C:
		elapsed := time.Since(start)
		killProcessGroup(cmd)
		<-done
		out, errOut := captured(stdout, stderr)
		return runResult{
			Stdout:   out,
			Stderr:   errOut,
			TimedOut: true,
			Duration: elapsed,
		}, 0, nil

	case <-ctx.Done():
		killProcessGroup(cmd)
		<-done
		return runResult{}, 0, fmt.Errorf("execution cancelled: %w", ctx.Err())
	}
}

func exitCodeOf(cmd *exec.Cmd, err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitError *exec.ExitError
	if errors.As(err, &exitError) {
		return exitError.ExitCode(), nil
	}
	// Output pipes held open by an orphan; the program itself has exited.
	if errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode(), nil
	}
	return 0, fmt.Errorf("failed to wait for process: %w", err)
}
