package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"
)

// ExecutionRequest represents the parameters for one sandboxed run
type ExecutionRequest struct {
	SourceCode    string
	Language      string
	Stdin         string
	TimeLimitMs   int
	MemoryLimitMB int
	// PrefixCode and PostfixCode wrap SourceCode inside the profile's own hooks.
	PrefixCode  string
	PostfixCode string
}

// ExecutionResult represents the result of one sandboxed run
type ExecutionResult struct {
	Stdout          string `json:"stdout"`
	Stderr          string `json:"stderr"`
	ExitCode        int    `json:"exitCode"`
	ExecutionTimeMs int64  `json:"executionTimeMs"`
	MemoryUsedBytes int64  `json:"memoryUsedBytes"`
	TimedOut        bool   `json:"timedOut"`
	Diagnostic      string `json:"diagnostic,omitempty"`
}

// Diagnostics and exit codes attached to degraded results
const (
	DiagnosticCompilationFailed = "Compilation failed"
	DiagnosticTimeLimitExceeded = "Time Limit Exceeded"
	DiagnosticInternalError     = "Internal Execution Error"

	ExitCodeTimeout  = 124
	ExitCodeInternal = 1
)

// Executor runs one request inside an isolated environment. It never
// returns an error: every failure is folded into the result.
type Executor interface {
	Execute(ctx context.Context, req ExecutionRequest, profile LanguageProfile) ExecutionResult
}

// CommandRunner defines an interface for executing system commands
type CommandRunner interface {
	RunCommand(ctx context.Context, stdin io.Reader, args []string) (stdout, stderr string, exitCode int, err error)
	// RunCommandStreams writes output to stdout and stderr as it arrives, so
	// a bounded writer bounds host memory too.
	RunCommandStreams(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) (exitCode int, err error)
}

// RealCommandRunner implements CommandRunner using actual exec commands
type RealCommandRunner struct {
	// WaitDelay bounds how long Wait blocks on inherited pipes after the context is done.
	WaitDelay time.Duration
}

// RunCommand executes the given command with arguments and collects its output
func (r RealCommandRunner) RunCommand(ctx context.Context, stdin io.Reader, args []string) (stdout, stderr string, exitCode int, err error) {
	var stdoutBuf, stderrBuf bytes.Buffer
	exitCode, err = r.RunCommandStreams(ctx, stdin, &stdoutBuf, &stderrBuf, args)
	return stdoutBuf.String(), stderrBuf.String(), exitCode, err
}

// RunCommandStreams executes the given command, copying its output into stdout and stderr
func (r RealCommandRunner) RunCommandStreams(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) (int, error) {
	if len(args) < 1 {
		return 0, errors.New("no command provided")
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec // Arguments are built by the engine, not the user
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = 2 * time.Second
	}
	if stdin != nil {
		cmd.Stdin = stdin
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		var exitError *exec.ExitError
		if !errors.As(err, &exitError) {
			return 0, fmt.Errorf("running %s: %w", args[0], err)
		}
		return exitError.ExitCode(), nil
	}
	return 0, nil
}

// FileSystem defines the host file system operations a run needs
type FileSystem interface {
	MkdirTemp(dir, pattern string) (string, error)
	Chmod(path string, mode os.FileMode) error
	WriteFile(filename string, data []byte, perm os.FileMode) error
	RemoveAll(path string) error
}

// RealFileSystem implements FileSystem using actual file system operations
type RealFileSystem struct{}

func (RealFileSystem) MkdirTemp(dir, pattern string) (string, error) {
	return os.MkdirTemp(dir, pattern)
}

func (RealFileSystem) Chmod(path string, mode os.FileMode) error {
	return os.Chmod(path, mode)
}

func (RealFileSystem) WriteFile(filename string, data []byte, perm os.FileMode) error {
	return os.WriteFile(filename, data, perm)
}

func (RealFileSystem) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

// File permission constants. The workspace is shared with an unprivileged
// container user, so it is world-writable for the lifetime of the run.
const (
	WorkspacePermission = 0o777
	SourcePermission    = 0o644
	BytesPerKB          = 1024
	BytesPerMB          = 1024 * 1024
)

func internalErrorResult(err error) ExecutionResult {
	return ExecutionResult{
		ExitCode:   ExitCodeInternal,
		Stderr:     err.Error(),
		Diagnostic: DiagnosticInternalError,
	}
}

func timeoutResult(stdout, stderr string, elapsed time.Duration) ExecutionResult {
	if stderr != "" && stderr[len(stderr)-1] != '\n' {
		stderr += "\n"
	}
	return ExecutionResult{
		Stdout:          stdout,
		Stderr:          stderr + DiagnosticTimeLimitExceeded,
		ExitCode:        ExitCodeTimeout,
		ExecutionTimeMs: elapsed.Milliseconds(),
		TimedOut:        true,
		Diagnostic:      DiagnosticTimeLimitExceeded,
	}
}

func compileFailedResult(c compileResult) ExecutionResult {
	return ExecutionResult{
		Stdout:          c.Stdout,
		Stderr:          c.Stderr,
		ExitCode:        c.ExitCode,
		ExecutionTimeMs: c.Duration.Milliseconds(),
		Diagnostic:      DiagnosticCompilationFailed,
	}
}
