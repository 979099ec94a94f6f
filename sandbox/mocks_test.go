package sandbox

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

type cmdResult struct {
	stdout   string
	stderr   string
	exitCode int
	err      error
}

// MockCommandRunner implements CommandRunner for testing. Results are keyed
// by the podman subcommand (args[1]).
type MockCommandRunner struct {
	mu      sync.Mutex
	calls   [][]string
	stdins  []string
	results map[string]cmdResult
}

func (m *MockCommandRunner) RunCommand(_ context.Context, stdin io.Reader, args []string) (stdout, stderr string, exitCode int, err error) {
	input := ""
	if stdin != nil {
		b, readErr := io.ReadAll(stdin)
		if readErr != nil {
			return "", "", 0, readErr
		}
		input = string(b)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, args)
	m.stdins = append(m.stdins, input)

	if len(args) > 1 {
		if r, ok := m.results[args[1]]; ok {
			return r.stdout, r.stderr, r.exitCode, r.err
		}
	}
	return "", "", 0, nil
}

func (m *MockCommandRunner) RunCommandStreams(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) (int, error) {
	out, errOut, exitCode, err := m.RunCommand(ctx, stdin, args)
	if _, wErr := io.WriteString(stdout, out); wErr != nil {
		return 0, wErr
	}
	if _, wErr := io.WriteString(stderr, errOut); wErr != nil {
		return 0, wErr
	}
	return exitCode, err
}

func (m *MockCommandRunner) lastCall() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	return m.calls[len(m.calls)-1]
}

// recordingFS is the real file system with bookkeeping of created and removed dirs.
type recordingFS struct {
	RealFileSystem
	mu       sync.Mutex
	created  []string
	removed  []string
	writeErr error
}

func (r *recordingFS) MkdirTemp(dir, pattern string) (string, error) {
	path, err := r.RealFileSystem.MkdirTemp(dir, pattern)
	if err == nil {
		r.mu.Lock()
		r.created = append(r.created, path)
		r.mu.Unlock()
	}
	return path, err
}

func (r *recordingFS) WriteFile(filename string, data []byte, perm os.FileMode) error {
	if r.writeErr != nil {
		return r.writeErr
	}
	return r.RealFileSystem.WriteFile(filename, data, perm)
}

func (r *recordingFS) RemoveAll(path string) error {
	r.mu.Lock()
	r.removed = append(r.removed, path)
	r.mu.Unlock()
	return r.RealFileSystem.RemoveAll(path)
}

func (r *recordingFS) allRemoved() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.created) == 0 {
		return false
	}
	for _, c := range r.created {
		found := false
		for _, d := range r.removed {
			if c == d {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	return true
}

type execFunc func(ctx context.Context, command []string, stdin io.Reader, stdout, stderr io.Writer) (int, error)

// fakeEngine is an in-memory Engine.
type fakeEngine struct {
	mu         sync.Mutex
	createErr  error
	createFn   func(spec EnvironmentSpec)
	exec       execFunc
	stats      statsResult
	statsErr   error
	removeErr  error
	removeHang chan struct{}

	specs []EnvironmentSpec
	calls []string
}

func (f *fakeEngine) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeEngine) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeEngine) Create(_ context.Context, spec EnvironmentSpec) (string, error) {
	f.record("create")
	if f.createFn != nil {
		f.createFn(spec)
	}
	if f.createErr != nil {
		return "", f.createErr
	}
	f.mu.Lock()
	f.specs = append(f.specs, spec)
	f.mu.Unlock()
	return "env-1", nil
}

func (f *fakeEngine) Exec(ctx context.Context, _ string, command []string, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	f.record("exec")
	if f.exec == nil {
		return 0, nil
	}
	return f.exec(ctx, command, stdin, stdout, stderr)
}

func (f *fakeEngine) Stats(context.Context, string) (statsResult, error) {
	f.record("stats")
	return f.stats, f.statsErr
}

func (f *fakeEngine) Kill(context.Context, string) error {
	f.record("kill")
	return nil
}

func (f *fakeEngine) Remove(context.Context, string) error {
	f.record("remove")
	if f.removeHang != nil {
		<-f.removeHang
	}
	return f.removeErr
}

func (f *fakeEngine) lastSpec() EnvironmentSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.specs[len(f.specs)-1]
}

func isCompile(command []string, profile LanguageProfile) bool {
	return len(command) == 3 && command[2] == profile.CompileCommand
}

func testExecConfig() *Config {
	return &Config{
		DefaultTimeLimitMs: 1000,
		DefaultMemoryMB:    64,
		CPUQuota:           50000,
		CPUPeriod:          100000,
		PidsLimit:          16,
		CompileTimeout:     time.Second,
		MaxOutputBytes:     1 << 20,
		TeardownGrace:      100 * time.Millisecond,
		User:               "nobody",
	}
}

func readAll(r io.Reader) string {
	if r == nil {
		return ""
	}
	var sb strings.Builder
	_, _ = io.Copy(&sb, r)
	return sb.String()
}
