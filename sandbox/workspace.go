package sandbox

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// workspace is the host-side scratch directory of one run.
type workspace struct {
	Dir string
	fs  FileSystem
	log *zap.Logger
}

// newWorkspace creates the directory and writes the profile's source file.
// On error nothing is left on disk.
func newWorkspace(fs FileSystem, log *zap.Logger, profile LanguageProfile, code string) (*workspace, error) {
	dir, err := fs.MkdirTemp("", "codejudge-exec-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	ws := &workspace{Dir: dir, fs: fs, log: log}

	if err := fs.Chmod(dir, WorkspacePermission); err != nil {
		ws.Remove()
		return nil, fmt.Errorf("failed to open workspace permissions: %w", err)
	}

	sourcePath := filepath.Join(dir, profile.SourceFilename)
	if err := fs.WriteFile(sourcePath, []byte(profile.Source(code)), SourcePermission); err != nil {
		ws.Remove()
		return nil, fmt.Errorf("failed to write source file: %w", err)
	}

	return ws, nil
}

// Remove deletes the workspace. Failures are logged, never returned.
func (w *workspace) Remove() {
	if err := w.fs.RemoveAll(w.Dir); err != nil {
		w.log.Error("failed to remove workspace", zap.String("path", w.Dir), zap.Error(err))
	}
}

// OutputTruncatedNote is appended to stderr when a stream hit the output cap
const OutputTruncatedNote = "[output truncated]"

// outputBuffer is a goroutine-safe sink that keeps at most limit bytes and
// drops the rest, so a chatty program cannot exhaust host memory.
type outputBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func newOutputBuffer(limit int) *outputBuffer {
	return &outputBuffer{limit: limit}
}

func (b *outputBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(p)
	if b.limit > 0 {
		room := b.limit - b.buf.Len()
		if room <= 0 {
			b.truncated = true
			return n, nil
		}
		if len(p) > room {
			p = p[:room]
			b.truncated = true
		}
	}
	b.buf.Write(p)
	return n, nil
}

func (b *outputBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *outputBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}

// captured returns both streams, noting on stderr if either was cut short
func captured(stdout, stderr *outputBuffer) (string, string) {
	out, errOut := stdout.String(), stderr.String()
	if stdout.Truncated() || stderr.Truncated() {
		if errOut != "" && !strings.HasSuffix(errOut, "\n") {
			errOut += "\n"
		}
		errOut += OutputTruncatedNote
	}
	return out, errOut
}
