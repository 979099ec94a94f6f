package sandbox

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// PodmanEngine implements Engine by driving the podman CLI. Each call is an
// independent process, so the engine is safe for concurrent use.
type PodmanEngine struct {
	logger    *zap.Logger
	binary    string
	cmdRunner CommandRunner
}

// PodmanEngineOption defines a functional option for PodmanEngine
type PodmanEngineOption func(*PodmanEngine)

// WithPodmanCommandRunner sets the CommandRunner for PodmanEngine
func WithPodmanCommandRunner(cmdRunner CommandRunner) PodmanEngineOption {
	return func(p *PodmanEngine) {
		p.cmdRunner = cmdRunner
	}
}

// WithPodmanBinary overrides the podman executable
func WithPodmanBinary(binary string) PodmanEngineOption {
	return func(p *PodmanEngine) {
		if binary != "" {
			p.binary = binary
		}
	}
}

// NewPodmanEngine creates a new PodmanEngine with default implementations and optional interfaces
func NewPodmanEngine(logger *zap.Logger, opts ...PodmanEngineOption) *PodmanEngine {
	engine := &PodmanEngine{
		logger:    logger,
		binary:    "podman",
		cmdRunner: &RealCommandRunner{},
	}

	for _, opt := range opts {
		opt(engine)
	}

	return engine
}

// Create starts an idle container with the isolation flags of spec
func (p *PodmanEngine) Create(ctx context.Context, spec EnvironmentSpec) (string, error) {
	args := []string{
		p.binary, "run", "--detach",
		"--name", spec.Name,
		"--label", "codejudge.sandbox=true",
		"--network", "none",
		"--read-only",
		"--tmpfs", "/tmp:rw,nosuid,size=64m",
		"--memory", strconv.FormatInt(spec.MemoryBytes, 10),
		"--memory-swap", strconv.FormatInt(spec.MemoryBytes, 10),
		"--cpu-period", strconv.FormatInt(spec.CPUPeriod, 10),
		"--cpu-quota", strconv.FormatInt(spec.CPUQuota, 10),
		"--pids-limit", strconv.FormatInt(spec.PidsLimit, 10),
		"--security-opt", "no-new-privileges",
		"--cap-drop", "ALL",
		"--user", spec.User,
		"-v", fmt.Sprintf("%s:%s:rw", spec.WorkspaceDir, WorkspaceMountPath),
		"--workdir", WorkspaceMountPath,
	}
	for _, kv := range envList(spec.Environment) {
		args = append(args, "-e", kv)
	}
	args = append(args, "--entrypoint", "sleep", spec.Image, strconv.Itoa(spec.LifetimeSecs))

	stdout, stderr, exitCode, err := p.cmdRunner.RunCommand(ctx, nil, args)
	if err != nil {
		return "", fmt.Errorf("failed to run podman: %w", err)
	}
	if exitCode != 0 {
		return "", fmt.Errorf("podman run exited with %d: %s", exitCode, strings.TrimSpace(stderr))
	}

	id := strings.TrimSpace(stdout)
	if id == "" {
		return "", fmt.Errorf("podman run returned no container id")
	}
	return id, nil
}

// Exec runs command inside the container. podman keeps the two streams on
// separate pipes, so they are streamed straight into the caller's sinks.
func (p *PodmanEngine) Exec(ctx context.Context, id string, command []string, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	args := []string{p.binary, "exec"}
	if stdin != nil {
		args = append(args, "--interactive")
	}
	args = append(args, "--workdir", WorkspaceMountPath, id)
	args = append(args, command...)

	exitCode, err := p.cmdRunner.RunCommandStreams(ctx, stdin, stdout, stderr, args)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, fmt.Errorf("failed to exec in container: %w", err)
	}
	return exitCode, nil
}

// cgroupPeakScript prints the memory high-water mark under cgroup v2 or v1.
const cgroupPeakScript = "cat /sys/fs/cgroup/memory.peak 2>/dev/null || " +
	"cat /sys/fs/cgroup/memory/memory.max_usage_in_bytes 2>/dev/null || " +
	"cat /sys/fs/cgroup/memory.current"

// Stats reads the container's memory high-water mark from its cgroup
func (p *PodmanEngine) Stats(ctx context.Context, id string) (statsResult, error) {
	stdout, stderr, exitCode, err := p.cmdRunner.RunCommand(ctx, nil, []string{p.binary, "exec", id, "sh", "-c", cgroupPeakScript})
	if err != nil {
		return statsResult{}, fmt.Errorf("failed to read cgroup stats: %w", err)
	}
	if exitCode != 0 {
		return statsResult{}, fmt.Errorf("reading cgroup stats exited with %d: %s", exitCode, strings.TrimSpace(stderr))
	}

	return parseCgroupPeak(stdout)
}

// parseCgroupPeak reads the output of cgroupPeakScript
func parseCgroupPeak(out string) (statsResult, error) {
	peak, err := strconv.ParseUint(strings.TrimSpace(out), 10, 64)
	if err != nil {
		return statsResult{}, fmt.Errorf("failed to parse cgroup stats %q: %w", out, err)
	}

	var stats statsResult
	stats.MemoryStats.MaxUsage = peak
	return stats, nil
}

// Kill sends SIGKILL to the container
func (p *PodmanEngine) Kill(ctx context.Context, id string) error {
	return p.simple(ctx, "kill", []string{p.binary, "kill", "--signal", "KILL", id})
}

// Remove force-removes the container without a stop grace period
func (p *PodmanEngine) Remove(ctx context.Context, id string) error {
	return p.simple(ctx, "rm", []string{p.binary, "rm", "--force", "--time", "0", id})
}

func (p *PodmanEngine) simple(ctx context.Context, verb string, args []string) error {
	_, stderr, exitCode, err := p.cmdRunner.RunCommand(ctx, nil, args)
	if err != nil {
		return fmt.Errorf("failed to run podman %s: %w", verb, err)
	}
	if exitCode != 0 {
		msg := strings.TrimSpace(stderr)
		if strings.Contains(msg, "no such container") || strings.Contains(msg, "not running") {
			return nil
		}
		return fmt.Errorf("podman %s exited with %d: %s", verb, exitCode, msg)
	}
	return nil
}
