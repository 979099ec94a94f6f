package sandbox

import (
	"context"
	"io"
)

// WorkspaceMountPath is where the host workspace appears inside an environment.
const WorkspaceMountPath = "/workspace"

// EnvironmentSpec is the isolation contract of one environment.
type EnvironmentSpec struct {
	Name         string
	Image        string
	WorkspaceDir string
	Environment  map[string]string
	User         string
	MemoryBytes  int64
	CPUQuota     int64
	CPUPeriod    int64
	PidsLimit    int64
	// LifetimeSecs bounds PID 1, so a leaked environment exits on its own.
	LifetimeSecs int
}

// Engine is the container runtime seen by ContainerExecutor. Implementations
// must be safe for concurrent use; one Engine serves every run.
type Engine interface {
	// Create starts an idle environment and returns its ID.
	Create(ctx context.Context, spec EnvironmentSpec) (string, error)
	// Exec runs command in the workspace of environment id, feeding stdin and
	// demultiplexing the process output into stdout and stderr.
	Exec(ctx context.Context, id string, command []string, stdin io.Reader, stdout, stderr io.Writer) (int, error)
	// Stats samples resource usage of a live environment.
	Stats(ctx context.Context, id string) (statsResult, error)
	// Kill forcibly stops every process in the environment.
	Kill(ctx context.Context, id string) error
	// Remove deletes the environment, killing it first if needed.
	Remove(ctx context.Context, id string) error
}

func shellCommand(cmd string) []string {
	return []string{"sh", "-c", cmd}
}
