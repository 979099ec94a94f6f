package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	"go.uber.org/zap"
)

// DockerEngine implements Engine on the Docker Engine API. The wrapped
// client is safe for concurrent use and shared by all runs.
type DockerEngine struct {
	cli    *client.Client
	logger *zap.Logger
}

// NewDockerClient connects to the daemon described by DOCKER_HOST and friends
func NewDockerClient() (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return cli, nil
}

// NewDockerEngine wraps cli
func NewDockerEngine(cli *client.Client, logger *zap.Logger) *DockerEngine {
	return &DockerEngine{cli: cli, logger: logger}
}

// Create starts an idle container configured from spec
func (d *DockerEngine) Create(ctx context.Context, spec EnvironmentSpec) (string, error) {
	pidsLimit := spec.PidsLimit
	containerConfig := &container.Config{
		Image:           spec.Image,
		Entrypoint:      []string{"sleep"},
		Cmd:             []string{strconv.Itoa(spec.LifetimeSecs)},
		WorkingDir:      WorkspaceMountPath,
		User:            spec.User,
		Env:             envList(spec.Environment),
		NetworkDisabled: true,
		Labels:          map[string]string{"codejudge.sandbox": "true"},
	}
	hostConfig := &container.HostConfig{
		NetworkMode:    "none",
		ReadonlyRootfs: true,
		Binds:          []string{fmt.Sprintf("%s:%s:rw", spec.WorkspaceDir, WorkspaceMountPath)},
		Tmpfs:          map[string]string{"/tmp": "rw,nosuid,size=64m"},
		CapDrop:        []string{"ALL"},
		SecurityOpt:    []string{"no-new-privileges:true"},
		Resources: container.Resources{
			Memory:     spec.MemoryBytes,
			MemorySwap: spec.MemoryBytes, // equal to Memory: no swap
			CPUPeriod:  spec.CPUPeriod,
			CPUQuota:   spec.CPUQuota,
			PidsLimit:  &pidsLimit,
		},
	}

	resp, err := d.cli.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, spec.Name)
	if errdefs.IsNotFound(err) {
		if pullErr := d.pull(ctx, spec.Image); pullErr != nil {
			return "", pullErr
		}
		resp, err = d.cli.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, spec.Name)
	}
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}

	if err := d.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		if rmErr := d.Remove(context.WithoutCancel(ctx), resp.ID); rmErr != nil {
			d.logger.Warn("failed to remove container after start failure", zap.String("container", resp.ID), zap.Error(rmErr))
		}
		return "", fmt.Errorf("failed to start container: %w", err)
	}

	return resp.ID, nil
}

func (d *DockerEngine) pull(ctx context.Context, ref string) error {
	d.logger.Info("pulling sandbox image", zap.String("image", ref))
	rc, err := d.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	defer rc.Close()
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	return nil
}

// Exec runs command in the container. The attach stream is multiplexed;
// stdcopy splits it back into stdout and stderr.
func (d *DockerEngine) Exec(ctx context.Context, id string, command []string, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	created, err := d.cli.ContainerExecCreate(ctx, id, container.ExecOptions{
		Cmd:          command,
		WorkingDir:   WorkspaceMountPath,
		AttachStdin:  stdin != nil,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create exec: %w", err)
	}

	hijack, err := d.cli.ContainerExecAttach(ctx, created.ID, container.ExecStartOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to attach exec: %w", err)
	}
	defer hijack.Close()

	if stdin != nil {
		go func() {
			if _, err := io.Copy(hijack.Conn, stdin); err != nil {
				d.logger.Debug("stdin copy ended early", zap.String("container", id), zap.Error(err))
			}
			if err := hijack.CloseWrite(); err != nil {
				d.logger.Debug("failed to close exec stdin", zap.String("container", id), zap.Error(err))
			}
		}()
	}

	copied := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(stdout, stderr, hijack.Reader)
		copied <- err
	}()

	select {
	case err := <-copied:
		if err != nil {
			return 0, fmt.Errorf("failed to read exec output: %w", err)
		}
	case <-ctx.Done():
		hijack.Close()
		return 0, ctx.Err()
	}

	// The stream can close a moment before the daemon records the exit code.
	for attempt := 0; ; attempt++ {
		inspect, err := d.cli.ContainerExecInspect(ctx, created.ID)
		if err != nil {
			return 0, fmt.Errorf("failed to inspect exec: %w", err)
		}
		if !inspect.Running || attempt >= 50 {
			return inspect.ExitCode, nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// Stats reports the container's memory high-water mark. The stats API only
// carries one under cgroup v1, so the cgroup files are read first.
func (d *DockerEngine) Stats(ctx context.Context, id string) (statsResult, error) {
	var stdout, stderr bytes.Buffer
	exitCode, err := d.Exec(ctx, id, shellCommand(cgroupPeakScript), nil, &stdout, &stderr)
	if err == nil && exitCode == 0 {
		stats, parseErr := parseCgroupPeak(stdout.String())
		if parseErr == nil {
			return stats, nil
		}
		err = parseErr
	}
	d.logger.Debug("cgroup peak unavailable, using stats API",
		zap.String("container", id), zap.Int("exit_code", exitCode), zap.Error(err))

	return d.apiStats(ctx, id)
}

func (d *DockerEngine) apiStats(ctx context.Context, id string) (statsResult, error) {
	resp, err := d.cli.ContainerStatsOneShot(ctx, id)
	if err != nil {
		return statsResult{}, fmt.Errorf("failed to read container stats: %w", err)
	}
	defer resp.Body.Close()

	var stats statsResult
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return statsResult{}, fmt.Errorf("failed to decode container stats: %w", err)
	}
	return stats, nil
}

// Kill sends SIGKILL to the container
func (d *DockerEngine) Kill(ctx context.Context, id string) error {
	if err := d.cli.ContainerKill(ctx, id, "SIGKILL"); err != nil && !errdefs.IsNotFound(err) && !errdefs.IsConflict(err) {
		return fmt.Errorf("failed to kill container: %w", err)
	}
	return nil
}

// Remove force-removes the container and its anonymous volumes
func (d *DockerEngine) Remove(ctx context.Context, id string) error {
	err := d.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true, RemoveVolumes: true})
	if err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}
