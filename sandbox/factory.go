package sandbox

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/isdmx/codejudge/config"
)

// NewExecutor creates the executor selected by cfg.Sandbox.Backend. The
// returned close func releases backend resources such as the docker client.
func NewExecutor(logger *zap.Logger, cfg *config.Config) (Executor, func() error, error) {
	execConfig := ConfigFromApp(cfg)
	noop := func() error { return nil }

	switch cfg.Sandbox.Backend {
	case "docker":
		cli, err := NewDockerClient()
		if err != nil {
			return nil, nil, err
		}
		return NewContainerExecutor(logger, execConfig, NewDockerEngine(cli, logger)), cli.Close, nil
	case "podman":
		engine := NewPodmanEngine(logger, WithPodmanBinary(cfg.Sandbox.PodmanBinary))
		return NewContainerExecutor(logger, execConfig, engine), noop, nil
	case "local":
		if !cfg.Sandbox.EnableLocalBackend {
			return nil, nil, errors.New("local backend requires sandbox.enable_local_backend")
		}
		logger.Warn("using local sandbox backend: untrusted code runs unisolated on this host")
		return NewLocalExecutor(logger, execConfig), noop, nil
	default:
		return nil, nil, fmt.Errorf("unsupported backend: %s", cfg.Sandbox.Backend)
	}
}
