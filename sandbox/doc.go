// Package sandbox runs untrusted code under resource limits.
//
// A Registry maps language identifiers to LanguageProfiles. An Executor runs
// one ExecutionRequest against a profile and always produces an
// ExecutionResult: compile failures, timeouts and internal faults are
// reported in the result, never as errors.
//
// ContainerExecutor drives one short-lived environment per run through an
// Engine. DockerEngine talks to the Docker Engine API; PodmanEngine shells
// out to the podman CLI. LocalExecutor runs on the host without isolation
// and exists for development only.
//
// Usage:
//
//	executor, closeFn, err := sandbox.NewExecutor(logger, cfg)
//	runner := sandbox.NewRunner(sandbox.NewRegistry(cfg), executor, limiter.NewLocal(4), logger)
//	result, err := runner.Run(ctx, sandbox.ExecutionRequest{
//	    Language:   "python",
//	    SourceCode: "print(input())",
//	    Stdin:      "hello\n",
//	})
package sandbox
