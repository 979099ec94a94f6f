package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/isdmx/codejudge/config"
	"github.com/isdmx/codejudge/limiter"
	"github.com/isdmx/codejudge/logger"
	"github.com/isdmx/codejudge/sandbox"
)

func newExecCmd(configPath *string) *cobra.Command {
	var (
		language    string
		stdinPath   string
		timeLimit   int
		memoryLimit int
	)

	cmd := &cobra.Command{
		Use:   "exec FILE",
		Short: "Run one source file in the sandbox and print the result",
		Long: `Run a source file through the configured sandbox backend and print the
execution result as JSON. Nothing is judged or stored.

Examples:
  codejudge exec --language python solution.py
  codejudge exec --language cpp --stdin input.txt --time-limit 2000 main.cpp`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			log, err := logger.NewFromConfig(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			code, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading source: %w", err)
			}
			var stdin []byte
			if stdinPath != "" {
				if stdin, err = os.ReadFile(stdinPath); err != nil {
					return fmt.Errorf("reading stdin file: %w", err)
				}
			}

			executor, closeFn, err := sandbox.NewExecutor(log, cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := closeFn(); err != nil {
					log.Warn("closing executor", zap.Error(err))
				}
			}()

			runner := sandbox.NewRunner(sandbox.NewRegistry(cfg), executor, limiter.NewLocal(1), log)
			result, err := runner.Run(cmd.Context(), sandbox.ExecutionRequest{
				SourceCode:    string(code),
				Language:      language,
				Stdin:         string(stdin),
				TimeLimitMs:   timeLimit,
				MemoryLimitMB: memoryLimit,
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().StringVarP(&language, "language", "l", "", "Language of the source file")
	cmd.Flags().StringVar(&stdinPath, "stdin", "", "File piped to the program's stdin")
	cmd.Flags().IntVar(&timeLimit, "time-limit", 0, "Wall-clock limit in ms (default from config)")
	cmd.Flags().IntVar(&memoryLimit, "memory-limit", 0, "Memory limit in MB (default from config)")
	_ = cmd.MarkFlagRequired("language")
	return cmd
}
