package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "codejudge",
		Short: "codejudge - sandboxed code execution and judging",
		Long: `codejudge executes untrusted source code in isolated containers and
judges it against problem test cases.

Configuration is read from config.yaml (or --config) and CODEJUDGE_* environment
variables.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to the config file")

	root.AddCommand(
		newServeCmd(&configPath),
		newExecCmd(&configPath),
		newSeedCmd(&configPath),
		newTokenCmd(&configPath),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
