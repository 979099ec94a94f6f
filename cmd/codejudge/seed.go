package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/isdmx/codejudge/config"
	"github.com/isdmx/codejudge/domain"
	"github.com/isdmx/codejudge/logger"
	"github.com/isdmx/codejudge/store"
	"github.com/isdmx/codejudge/store/seed"
)

func newSeedCmd(configPath *string) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load problem fixtures into the store",
		Long: `Insert or update problems and their test cases. Without --file the
built-in fixtures are loaded. Seeding is idempotent: problem IDs derive from
their slugs.

Examples:
  codejudge seed
  codejudge seed --file problems.yaml`,
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

			var problems []domain.Problem
			if file != "" {
				problems, err = seed.LoadFile(file)
			} else {
				problems, err = seed.Default()
			}
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			st, err := store.Open(ctx, cfg)
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer st.Close()

			if err := seed.Apply(ctx, st, log, problems); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d problems\n", len(problems))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML fixture file (default: built-in fixtures)")
	return cmd
}
