package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/isdmx/codejudge/api"
	"github.com/isdmx/codejudge/config"
)

func newTokenCmd(configPath *string) *cobra.Command {
	var (
		userID string
		role   string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development identity token",
		Long: `Sign an identity token with auth.jwt_secret. Production tokens come from
the platform's identity service; this is for local testing only.

Examples:
  codejudge token --user alice
  codejudge token --user admin --role admin --ttl 1h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("auth.jwt_secret (or JWT_SECRET) is not set")
			}

			token, err := api.IssueToken(api.NewTokenAuth(cfg.Auth.JWTSecret), userID, role, ttl)
			if err != nil {
				return fmt.Errorf("signing token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "User ID placed in the user_id claim")
	cmd.Flags().StringVar(&role, "role", api.RoleUser, "Role placed in the role claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
