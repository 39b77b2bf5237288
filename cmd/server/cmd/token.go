package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/verisend/server/internal/auth"
)

var (
	tokenSubject string
	tokenRole    string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Generate an admin JWT",
	Long: `Generate a signed JWT using the configured AUTH_SECRET.

Useful for scripting against the admin API without going through the
login endpoint.

Examples:
  server token
  server token --subject ci-bot --role admin`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("config error: %w", err)
		}

		manager := auth.NewJWTManager(cfg.Auth.Secret, cfg.Auth.TokenExpiry, cfg.Auth.Issuer)
		token, err := manager.Generate(tokenSubject, tokenRole)
		if err != nil {
			return fmt.Errorf("generate token: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "admin", "token subject")
	tokenCmd.Flags().StringVar(&tokenRole, "role", "admin", "token role claim")
}
