package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Chirraaa/gymbros/internal/auth"
	"github.com/Chirraaa/gymbros/internal/config"
)

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().String("subject", "", "User ID to issue the token for")
	tokenCmd.Flags().String("scopes", auth.ScopeWorkoutsRead+","+auth.ScopeWorkoutsWrite, "Comma separated scopes")
	tokenCmd.Flags().Duration("ttl", time.Hour, "Token lifetime")
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Sign a development bearer token with $JWT_SECRET",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		subject, _ := cmd.Flags().GetString("subject")
		rawScopes, _ := cmd.Flags().GetString("scopes")
		ttl, _ := cmd.Flags().GetDuration("ttl")
		if subject == "" {
			return errors.New("--subject is required")
		}
		if ttl <= 0 {
			return errors.New("--ttl must be positive")
		}

		cfg := config.Load()
		token, err := auth.Issue(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, subject, splitList(rawScopes), ttl)
		if err != nil {
			return fmt.Errorf("sign token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}
