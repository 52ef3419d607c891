package cmd

import (
	"fmt"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/auth"
	"github.com/spf13/cobra"
)

const tokenLifetime = time.Hour

// newTokenCommand issues a bearer token signed with JWT_SECRET. It is meant
// for local testing against a running server.
func newTokenCommand(global *globalFlags) *cobra.Command {
	var (
		userID string
		role   string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a user id",
		Example: `  server token --user 01HYX3KQW7ERTV9XNBM2P8QJZF --role organizer
  curl -H "Authorization: Bearer $(server token --user ... )" localhost:5000/api/registrations/status/...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(global)
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			parsed, err := auth.ParseRole(role)
			if err != nil {
				return err
			}
			token, err := issueToken(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, userID, parsed)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id placed in the token subject")
	cmd.Flags().StringVar(&role, "role", "attendee", "role claim (attendee, organizer, admin)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func issueToken(secret, issuer, userID string, role auth.Role) (string, error) {
	manager := auth.NewJWTManager(secret, tokenLifetime, issuer)
	token, err := manager.Generate(userID, role)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}
