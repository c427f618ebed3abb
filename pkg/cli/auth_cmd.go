package cli

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"sqlspeak-console/internal/identity"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authentication helpers",
	}

	cmd.AddCommand(newAuthDevTokenCmd())
	cmd.AddCommand(newAuthStatusCmd())
	return cmd
}

func newAuthDevTokenCmd() *cobra.Command {
	var (
		subject  string
		username string
		name     string
		audience string
		secret   string
		expires  time.Duration
	)

	cmd := &cobra.Command{
		Use:     "dev-token",
		Short:   "Generate a development token and save it to the active profile",
		Long:    "Generate an HS256 token carrying Entra-style identity claims, for query services running with development auth. The token is saved to the active profile.",
		Example: `  sqlspeak auth dev-token --subject 00000000-0000-0000-0000-000000000001 --username dev@example.com --secret dev-secret`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			now := time.Now()
			claims := jwt.MapClaims{
				"oid":                subject,
				"sub":                subject,
				"preferred_username": username,
				"iat":                now.Unix(),
				"exp":                now.Add(expires).Unix(),
			}
			if name != "" {
				claims["name"] = name
			}
			if audience != "" {
				claims["aud"] = audience
			}

			signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}

			cfg, err := LoadUserConfig()
			if err != nil {
				cfg = emptyUserConfig()
			}
			profileName := cfg.CurrentProfile
			if profileName == "" {
				profileName = "default"
				cfg.CurrentProfile = profileName
			}
			p := cfg.Profiles[profileName]
			p.Token = signed
			cfg.Profiles[profileName] = p
			if err := SaveUserConfig(cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), signed)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "Object ID of the user (oid and sub claims)")
	cmd.Flags().StringVar(&username, "username", "", "Sign-in name (preferred_username claim)")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&audience, "audience", "", "Audience claim")
	cmd.Flags().StringVar(&secret, "secret", "", "Signing secret (HS256)")
	cmd.Flags().DurationVar(&expires, "expires", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("secret")

	return cmd
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the account of the configured token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, _ := cmd.Root().PersistentFlags().GetString("token")
			store := identity.NewStaticAccountStore(token)
			account, ok := store.ActiveAccount(cmd.Context())
			if !ok {
				return errSignInRequired
			}

			var expiresAt string
			claims := jwt.MapClaims{}
			if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
				if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
					expiresAt = exp.UTC().Format(time.RFC3339)
				}
			}

			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]string{
					"id":         account.ID,
					"username":   account.Username,
					"name":       account.Name,
					"expires_at": expiresAt,
				})
			}
			return printDetail(cmd.OutOrStdout(), [][2]string{
				{"Account", account.Label()},
				{"ID", account.ID},
				{"Expires", firstNonEmpty(expiresAt, "-")},
			})
		},
	}
}
