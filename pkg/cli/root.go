// Package cli implements the sqlspeak command: the console server plus
// headless access to the query service for scripts and terminals.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"sqlspeak-console/internal/domain"
	"sqlspeak-console/internal/identity"
	"sqlspeak-console/internal/queryclient"
)

var (
	version = "dev"
	commit  = "none"
)

const defaultHost = "http://127.0.0.1:8000"

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		output, _ := rootCmd.PersistentFlags().GetString("output")
		if output == "json" {
			_ = printJSON(os.Stdout, errorObject(err))
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func errorObject(err error) map[string]interface{} {
	errObj := map[string]interface{}{
		"error": err.Error(),
	}
	var svcErr *domain.ServiceError
	if errors.As(err, &svcErr) {
		errObj["http_status"] = svcErr.StatusCode
	}
	if errors.Is(err, errSignInRequired) {
		errObj["code"] = "SIGN_IN_REQUIRED"
	}
	return errObj
}

// settings are the connection values resolved from flags, environment and
// the active profile.
type settings struct {
	Host         string
	Token        string
	Output       string
	DataSource   string
	QueryProfile string
}

// client returns a query service client for the resolved host.
func (s *settings) client() *queryclient.Client {
	return queryclient.New(s.Host, queryclient.Options{})
}

// credentials returns a provider handing out the configured token. Without
// a token it tells the user where to sign in instead of moving a browser.
func (s *settings) credentials(notice io.Writer) *identity.Provider {
	store := identity.NewStaticAccountStore(s.Token)
	return identity.NewProvider(
		store,
		store,
		&identity.NoticeRedirector{Out: notice, SignInURL: s.Host},
		nil,
		quietLogger(),
	)
}

func newRootCmd() *cobra.Command {
	var (
		s       settings
		profile string
	)

	rootCmd := &cobra.Command{
		Use:           "sqlspeak",
		Short:         "SQL-Speak console",
		Long:          "Ask a SQL-Speak query service questions in plain language, from the browser console or the terminal.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadUserConfig()
			if err != nil {
				// Config file is optional
				cfg = emptyUserConfig()
			}
			p, err := cfg.ActiveProfile(profile)
			if err != nil {
				return err
			}

			// Apply precedence: flag > env > profile > default
			resolve(cmd, "host", &s.Host, "SQLSPEAK_HOST", p.Host)
			resolve(cmd, "token", &s.Token, "SQLSPEAK_TOKEN", p.Token)
			resolve(cmd, "output", &s.Output, "SQLSPEAK_OUTPUT", p.Output)
			s.DataSource = p.DataSource
			s.QueryProfile = p.QueryProfile

			return validateOutputFormat(s.Output)
		},
	}

	rootCmd.PersistentFlags().StringVar(&s.Host, "host", defaultHost, "Query service URL")
	rootCmd.PersistentFlags().StringVar(&s.Token, "token", "", "Bearer token for the query service")
	rootCmd.PersistentFlags().StringVarP(&s.Output, "output", "o", "table", "Output format (table, json)")
	rootCmd.PersistentFlags().StringVarP(&profile, "profile", "p", "", "Config profile to use")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newQueryCmd(&s))
	rootCmd.AddCommand(newHistoryCmd(&s))
	rootCmd.AddCommand(newMeCmd(&s))
	rootCmd.AddCommand(newSchemaCmd(&s))
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newCompletionCmd())

	return rootCmd
}

// resolve fills *dst from the environment or the profile unless the flag
// was given explicitly.
func resolve(cmd *cobra.Command, flag string, dst *string, envKey, profileVal string) {
	if cmd.Flags().Changed(flag) {
		return
	}
	if v := os.Getenv(envKey); v != "" {
		*dst = v
	} else if profileVal != "" {
		*dst = profileVal
	}
}

func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			default:
				return fmt.Errorf("unsupported shell: %s", args[0])
			}
		},
	}
}
