package cli

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sqlspeak-console/internal/app"
	"sqlspeak-console/internal/config"
)

func newServeCmd() *cobra.Command {
	var (
		envFile string
		listen  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the browser console",
		Long: `Run the browser console. Configuration is read from the environment
(QUERY_API_URL, PUBLIC_URL, AZURE_TENANT_ID, AZURE_CLIENT_ID, AZURE_API_SCOPE, ...)
after loading the optional env file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(envFile); err != nil {
				return err
			}
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			if cmd.Flags().Changed("listen") {
				cfg.ListenAddr = listen
			}

			logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
			slog.SetDefault(logger)
			for _, w := range cfg.Warnings {
				logger.Warn(w)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer cancel()

			a, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			return a.Serve(ctx)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", ".env", "Env file loaded before reading the environment")
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (overrides LISTEN_ADDR)")

	return cmd
}
