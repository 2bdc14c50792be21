package cli

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/evcraddock/checklist-casa/internal/config"
	"github.com/evcraddock/checklist-casa/internal/email"
	"github.com/evcraddock/checklist-casa/internal/logging"
	"github.com/evcraddock/checklist-casa/internal/media"
	"github.com/evcraddock/checklist-casa/internal/metrics"
	"github.com/evcraddock/checklist-casa/internal/web"
)

func newServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web UI and API",
		Long:  "Start the HTTP server for the web UI and the JSON API. Settings come from CASA_* environment variables or a .env file.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "port to listen on (default: CASA_PORT or 8080)")

	return cmd
}

func runServe(cmd *cobra.Command, port int) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if port != 0 {
		cfg.Port = port
	}

	logging.Setup(cfg.Auth.DevMode)

	database, err := openDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer closeDB(database)

	store, err := media.NewStore(cfg.MediaDir, cfg.MaxUploadBytes)
	if err != nil {
		return err
	}

	if !cfg.Auth.DevMode && !cfg.SMTP.IsConfigured() {
		slog.Warn("SMTP is not configured; sign-in links and invitations cannot be delivered")
	}

	opts := web.Options{
		Auth:        cfg.Auth,
		Mailer:      email.NewSender(cfg.SMTP, cfg.Auth.DevMode),
		Media:       store,
		DraftSecret: cfg.DraftSecret,
		DraftTTL:    cfg.DraftTTL,
	}
	if cfg.MetricsEnabled {
		opts.Metrics = metrics.New()
	}

	srv, err := web.NewServer(database, opts)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Debug("configuration loaded", "base_url", cfg.Auth.BaseURL, "media_dir", cfg.MediaDir, "metrics", cfg.MetricsEnabled)
	return srv.ListenAndServe(ctx, cfg.Port)
}
