// Command canvasd serves the collaborative pixel canvas.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"pixelcanvas/internal/adapter/memory"
	"pixelcanvas/internal/adapter/postgres"
	"pixelcanvas/internal/config"
	"pixelcanvas/internal/domain"
)

func main() {
	cfg, envErr := config.FromEnv()

	rootCmd := &cobra.Command{
		Use:   "canvasd",
		Short: "Real-time collaborative pixel canvas server",
		Long: `canvasd keeps a fixed-size pixel grid in a single file and shares it
with every connected browser over WebSocket. Registered users paint one
cell per cooldown window for free and spend credits in between.

Settings are read from CANVAS_* environment variables and DATABASE_URL;
flags take precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if envErr != nil {
				return fmt.Errorf("environment: %w", envErr)
			}
			return nil
		},
	}

	f := rootCmd.PersistentFlags()
	f.StringVar(&cfg.CanvasPath, "canvas", cfg.CanvasPath, "canvas file path")
	f.IntVar(&cfg.Width, "width", cfg.Width, "canvas width in cells")
	f.IntVar(&cfg.Height, "height", cfg.Height, "canvas height in cells")
	f.StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "PostgreSQL connection string; accounts live in memory when empty")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug|info|warn|error")
	f.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "text|json")
	f.StringVar(&cfg.TraceExporter, "trace-exporter", cfg.TraceExporter, "none|stdout")
	f.StringVar(&cfg.Backup.Bucket, "backup-bucket", cfg.Backup.Bucket, "S3 bucket for canvas backups")
	f.StringVar(&cfg.Backup.Prefix, "backup-prefix", cfg.Backup.Prefix, "object key prefix for backups")
	f.StringVar(&cfg.Backup.Region, "backup-region", cfg.Backup.Region, "S3 region")
	f.StringVar(&cfg.Backup.Endpoint, "backup-endpoint", cfg.Backup.Endpoint, "S3 compatible endpoint URL")

	rootCmd.AddCommand(
		serveCmd(&cfg),
		backupCmd(&cfg),
		initCmd(&cfg),
		grantCmd(&cfg),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	lvl, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger, nil
}

// repositories is the account storage selected by the configuration.
type repositories struct {
	users    domain.UserRepository
	credits  domain.CreditRepository
	granter  domain.CreditGranter
	sessions domain.SessionRepository
	close    func() error
}

func openRepositories(cfg *config.Config, logger *slog.Logger) (*repositories, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, accounts are kept in memory")
		db := memory.New()
		return &repositories{
			users:    db,
			credits:  db,
			granter:  db,
			sessions: memory.NewSessionRepo(db),
			close:    func() error { return nil },
		}, nil
	}

	db, err := postgres.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &repositories{
		users:    db,
		credits:  db,
		granter:  db,
		sessions: postgres.NewSessionRepo(db),
		close:    db.Close,
	}, nil
}
