package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"pixelcanvas/internal/backup"
	"pixelcanvas/internal/canvas"
	"pixelcanvas/internal/config"
)

func initCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create an empty canvas file",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := canvas.Open(cfg.CanvasPath, cfg.Dimensions())
			if err != nil {
				return err
			}
			defer store.Close()
			fmt.Printf("canvas %s ready (%dx%d, %d bytes)\n", store.Path(), cfg.Width, cfg.Height, cfg.Dimensions().FileSize())
			return nil
		},
	}
}

func backupCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Upload the canvas file to S3 once",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cfg.Backup.Enabled() {
				return errors.New("no backup bucket configured")
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			store, err := canvas.Open(cfg.CanvasPath, cfg.Dimensions())
			if err != nil {
				return err
			}
			defer store.Close()

			client, err := backup.NewClient(cfg.Backup.Region, cfg.Backup.Endpoint)
			if err != nil {
				return err
			}
			key, err := backup.NewUploader(client, store, cfg.Backup.Bucket, cfg.Backup.Prefix, logger).Backup(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("uploaded s3://%s/%s\n", cfg.Backup.Bucket, key)
			return nil
		},
	}
}

func grantCmd(cfg *config.Config) *cobra.Command {
	var (
		username string
		credits  int
	)
	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Add paint credits to a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.DatabaseURL == "" {
				return errors.New("grant needs a database; set DATABASE_URL or --database-url")
			}
			if credits <= 0 {
				return errors.New("--credits must be positive")
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			repos, err := openRepositories(cfg, logger)
			if err != nil {
				return err
			}
			defer repos.close()

			ctx := cmd.Context()
			user, err := repos.users.GetByUsername(ctx, username)
			if err != nil {
				return fmt.Errorf("user %q: %w", username, err)
			}
			if err := repos.granter.AddCredits(ctx, user.ID, credits); err != nil {
				return err
			}
			fmt.Printf("granted %d credits to %s\n", credits, user.Username)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "user", "", "username")
	cmd.Flags().IntVar(&credits, "credits", 1, "credits to add")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
