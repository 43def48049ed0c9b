package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"pixelcanvas/internal/auth"
	"pixelcanvas/internal/backup"
	"pixelcanvas/internal/canvas"
	"pixelcanvas/internal/config"
	"pixelcanvas/internal/credit"
	"pixelcanvas/internal/server"
	"pixelcanvas/internal/session"
)

const (
	shutdownTimeout   = 10 * time.Second
	sessionPurgeEvery = time.Hour
	readHeaderTimeout = 10 * time.Second
)

func serveCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the canvas server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	f.BoolVar(&cfg.AllowAnonymous, "allow-anonymous", cfg.AllowAnonymous, "let unauthenticated viewers watch the canvas")
	f.DurationVar(&cfg.Cooldown, "cooldown", cfg.Cooldown, "free paint window")
	f.DurationVar(&cfg.SessionTTL, "session-ttl", cfg.SessionTTL, "login session lifetime")
	f.IntVar(&cfg.SendBuffer, "send-buffer", cfg.SendBuffer, "queued frames per connection before it is dropped")
	f.Int64Var(&cfg.MaxMessageSize, "max-message-size", cfg.MaxMessageSize, "largest accepted client frame in bytes")
	f.DurationVar(&cfg.WriteWait, "write-wait", cfg.WriteWait, "deadline for one frame write")
	f.DurationVar(&cfg.PongWait, "pong-wait", cfg.PongWait, "time allowed between pongs")
	f.DurationVar(&cfg.PingPeriod, "ping-period", cfg.PingPeriod, "heartbeat ping interval")
	f.DurationVar(&cfg.Backup.Interval, "backup-interval", cfg.Backup.Interval, "time between canvas backups")

	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
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

	repos, err := openRepositories(cfg, logger)
	if err != nil {
		return err
	}
	defer repos.close()

	authSvc := auth.NewService(repos.users, repos.sessions, cfg.SessionTTL)
	limiter := credit.NewLimiter(repos.credits, credit.WithCooldown(cfg.Cooldown))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	tp, err := server.NewTracerProvider(cfg.TraceExporter, os.Stdout)
	if err != nil {
		return err
	}
	otel.SetTracerProvider(tp)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("trace provider shutdown", "err", err)
		}
	}()

	gin.SetMode(gin.ReleaseMode)
	hub := session.NewHub()
	srv := server.New(store, hub, authSvc, limiter, server.Options{
		AllowAnonymous: cfg.AllowAnonymous,
		Session:        cfg.Session(),
		Logger:         logger,
		Registry:       reg,
		TracerProvider: tp,
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Backup.Enabled() {
		client, err := backup.NewClient(cfg.Backup.Region, cfg.Backup.Endpoint)
		if err != nil {
			return err
		}
		uploader := backup.NewUploader(client, store, cfg.Backup.Bucket, cfg.Backup.Prefix, logger)
		go uploader.Run(ctx, cfg.Backup.Interval)
	}

	go func() {
		t := time.NewTicker(sessionPurgeEvery)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				if err := authSvc.PurgeExpired(ctx); err != nil {
					logger.Error("purge expired sessions", "err", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("canvas server listening",
			"addr", cfg.Addr,
			"canvas", cfg.CanvasPath,
			"width", cfg.Width,
			"height", cfg.Height,
		)
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "err", err)
	}
	logger.Info("sessions closed", "count", hub.CloseAll())
	return nil
}
