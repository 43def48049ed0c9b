// Package config holds the canvasd settings. Values come from defaults, then
// CANVAS_* environment variables, then command line flags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"pixelcanvas/internal/auth"
	"pixelcanvas/internal/canvas"
	"pixelcanvas/internal/credit"
	"pixelcanvas/internal/session"
)

// Config is the full server configuration.
type Config struct {
	Addr           string
	CanvasPath     string
	Width          int
	Height         int
	DatabaseURL    string
	AllowAnonymous bool
	Cooldown       time.Duration
	SessionTTL     time.Duration

	SendBuffer     int
	MaxMessageSize int64
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration

	Backup Backup

	LogLevel      string
	LogFormat     string
	// TraceExporter is "none" or "stdout".
	TraceExporter string
}

// Backup configures the S3 copy of the canvas file.
type Backup struct {
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string
	Interval time.Duration
}

// Enabled reports whether a bucket is configured.
func (b Backup) Enabled() bool {
	return b.Bucket != ""
}

// Default returns the built-in configuration.
func Default() Config {
	sc := session.DefaultConfig()
	return Config{
		Addr:           ":8080",
		CanvasPath:     "dots",
		Width:          canvas.Width,
		Height:         canvas.Height,
		AllowAnonymous: true,
		Cooldown:       credit.DefaultCooldown,
		SessionTTL:     auth.DefaultSessionTTL,
		SendBuffer:     sc.SendBuffer,
		MaxMessageSize: sc.MaxMessageSize,
		WriteWait:      sc.WriteWait,
		PongWait:       sc.PongWait,
		PingPeriod:     sc.PingPeriod,
		Backup: Backup{
			Prefix:   "canvas/",
			Region:   "us-east-1",
			Interval: 15 * time.Minute,
		},
		LogLevel:      "info",
		LogFormat:     "text",
		TraceExporter: "none",
	}
}

// FromEnv overlays environment variables on Default.
func FromEnv() (Config, error) {
	return FromLookup(os.LookupEnv)
}

// FromLookup overlays the variables found by lookup on Default.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	c := Default()
	e := envReader{lookup: lookup}

	c.Addr = e.str("CANVAS_ADDR", c.Addr)
	c.CanvasPath = e.str("CANVAS_PATH", c.CanvasPath)
	c.Width = e.int("CANVAS_WIDTH", c.Width)
	c.Height = e.int("CANVAS_HEIGHT", c.Height)
	c.DatabaseURL = e.str("DATABASE_URL", c.DatabaseURL)
	c.AllowAnonymous = e.bool("CANVAS_ALLOW_ANONYMOUS", c.AllowAnonymous)
	c.Cooldown = e.duration("CANVAS_COOLDOWN", c.Cooldown)
	c.SessionTTL = e.duration("CANVAS_SESSION_TTL", c.SessionTTL)
	c.SendBuffer = e.int("CANVAS_SEND_BUFFER", c.SendBuffer)
	c.MaxMessageSize = int64(e.int("CANVAS_MAX_MESSAGE_SIZE", int(c.MaxMessageSize)))
	c.WriteWait = e.duration("CANVAS_WRITE_WAIT", c.WriteWait)
	c.PongWait = e.duration("CANVAS_PONG_WAIT", c.PongWait)
	c.PingPeriod = e.duration("CANVAS_PING_PERIOD", c.PingPeriod)
	c.Backup.Bucket = e.str("CANVAS_BACKUP_BUCKET", c.Backup.Bucket)
	c.Backup.Prefix = e.str("CANVAS_BACKUP_PREFIX", c.Backup.Prefix)
	c.Backup.Region = e.str("CANVAS_BACKUP_REGION", c.Backup.Region)
	c.Backup.Endpoint = e.str("CANVAS_BACKUP_ENDPOINT", c.Backup.Endpoint)
	c.Backup.Interval = e.duration("CANVAS_BACKUP_INTERVAL", c.Backup.Interval)
	c.LogLevel = e.str("CANVAS_LOG_LEVEL", c.LogLevel)
	c.LogFormat = e.str("CANVAS_LOG_FORMAT", c.LogFormat)
	c.TraceExporter = e.str("CANVAS_TRACE_EXPORTER", c.TraceExporter)

	return c, e.err
}

type envReader struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *envReader) str(key, fallback string) string {
	if v, ok := e.lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func (e *envReader) int(key string, fallback int) int {
	v := e.str(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, err)
		return fallback
	}
	return n
}

func (e *envReader) bool(key string, fallback bool) bool {
	v := e.str(key, "")
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, err)
		return fallback
	}
	return b
}

func (e *envReader) duration(key string, fallback time.Duration) time.Duration {
	v := e.str(key, "")
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, err)
		return fallback
	}
	return d
}

func (e *envReader) fail(key string, err error) {
	e.err = errors.Join(e.err, fmt.Errorf("%s: %w", key, err))
}

// Validate checks that the configuration can run a server.
func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.CanvasPath == "" {
		errs = append(errs, errors.New("canvas path is required"))
	}
	if c.Width <= 0 || c.Height <= 0 {
		errs = append(errs, fmt.Errorf("invalid canvas size %dx%d", c.Width, c.Height))
	}
	if c.Cooldown <= 0 {
		errs = append(errs, errors.New("cooldown must be positive"))
	}
	if c.SendBuffer <= 0 {
		errs = append(errs, errors.New("send buffer must be positive"))
	}
	if c.PingPeriod >= c.PongWait {
		errs = append(errs, errors.New("ping period must be shorter than pong wait"))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	if c.TraceExporter != "none" && c.TraceExporter != "stdout" {
		errs = append(errs, fmt.Errorf("unknown trace exporter %q", c.TraceExporter))
	}
	return errors.Join(errs...)
}

// Dimensions returns the canvas size.
func (c Config) Dimensions() canvas.Dimensions {
	return canvas.Dimensions{Width: c.Width, Height: c.Height}
}

// Session returns the per-connection limits.
func (c Config) Session() session.Config {
	return session.Config{
		SendBuffer:     c.SendBuffer,
		MaxMessageSize: c.MaxMessageSize,
		WriteWait:      c.WriteWait,
		PongWait:       c.PongWait,
		PingPeriod:     c.PingPeriod,
	}
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return l, nil
}
