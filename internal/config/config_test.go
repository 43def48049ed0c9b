package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func lookupFrom(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if c.Width != 1920 || c.Height != 1080 {
		t.Fatalf("default size = %dx%d", c.Width, c.Height)
	}
	if c.Cooldown != 12*time.Hour {
		t.Fatalf("default cooldown = %v", c.Cooldown)
	}
	if c.Backup.Enabled() {
		t.Fatal("backup should be disabled by default")
	}
}

func TestFromLookup(t *testing.T) {
	c, err := FromLookup(lookupFrom(map[string]string{
		"CANVAS_ADDR":            ":9000",
		"CANVAS_WIDTH":           "64",
		"CANVAS_HEIGHT":          "32",
		"DATABASE_URL":           "postgres://x",
		"CANVAS_ALLOW_ANONYMOUS": "false",
		"CANVAS_COOLDOWN":        "5m",
		"CANVAS_BACKUP_BUCKET":   "snapshots",
		"CANVAS_PATH":            "",
		"CANVAS_TRACE_EXPORTER":  "stdout",
	}))
	if err != nil {
		t.Fatalf("FromLookup: %v", err)
	}
	if c.Addr != ":9000" || c.Width != 64 || c.Height != 32 {
		t.Fatalf("unexpected config %+v", c)
	}
	if c.DatabaseURL != "postgres://x" || c.AllowAnonymous || c.Cooldown != 5*time.Minute {
		t.Fatalf("unexpected config %+v", c)
	}
	if c.CanvasPath != "dots" {
		t.Fatalf("empty variable should keep the default, got %q", c.CanvasPath)
	}
	if !c.Backup.Enabled() {
		t.Fatal("backup should be enabled")
	}
	if c.TraceExporter != "stdout" {
		t.Fatalf("trace exporter = %q", c.TraceExporter)
	}
}

func TestFromLookupReportsBadValues(t *testing.T) {
	_, err := FromLookup(lookupFrom(map[string]string{
		"CANVAS_WIDTH":    "wide",
		"CANVAS_COOLDOWN": "soon",
	}))
	if err == nil {
		t.Fatal("expected an error")
	}
	for _, key := range []string{"CANVAS_WIDTH", "CANVAS_COOLDOWN"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not mention %s", err, key)
		}
	}
}

func TestValidate(t *testing.T) {
	c := Default()
	c.Width = 0
	c.PingPeriod = c.PongWait
	c.LogFormat = "xml"
	c.TraceExporter = "jaeger"
	err := c.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"canvas size", "ping period", "log format", "trace exporter"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{"debug": slog.LevelDebug, "INFO": slog.LevelInfo, "warn": slog.LevelWarn} {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("ParseLevel(loud) should fail")
	}
}
