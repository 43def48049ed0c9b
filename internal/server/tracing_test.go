package server

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestNewTracerProviderStdout(t *testing.T) {
	var buf bytes.Buffer
	tp, err := NewTracerProvider(TraceExporterStdout, &buf)
	if err != nil {
		t.Fatalf("NewTracerProvider: %v", err)
	}
	_, span := tp.Tracer(tracerName).Start(context.Background(), "canvas.move_cursor")
	span.End()
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "canvas.move_cursor") {
		t.Fatalf("exported spans = %q", buf.String())
	}
}

func TestNewTracerProviderNone(t *testing.T) {
	tp, err := NewTracerProvider(TraceExporterNone, nil)
	if err != nil {
		t.Fatalf("NewTracerProvider: %v", err)
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestNewTracerProviderUnknown(t *testing.T) {
	if _, err := NewTracerProvider("zipkin", nil); err == nil {
		t.Fatal("expected an error for an unknown exporter")
	}
}
