package server

import (
	"fmt"
	"io"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Trace exporters accepted by NewTracerProvider.
const (
	TraceExporterNone   = "none"
	TraceExporterStdout = "stdout"
)

// NewTracerProvider builds the SDK provider for canvasd spans. "none" keeps
// spans in process without exporting them; "stdout" writes them as JSON to w.
func NewTracerProvider(exporter string, w io.Writer) (*sdktrace.TracerProvider, error) {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", "canvasd"),
		)),
	}

	switch exporter {
	case TraceExporterNone, "":
	case TraceExporterStdout:
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("stdout trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", exporter)
	}

	return sdktrace.NewTracerProvider(opts...), nil
}
