package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// tracing exports spans to a file for the lifetime of one command.
type tracing struct {
	provider *sdktrace.TracerProvider
	prev     trace.TracerProvider
	file     *os.File
}

// startTracing installs a global tracer provider that writes every span to
// path as one JSON object per line.
func startTracing(path string) (*tracing, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating trace file: %w", err)
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(f))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("creating span exporter: %w", err)
	}
	t := &tracing{
		provider: sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
		),
		prev: otel.GetTracerProvider(),
		file: f,
	}
	otel.SetTracerProvider(t.provider)
	return t, nil
}

// shutdown flushes pending spans, closes the file and puts the previous
// provider back.
func (t *tracing) shutdown(ctx context.Context) error {
	err := t.provider.Shutdown(ctx)
	otel.SetTracerProvider(t.prev)
	return errors.Join(err, t.file.Close())
}
