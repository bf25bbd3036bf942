// Package tracing wires OpenTelemetry tracing for hook invocations. Tracing is opt-in;
// when disabled the global no-op provider stays in place and spans cost nothing.
package tracing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/stagehook/internal/config"
	"github.com/zjrosen/stagehook/internal/log"
)

// TracerName identifies spans emitted by stagehook.
const TracerName = "github.com/zjrosen/stagehook"

// ShutdownFunc flushes pending spans and releases exporter resources.
type ShutdownFunc func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// Init installs a global tracer provider according to cfg. traceFile is the destination
// of the stdout exporter. The returned ShutdownFunc must be called before exit.
func Init(ctx context.Context, cfg config.TracingConfig, traceFile string) (ShutdownFunc, error) {
	if !cfg.Enabled {
		return noopShutdown, nil
	}

	var (
		exporter sdktrace.SpanExporter
		closer   io.Closer
		err      error
	)
	switch cfg.Exporter {
	case config.ExporterOTLP:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("creating otlp exporter: %w", err)
		}
	case config.ExporterStdout, "":
		if err := os.MkdirAll(filepath.Dir(traceFile), 0750); err != nil {
			return nil, fmt.Errorf("creating trace directory: %w", err)
		}
		f, err := os.OpenFile(traceFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600) //nolint:gosec // G304: configured trace file
		if err != nil {
			return nil, fmt.Errorf("opening trace file: %w", err)
		}
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(f))
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("creating stdout exporter: %w", err)
		}
		closer = f
	default:
		return nil, fmt.Errorf("unknown tracing exporter %q", cfg.Exporter)
	}

	tp := NewProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	log.Debug(log.CatHook, "tracing enabled", "exporter", cfg.Exporter)

	return func(ctx context.Context) error {
		err := tp.Shutdown(ctx)
		if closer != nil {
			err = errors.Join(err, closer.Close())
		}
		return err
	}, nil
}

// NewProvider creates a tracer provider tagged with the stagehook service name.
func NewProvider(opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	res := resource.NewSchemaless(attribute.String("service.name", "stagehook"))
	return sdktrace.NewTracerProvider(append([]sdktrace.TracerProviderOption{sdktrace.WithResource(res)}, opts...)...)
}

// Tracer returns the stagehook tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}
