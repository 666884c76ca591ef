// Package observability configures the process-wide slog logger.
package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Log formats accepted by Instrument.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatOTel = "otel"
)

const (
	instrumentationName = "github.com/florianilch/cloudsession"
	protocolEnv         = "OTEL_EXPORTER_OTLP_PROTOCOL"
)

// Instrument installs the default slog logger for the given level and format.
// The otel format exports through the OpenTelemetry log SDK: to stdout, or
// over OTLP when OTEL_EXPORTER_OTLP_PROTOCOL is "grpc" or "http/protobuf".
// The returned shutdown flushes pending records and must be called before exit.
func Instrument(level slog.Level, format string) (func(context.Context) error, error) {
	return instrument(context.Background(), level, format, os.Stderr, os.Getenv(protocolEnv))
}

func instrument(ctx context.Context, level slog.Level, format string, w io.Writer, protocol string) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	var handler slog.Handler
	shutdown := noop

	switch format {
	case FormatText, "":
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	case FormatJSON:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	case FormatOTel:
		exporter, err := newExporter(ctx, w, protocol)
		if err != nil {
			return noop, fmt.Errorf("creating log exporter: %w", err)
		}

		provider := sdklog.NewLoggerProvider(
			sdklog.WithResource(resource.NewWithAttributes(semconv.SchemaURL,
				semconv.ServiceName("cloudsession"),
			)),
			sdklog.WithProcessor(minsev.NewLogProcessor(sdklog.NewBatchProcessor(exporter), severity(level))),
		)
		global.SetLoggerProvider(provider)

		handler = otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(provider))
		shutdown = provider.Shutdown
	default:
		return noop, fmt.Errorf("unsupported log format: %q", format)
	}

	slog.SetDefault(slog.New(handler))
	return shutdown, nil
}

func newExporter(ctx context.Context, w io.Writer, protocol string) (sdklog.Exporter, error) {
	switch protocol {
	case "":
		return stdoutlog.New(stdoutlog.WithWriter(w))
	case "grpc":
		return otlploggrpc.New(ctx)
	case "http/protobuf":
		return otlploghttp.New(ctx)
	default:
		return nil, fmt.Errorf("unsupported %s: %q", protocolEnv, protocol)
	}
}

// severity maps a slog level onto the processor's minimum severity.
func severity(level slog.Level) minsev.Severity {
	switch {
	case level < slog.LevelInfo:
		return minsev.SeverityDebug
	case level < slog.LevelWarn:
		return minsev.SeverityInfo
	case level < slog.LevelError:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}
