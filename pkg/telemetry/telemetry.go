package telemetry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// DefaultServiceName names the instrumentation scope when Config leaves it empty.
const DefaultServiceName = "slotflow"

// Config controls logging and tracing.
type Config struct {
	// ServiceName is recorded on exported spans and log records.
	ServiceName string

	// Level is the minimum level logged.
	Level slog.Level

	// Export sends logs and spans through OpenTelemetry stdout exporters
	// instead of the plain text handler.
	Export bool

	// Output receives exported telemetry, or text logs when Export is off.
	// Defaults to stdout for exports and stderr for text logs.
	Output io.Writer
}

// Telemetry bundles the logger and tracer provider built by Setup.
type Telemetry struct {
	Logger         *slog.Logger
	TracerProvider trace.TracerProvider

	shutdown []func(context.Context) error
}

// Setup builds logging and tracing from cfg. When exporting, the providers
// are also installed as the OpenTelemetry globals.
func Setup(cfg Config) (*Telemetry, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = DefaultServiceName
	}

	if !cfg.Export {
		out := cfg.Output
		if out == nil {
			out = os.Stderr
		}
		return &Telemetry{
			Logger:         NewLogger(out, cfg.Level),
			TracerProvider: noop.NewTracerProvider(),
		}, nil
	}

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	res := resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))

	spanExporter, err := stdouttrace.New(stdouttrace.WithWriter(out))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(spanExporter),
		sdktrace.WithResource(res),
	)

	logExporter, err := stdoutlog.New(stdoutlog.WithWriter(out))
	if err != nil {
		_ = tp.Shutdown(context.Background())
		return nil, err
	}
	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
		sdklog.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	global.SetLoggerProvider(lp)

	handler := otelslog.NewHandler(cfg.ServiceName, otelslog.WithLoggerProvider(lp))
	return &Telemetry{
		Logger:         slog.New(&levelHandler{level: cfg.Level, Handler: handler}),
		TracerProvider: tp,
		shutdown:       []func(context.Context) error{tp.Shutdown, lp.Shutdown},
	}, nil
}

// Shutdown flushes and stops the exporters.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range t.shutdown {
		errs = append(errs, fn(ctx))
	}
	return errors.Join(errs...)
}

// NewLogger returns a text logger writing to w.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// ParseLevel converts a level name such as "debug" or "WARN".
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	err := level.UnmarshalText([]byte(s))
	return level, err
}

// levelHandler filters records below level before the wrapped handler.
type levelHandler struct {
	level slog.Level
	slog.Handler
}

func (h *levelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level && h.Handler.Enabled(ctx, level)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{level: h.level, Handler: h.Handler.WithAttrs(attrs)}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{level: h.level, Handler: h.Handler.WithGroup(name)}
}
