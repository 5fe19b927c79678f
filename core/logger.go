package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logging interface used across the services.
// Fields are passed as a map so call sites stay free of a logging library.
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})

	// Context-aware variants add trace and correlation identifiers.
	InfoWithContext(ctx context.Context, msg string, fields map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{})
	WarnWithContext(ctx context.Context, msg string, fields map[string]interface{})
	DebugWithContext(ctx context.Context, msg string, fields map[string]interface{})
}

// ComponentAwareLogger can derive a child logger tagged with a component name.
type ComponentAwareLogger interface {
	Logger
	WithComponent(component string) Logger
}

// NoOpLogger provides a no-op logger implementation
type NoOpLogger struct{}

func (n *NoOpLogger) Info(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Error(msg string, fields map[string]interface{}) {}
func (n *NoOpLogger) Warn(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Debug(msg string, fields map[string]interface{}) {}

func (n *NoOpLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}
func (n *NoOpLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}
func (n *NoOpLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}
func (n *NoOpLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}

// ProductionLogger writes structured logs through zap. JSON is the default
// encoding; the "text" format (or pretty logs in development) switches to
// zap's console encoder.
type ProductionLogger struct {
	zap         *zap.Logger
	level       zap.AtomicLevel
	serviceName string
	component   string
	format      string
}

// NewProductionLogger creates a logger from logging and development config.
// Output "stderr" writes to stderr, anything else to stdout.
func NewProductionLogger(logging LoggingConfig, dev DevelopmentConfig, serviceName string) Logger {
	var out io.Writer = os.Stdout
	if strings.EqualFold(logging.Output, "stderr") {
		out = os.Stderr
	}
	return newProductionLogger(logging, dev, serviceName, out)
}

func newProductionLogger(logging LoggingConfig, dev DevelopmentConfig, serviceName string, out io.Writer) *ProductionLogger {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if parsed, err := zapcore.ParseLevel(logging.Level); err == nil {
		level.SetLevel(parsed)
	}
	if dev.DebugLogging {
		level.SetLevel(zapcore.DebugLevel)
	}

	format := strings.ToLower(logging.Format)
	if dev.Enabled && dev.PrettyLogs {
		format = "text"
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.MessageKey = "message"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if format == "text" {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		format = "json"
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	zc := zapcore.NewCore(encoder, zapcore.AddSync(out), level)
	base := zap.New(zc).With(zap.String("service", serviceName))

	return &ProductionLogger{
		zap:         base,
		level:       level,
		serviceName: serviceName,
		component:   "grocery/core",
		format:      format,
	}
}

// WithComponent returns a child logger that tags every entry with component.
func (p *ProductionLogger) WithComponent(component string) Logger {
	return &ProductionLogger{
		zap:         p.zap,
		level:       p.level,
		serviceName: p.serviceName,
		component:   component,
		format:      p.format,
	}
}

// SetLevel changes the minimum level at runtime for this logger and its children.
func (p *ProductionLogger) SetLevel(level string) {
	if parsed, err := zapcore.ParseLevel(level); err == nil {
		p.level.SetLevel(parsed)
	}
}

// Sync flushes buffered entries.
func (p *ProductionLogger) Sync() error {
	return p.zap.Sync()
}

func (p *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	p.log(context.TODO(), zapcore.InfoLevel, msg, fields)
}

func (p *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	p.log(context.TODO(), zapcore.ErrorLevel, msg, fields)
}

func (p *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	p.log(context.TODO(), zapcore.WarnLevel, msg, fields)
}

func (p *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	p.log(context.TODO(), zapcore.DebugLevel, msg, fields)
}

func (p *ProductionLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.log(ctx, zapcore.InfoLevel, msg, fields)
}

func (p *ProductionLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.log(ctx, zapcore.ErrorLevel, msg, fields)
}

func (p *ProductionLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.log(ctx, zapcore.WarnLevel, msg, fields)
}

func (p *ProductionLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.log(ctx, zapcore.DebugLevel, msg, fields)
}

func (p *ProductionLogger) log(ctx context.Context, lvl zapcore.Level, msg string, fields map[string]interface{}) {
	if !p.level.Enabled(lvl) {
		return
	}

	zf := make([]zap.Field, 0, len(fields)+4)
	zf = append(zf, zap.String("component", p.component))

	if ctx != nil {
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			zf = append(zf,
				zap.String("trace_id", sc.TraceID().String()),
				zap.String("span_id", sc.SpanID().String()),
			)
		}
		if id := CorrelationIDFromContext(ctx); id != "" {
			zf = append(zf, zap.String("correlation_id", id))
		}
	}

	// Sorted keys keep console output stable between runs
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		zf = append(zf, toZapField(k, fields[k]))
	}

	if ce := p.zap.Check(lvl, msg); ce != nil {
		ce.Write(zf...)
	}
}

func toZapField(key string, value interface{}) zap.Field {
	switch v := value.(type) {
	case error:
		return zap.String(key, v.Error())
	case fmt.Stringer:
		return zap.Stringer(key, v)
	default:
		return zap.Any(key, v)
	}
}
