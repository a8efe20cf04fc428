// Package obs holds the process-wide JSON logger and the per-request
// correlation fields attached to every log line.
package obs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

type correlationContextKey struct{}

// Correlation carries per-request correlation identifiers.
type Correlation struct {
	RequestID    string
	TraceID      string
	Traceparent  string
	MCPSessionID string
}

var (
	current atomic.Pointer[slog.Logger]
	level   = new(slog.LevelVar)
)

// Init sets the minimum level and, on first use, installs a JSON logger on
// stderr as the slog default.
func Init(lvl slog.Level) {
	level.Set(lvl)
	if current.Load() == nil {
		install(os.Stderr)
	}
}

// ParseLevel parses debug, info, warn or error (case-insensitive).
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// SetOutputForTests sends every log line, debug included, to w until the
// returned func restores the previous logger and level.
func SetOutputForTests(w io.Writer) func() {
	prev := current.Load()
	prevLevel := level.Level()

	level.Set(slog.LevelDebug)
	install(w)

	return func() {
		level.Set(prevLevel)
		if prev == nil {
			install(os.Stderr)
			return
		}
		current.Store(prev)
		slog.SetDefault(prev)
	}
}

func install(w io.Writer) {
	l := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: utcTime,
	}))
	current.Store(l)
	slog.SetDefault(l)
}

func utcTime(_ []string, attr slog.Attr) slog.Attr {
	if attr.Key != slog.TimeKey {
		return attr
	}
	if t, ok := attr.Value.Any().(time.Time); ok {
		return slog.String(slog.TimeKey, t.UTC().Format(time.RFC3339Nano))
	}
	return attr
}

func base() *slog.Logger {
	if l := current.Load(); l != nil {
		return l
	}
	Init(level.Level())
	return current.Load()
}

// Pkg returns a logger tagged with package name.
func Pkg(pkg string) *slog.Logger {
	return base().With("pkg", pkg)
}

// From returns a logger with correlation fields from context.
func From(ctx context.Context) *slog.Logger {
	l := base()
	if attrs := correlationAttrs(CorrelationFromContext(ctx)); len(attrs) > 0 {
		return l.With(attrs...)
	}
	return l
}

// WithCorrelation stores request correlation fields in context. Empty fields
// in corr keep whatever the context already carried.
func WithCorrelation(ctx context.Context, corr Correlation) context.Context {
	merged := CorrelationFromContext(ctx)
	overlay(&merged.RequestID, corr.RequestID)
	overlay(&merged.TraceID, corr.TraceID)
	overlay(&merged.Traceparent, corr.Traceparent)
	overlay(&merged.MCPSessionID, corr.MCPSessionID)
	return context.WithValue(ctx, correlationContextKey{}, merged)
}

func overlay(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

// CorrelationFromContext returns request correlation fields from context.
func CorrelationFromContext(ctx context.Context) Correlation {
	if ctx == nil {
		return Correlation{}
	}
	corr, _ := ctx.Value(correlationContextKey{}).(Correlation)
	return corr
}

func correlationAttrs(corr Correlation) []any {
	var attrs []any
	for _, kv := range [...][2]string{
		{"request_id", corr.RequestID},
		{"trace_id", corr.TraceID},
		{"traceparent", corr.Traceparent},
		{"mcp_session_id", corr.MCPSessionID},
	} {
		if kv[1] != "" {
			attrs = append(attrs, kv[0], kv[1])
		}
	}
	return attrs
}
