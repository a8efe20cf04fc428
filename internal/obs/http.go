package obs

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// statusRecorder remembers the status code and byte count of a response.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int64
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(p)
	r.written += int64(n)
	return n, err
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Status reports the response status, 200 if the handler never set one.
func (r *statusRecorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

type flushingRecorder struct {
	*statusRecorder
}

func (r flushingRecorder) Flush() {
	r.ResponseWriter.(http.Flusher).Flush()
}

// record wraps w, keeping http.Flusher visible when w has it.
func record(w http.ResponseWriter) (http.ResponseWriter, *statusRecorder) {
	rec := &statusRecorder{ResponseWriter: w}
	if _, ok := w.(http.Flusher); ok {
		return flushingRecorder{rec}, rec
	}
	return rec, rec
}

// RequestContextMiddleware injects request correlation fields into context and
// echoes the request id in the X-Request-Id response header.
func RequestContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceparent := strings.TrimSpace(r.Header.Get("traceparent"))
		traceID := extractTraceID(traceparent)
		requestID := chooseRequestID(r.Header.Get("X-Request-Id"), traceID)
		w.Header().Set("X-Request-Id", requestID)

		ctx := WithCorrelation(r.Context(), Correlation{
			RequestID:    requestID,
			TraceID:      traceID,
			Traceparent:  traceparent,
			MCPSessionID: strings.TrimSpace(r.Header.Get("Mcp-Session-Id")),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// chooseRequestID prefers the caller's id, then the W3C trace id, then a
// fresh "req-" UUID.
func chooseRequestID(callerID, traceID string) string {
	if id := strings.TrimSpace(callerID); id != "" {
		return id
	}
	if traceID != "" {
		return traceID
	}
	return "req-" + uuid.NewString()
}

// AccessLogMiddleware emits one "http_access" event per request. The route
// pattern and memo id are read back after the mux has matched the request.
// Server errors log at error level, rejected clients at warn.
func AccessLogMiddleware(pkg string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped, rec := record(w)
		next.ServeHTTP(wrapped, r)

		status := rec.Status()
		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"dur_ms", float64(time.Since(start).Microseconds()) / 1000.0,
			"req_bytes", max(r.ContentLength, 0),
			"resp_bytes", rec.written,
		}
		if r.Pattern != "" {
			attrs = append(attrs, "route", r.Pattern)
		}
		if id := r.PathValue("id"); id != "" {
			attrs = append(attrs, "memo_id", id)
		}

		lvl := slog.LevelInfo
		switch {
		case status >= http.StatusInternalServerError:
			lvl = slog.LevelError
		case status == http.StatusTooManyRequests:
			lvl = slog.LevelWarn
		}
		From(r.Context()).With("pkg", pkg).Log(r.Context(), lvl, "http_access", attrs...)
	})
}

// extractTraceID returns the trace id of a W3C traceparent header, or "" when
// the header is malformed or carries the all-zero id.
func extractTraceID(traceparent string) string {
	parts := strings.Split(traceparent, "-")
	if len(parts) != 4 {
		return ""
	}
	traceID := strings.ToLower(strings.TrimSpace(parts[1]))
	if len(traceID) != 32 || strings.Trim(traceID, "0") == "" {
		return ""
	}
	if strings.IndexFunc(traceID, func(c rune) bool {
		return !('0' <= c && c <= '9' || 'a' <= c && c <= 'f')
	}) >= 0 {
		return ""
	}
	return traceID
}
