package mcp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/kuitang/memos/internal/logutil"
	"github.com/kuitang/memos/internal/memos"
	"github.com/kuitang/memos/internal/obs"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const mcpDebugBodyLogLimitBytes = 8 * 1024

// Server wraps the MCP server with memo handling.
type Server struct {
	mcpServer    *mcp.Server
	handler      *Handler
	httpHandler  http.Handler
	maxBodyBytes int64
}

type mcpResponseLogger struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
	body        []byte
	truncated   bool
}

func newMCPResponseLogger(w http.ResponseWriter) *mcpResponseLogger {
	return &mcpResponseLogger{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
		body:           make([]byte, 0, 512),
	}
}

func (w *mcpResponseLogger) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.statusCode = code
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *mcpResponseLogger) Write(p []byte) (int, error) {
	w.wroteHeader = true
	if remaining := mcpDebugBodyLogLimitBytes - len(w.body); remaining > 0 {
		if len(p) <= remaining {
			w.body = append(w.body, p...)
		} else {
			w.body = append(w.body, p[:remaining]...)
			w.truncated = true
		}
	} else {
		w.truncated = true
	}
	return w.ResponseWriter.Write(p)
}

func (w *mcpResponseLogger) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// NewServer creates the memo MCP server. Request bodies larger than
// maxBodyBytes are cut off; a non-positive value disables the cap.
func NewServer(store *memos.Store, maxBodyBytes int64) *Server {
	handler := NewHandler(store)

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "memos",
			Version: "1.0.0",
		},
		nil,
	)

	for _, tool := range ToolDefinitions() {
		mcp.AddTool(mcpServer, tool, handler.createToolHandler(tool.Name))
	}

	// Stateless with plain JSON responses: every request stands alone and no
	// SSE stream is kept open.
	httpHandler := mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			JSONResponse: true,
			Stateless:    true,
		},
	)

	return &Server{
		mcpServer:    mcpServer,
		handler:      handler,
		httpHandler:  httpHandler,
		maxBodyBytes: maxBodyBytes,
	}
}

// Handler returns the tool handler, for callers that dispatch without HTTP.
func (s *Server) Handler() *Handler {
	return s.handler
}

// ServeHTTP implements http.Handler for the Streamable HTTP transport.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Mcp-Session-Id, Mcp-Protocol-Version, Last-Event-ID")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")

	switch r.Method {
	case http.MethodOptions:
		w.Header().Set("Access-Control-Max-Age", "86400")
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodGet:
		// Stateless JSON mode never opens a server-to-client stream.
		w.Header().Set("Allow", "POST, DELETE, OPTIONS")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	log := obs.From(ctx).With("pkg", "mcp")
	verbose := log.Enabled(ctx, slog.LevelDebug)

	var reqBody []byte
	if r.Body != nil && r.Method == http.MethodPost {
		body := io.Reader(r.Body)
		if s.maxBodyBytes > 0 {
			body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
		}
		var err error
		reqBody, err = io.ReadAll(body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				log.Warn("mcp_request_too_large", "limit_bytes", s.maxBodyBytes)
				http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
				return
			}
			log.Warn("mcp_request_body_read_failed", "error", err)
			http.Error(w, "Failed to read request body", http.StatusBadRequest)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(reqBody))
	}

	if verbose {
		log.Debug("mcp_request",
			"method", r.Method,
			"headers", logutil.FormatHeadersForLog(r.Header),
			"body", logutil.FormatBodyForLog(r.Header.Get("Content-Type"), reqBody, mcpDebugBodyLogLimitBytes, false),
		)
	}

	respLogger := newMCPResponseLogger(w)
	if !s.delegate(respLogger, r) {
		return
	}

	contentType := respLogger.Header().Get("Content-Type")
	if verbose {
		log.Debug("mcp_response",
			"status", respLogger.statusCode,
			"content_type", contentType,
			"body", logutil.FormatBodyForLog(contentType, respLogger.body, mcpDebugBodyLogLimitBytes, respLogger.truncated),
		)
	}
	if respLogger.statusCode >= http.StatusBadRequest {
		log.Warn("mcp_request_failed",
			"method", r.Method,
			"status", respLogger.statusCode,
			"response", logutil.FormatBodyForLog(contentType, respLogger.body, mcpDebugBodyLogLimitBytes, respLogger.truncated),
		)
	}
}

// delegate runs the SDK handler, turning a panic or a missing response into a
// 500. It reports whether the SDK produced a response of its own.
func (s *Server) delegate(w *mcpResponseLogger, r *http.Request) (ok bool) {
	log := obs.From(r.Context()).With("pkg", "mcp")
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("mcp_handler_panic", "panic", fmt.Sprint(rec), "stack", string(debug.Stack()))
			if !w.wroteHeader {
				http.Error(w.ResponseWriter, "Internal server error", http.StatusInternalServerError)
			}
			ok = false
		}
	}()

	s.httpHandler.ServeHTTP(w, r)
	if !w.wroteHeader {
		log.Error("mcp_handler_no_response", "method", r.Method)
		http.Error(w.ResponseWriter, "MCP handler returned without writing response", http.StatusInternalServerError)
		return false
	}
	return true
}
