// Memos server: an in-memory memo store behind a JSON HTTP API and an MCP endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kuitang/memos/internal/api"
	"github.com/kuitang/memos/internal/config"
	"github.com/kuitang/memos/internal/mcp"
	"github.com/kuitang/memos/internal/memos"
	"github.com/kuitang/memos/internal/obs"
	"github.com/kuitang/memos/internal/ratelimit"
)

func main() {
	configPath, addr := config.ParseFlags()
	cfg := config.MustLoadConfig(configPath, addr)

	lvl, _ := obs.ParseLevel(cfg.LogLevel)
	obs.Init(lvl)
	cfg.PrintStartupSummary(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, nil); err != nil {
		obs.Pkg("main").Error("server_failed", "error", err)
		os.Exit(1)
	}
}

// run serves until ctx is cancelled, then drains in-flight requests for up to
// cfg.ShutdownTimeout. A nil listener means listen on cfg.ListenAddr.
func run(ctx context.Context, cfg *config.Config, ln net.Listener) error {
	log := obs.Pkg("main")

	store := memos.NewStore(cfg.Policy())
	limiter := ratelimit.NewRateLimiter(cfg.RateLimitConfig)
	defer limiter.Stop()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           buildHandler(cfg, store, limiter),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", cfg.ListenAddr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", cfg.ListenAddr, err)
		}
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server_listening", "addr", ln.Addr().String(), "id_policy", string(store.Policy()), "mcp_enabled", cfg.MCPEnabled)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	log.Info("server_shutting_down", "timeout", cfg.ShutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("server_stopped", "memos", store.Len())
	return nil
}

// buildHandler assembles the routes and wraps them in the middleware chain:
// request correlation, then access logging, then per-client rate limiting.
func buildHandler(cfg *config.Config, store *memos.Store, limiter *ratelimit.RateLimiter) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok"))
	})

	api.NewHandler(store, cfg.MaxBodyBytes).RegisterRoutes(mux)

	if cfg.MCPEnabled {
		mountMCPRoute(mux, "/mcp", mcp.NewServer(store, cfg.MaxBodyBytes))
	}

	var handler http.Handler = mux
	handler = ratelimit.RateLimitMiddleware(limiter, ratelimit.ClientKey)(handler)
	handler = obs.AccessLogMiddleware("http", handler)
	handler = obs.RequestContextMiddleware(handler)
	return handler
}

// mountMCPRoute registers every Streamable HTTP method on path.
func mountMCPRoute(mux *http.ServeMux, path string, handler http.Handler) {
	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions} {
		mux.Handle(method+" "+path, handler)
	}
}
