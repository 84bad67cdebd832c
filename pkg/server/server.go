// Package server assembles the routerd HTTP surface: the ops API, the
// JSON-RPC endpoint, the WebSocket endpoint and the metrics exposition.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/getrouterd/routerd/pkg/config"
	"github.com/getrouterd/routerd/pkg/logging"
	"github.com/getrouterd/routerd/pkg/mcp"
	"github.com/getrouterd/routerd/pkg/metrics"
	"github.com/getrouterd/routerd/pkg/registry"
	"github.com/getrouterd/routerd/pkg/stats"
	"github.com/getrouterd/routerd/pkg/websocket"
)

// Options carries the collaborators a Server needs. Registry, Stats,
// Dispatcher and WSManager are required; the rest have usable defaults.
type Options struct {
	Config     *config.Config
	Registry   *registry.Registry
	Stats      *stats.Collector
	Metrics    *metrics.Set
	Dispatcher *mcp.Dispatcher
	WSManager  *websocket.Manager
	WSHandler  http.Handler
	Logger     *slog.Logger
}

// Server is the routerd HTTP server.
type Server struct {
	cfg        *config.Config
	registry   *registry.Registry
	stats      *stats.Collector
	metrics    *metrics.Set
	dispatcher *mcp.Dispatcher
	wsManager  *websocket.Manager
	wsHandler  http.Handler

	wsPath        string
	authTokens    []string
	serverName    string
	serverVersion string
	instanceID    string

	log  *slog.Logger
	http *http.Server
}

// New creates a Server and registers any seed tools from the config.
func New(opts Options) (*Server, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}

	s := &Server{
		cfg:           cfg,
		registry:      opts.Registry,
		stats:         opts.Stats,
		metrics:       opts.Metrics,
		dispatcher:    opts.Dispatcher,
		wsManager:     opts.WSManager,
		wsHandler:     opts.WSHandler,
		wsPath:        cfg.Server.WSPath,
		authTokens:    cfg.Server.AuthTokens,
		serverName:    cfg.MCP.ServerName,
		serverVersion: cfg.MCP.ServerVersion,
		instanceID:    uuid.NewString(),
		log:           log,
	}

	for _, t := range cfg.Tools {
		serverID := t.ServerID
		if serverID == "" {
			serverID = cfg.MCP.ServerName
		}
		if _, err := s.registry.Register(t.Name, t.Description, serverID); err != nil {
			return nil, fmt.Errorf("seed tool %q: %w", t.Name, err)
		}
		s.stats.IncRegistrations()
	}

	// Read/WriteTimeout would also apply to hijacked WebSocket
	// connections and kill them; only the header read is bounded here.
	s.http = &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           s.routes(),
		ReadHeaderTimeout: cfg.Server.ReadTimeout.Std(),
		IdleTimeout:       cfg.Server.WriteTimeout.Std(),
	}
	return s, nil
}

// Handler returns the assembled HTTP handler, used directly in tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.http.Addr
}

// ListenAndServe blocks serving requests until Shutdown is called or the
// listener fails.
func (s *Server) ListenAndServe() error {
	s.log.Info("listening",
		"addr", s.http.Addr,
		"ws", s.wsPath,
		"auth", len(s.authTokens) > 0)

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown closes all WebSocket connections and drains in-flight HTTP
// requests within the configured shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down")
	s.wsManager.CloseAll()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Server.ShutdownTimeout.Std())
	defer cancel()
	return s.http.Shutdown(ctx)
}
