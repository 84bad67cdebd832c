package server

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/getrouterd/routerd/pkg/httputil"
	"github.com/getrouterd/routerd/pkg/mcp"
)

// maxBodySize caps JSON-RPC request bodies at 4 MiB.
const maxBodySize = 4 << 20

// toolView is the /api/tools representation of a registry entry.
type toolView struct {
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	ServerID     string     `json:"serverId"`
	RegisteredAt time.Time  `json:"registeredAt"`
	UsageCount   int64      `json:"usageCount"`
	LastUsed     *time.Time `json:"lastUsed,omitempty"`
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/tools", s.handleListTools)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("POST /api/mcp", s.handleRPC)
	mux.HandleFunc("POST /api/mcp/", s.handleRPC)
	mux.Handle("GET /metrics", s.metricsHandler())
	mux.Handle(s.wsPath, s.wsHandler)
	mux.HandleFunc("/", s.handleRoot)

	return chain(mux,
		corsMiddleware,
		recoverMiddleware(s.log, s.stats),
		observeMiddleware(s.log, s.stats, s.metrics),
		authMiddleware(s.authTokens),
	)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.stats.Snapshot()
	httputil.WriteOK(w, map[string]interface{}{
		"status":    "healthy",
		"service":   s.serverName,
		"version":   s.serverVersion,
		"instance":  s.instanceID,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"uptime":    s.stats.Uptime().Seconds(),
		"requests":  snap.TotalRequests,
		"mcp": map[string]interface{}{
			"tools":   s.registry.Count(),
			"servers": s.registry.ServerCount(),
			"clients": s.wsManager.Count(),
			"stats":   snap,
		},
	})
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	tools := s.registry.List()
	views := make([]toolView, 0, len(tools))
	for _, t := range tools {
		views = append(views, toolView{
			Name:         t.Name,
			Description:  t.Description,
			ServerID:     t.ServerID,
			RegisteredAt: t.RegisteredAt,
			UsageCount:   t.UsageCount,
			LastUsed:     t.LastUsed,
		})
	}
	httputil.WriteOK(w, map[string]interface{}{
		"tools":     views,
		"count":     len(views),
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	httputil.WriteOK(w, map[string]interface{}{
		"stats":     s.stats.Snapshot(),
		"uptime":    s.stats.Uptime().Seconds(),
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"mcp": map[string]interface{}{
			"tools":       s.registry.Count(),
			"servers":     s.registry.ServerCount(),
			"clients":     s.wsManager.Count(),
			"connections": s.wsManager.Count(),
		},
	})
}

// handleRPC serves JSON-RPC over HTTP. Undecodable bodies get 400 with a
// JSON-RPC error and id null; everything past parsing, including
// method-level errors, is HTTP 200.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		s.stats.IncErrors()
		httputil.WriteJSON(w, http.StatusBadRequest,
			mcp.ErrorResponse(nil, mcp.InvalidRequestError("failed to read request body")))
		return
	}

	req, parseErr := mcp.ParseRequestBytes(body)
	if parseErr != nil {
		s.stats.IncErrors()
		httputil.WriteJSON(w, http.StatusBadRequest, mcp.ErrorResponse(nil, parseErr))
		return
	}

	resp := s.dispatcher.Dispatch(r.Context(), req)
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	httputil.WriteOK(w, resp)
}

// handleRoot serves the service descriptor for any path no other route
// claims; unknown /api paths get a 404 instead.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		httputil.WriteNotFound(w, "not_found", "unknown API path: "+r.URL.Path)
		return
	}
	// Upgrade attempts on anything but the configured WS path are a 404,
	// not a descriptor.
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		httputil.WriteNotFound(w, "not_found", "websocket endpoint is "+s.wsPath)
		return
	}
	httputil.WriteOK(w, map[string]interface{}{
		"service":   s.serverName,
		"version":   s.serverVersion,
		"instance":  s.instanceID,
		"protocol":  "JSON-RPC 2.0",
		"toolCount": s.registry.Count(),
		"methods":   s.dispatcher.Methods(),
		"endpoints": map[string]string{
			"health":    "/health",
			"tools":     "/api/tools",
			"stats":     "/api/stats",
			"rpc":       "/api/mcp",
			"metrics":   "/metrics",
			"websocket": s.wsPath,
		},
	})
}

func (s *Server) metricsHandler() http.Handler {
	if s.metrics == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		})
	}
	return s.metrics.Registry.Handler()
}

