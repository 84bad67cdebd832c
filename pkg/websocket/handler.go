package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/getrouterd/routerd/pkg/logging"
	"github.com/getrouterd/routerd/pkg/mcp"
	"github.com/getrouterd/routerd/pkg/stats"
)

// Handler upgrades HTTP requests to WebSocket connections and runs the
// per-connection read loop. Frames carry the same JSON-RPC envelope as
// the HTTP endpoints; each frame's response is written before the next
// frame is read, so responses arrive in request order.
type Handler struct {
	manager    *Manager
	dispatcher *mcp.Dispatcher
	stats      *stats.Collector
	log        *slog.Logger
}

// NewHandler creates a WebSocket handler.
func NewHandler(manager *Manager, dispatcher *mcp.Dispatcher, st *stats.Collector, log *slog.Logger) *Handler {
	if log == nil {
		log = logging.Nop()
	}
	return &Handler{
		manager:    manager,
		dispatcher: dispatcher,
		stats:      st,
		log:        log,
	}
}

// ServeHTTP performs the RFC 6455 upgrade and serves the connection
// until the peer disconnects.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		if h.stats != nil {
			h.stats.IncErrors()
		}
		return
	}

	conn := newConn(ws)
	h.manager.Add(conn)
	h.log.Info("websocket connected", "conn", conn.ID(), "remote", r.RemoteAddr)

	defer func() {
		h.manager.Remove(conn)
		conn.closeNow()
		h.log.Info("websocket disconnected", "conn", conn.ID())
	}()

	h.readLoop(r.Context(), conn)
}

// readLoop dispatches inbound frames sequentially. Malformed frames get
// an error response on the same connection; only transport errors end
// the loop.
func (h *Handler) readLoop(ctx context.Context, conn *Conn) {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			if !isExpectedClose(err) {
				h.log.Warn("websocket read failed", "conn", conn.ID(), "error", err)
			}
			return
		}

		if h.stats != nil {
			h.stats.IncWSMessages()
		}

		resp := h.dispatcher.DispatchBytes(ctx, data)
		if resp == nil {
			continue
		}

		out, err := json.Marshal(resp)
		if err != nil {
			h.log.Error("response marshal failed", "conn", conn.ID(), "error", err)
			continue
		}
		if err := conn.Send(ctx, out); err != nil {
			h.log.Warn("websocket send failed", "conn", conn.ID(), "error", err)
			return
		}
	}
}

// isExpectedClose reports whether err is an ordinary disconnect rather
// than a transport fault worth logging.
func isExpectedClose(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrConnectionClosed) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway, websocket.StatusNoStatusRcvd:
		return true
	}
	return false
}
