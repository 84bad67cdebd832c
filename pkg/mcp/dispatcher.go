package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/getrouterd/routerd/pkg/logging"
	"github.com/getrouterd/routerd/pkg/metrics"
	"github.com/getrouterd/routerd/pkg/registry"
	"github.com/getrouterd/routerd/pkg/stats"
)

// DefaultToolTimeout bounds a single tools/call execution.
const DefaultToolTimeout = 30 * time.Second

// ToolExecutor is the collaborator invoked by tools/call. Implementations
// back tool names with real capabilities (filesystem, git, HTTP fetch);
// routerd itself only routes.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, arguments map[string]interface{}) (*ToolResult, error)
}

// Broadcaster pushes event notifications to all connected clients.
type Broadcaster interface {
	// BroadcastJSON serializes v once and sends it to every connection,
	// returning the number of recipients.
	BroadcastJSON(v interface{}) int

	// Count returns the number of currently open connections.
	Count() int
}

// DispatcherConfig wires a Dispatcher's collaborators.
type DispatcherConfig struct {
	Registry    *registry.Registry
	Stats       *stats.Collector
	Metrics     *metrics.Set // optional
	Broadcaster Broadcaster  // optional
	Executor    ToolExecutor
	ToolTimeout time.Duration // defaults to DefaultToolTimeout
	ServerID    string        // default owner for tools registered without one
	Logger      *slog.Logger
}

// Dispatcher routes JSON-RPC requests to method handlers. It owns no tool
// state; all reads and writes go through the registry.
type Dispatcher struct {
	registry    *registry.Registry
	stats       *stats.Collector
	metrics     *metrics.Set
	broadcaster Broadcaster
	executor    ToolExecutor
	toolTimeout time.Duration
	serverID    string
	log         *slog.Logger
}

// NewDispatcher creates a dispatcher from the given configuration.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	d := &Dispatcher{
		registry:    cfg.Registry,
		stats:       cfg.Stats,
		metrics:     cfg.Metrics,
		broadcaster: cfg.Broadcaster,
		executor:    cfg.Executor,
		toolTimeout: cfg.ToolTimeout,
		serverID:    cfg.ServerID,
		log:         cfg.Logger,
	}
	if d.toolTimeout <= 0 {
		d.toolTimeout = DefaultToolTimeout
	}
	if d.serverID == "" {
		d.serverID = "routerd"
	}
	if d.log == nil {
		d.log = logging.Nop()
	}
	return d
}

// DispatchBytes parses a raw JSON-RPC body and dispatches it. A nil
// response means the request was a notification.
func (d *Dispatcher) DispatchBytes(ctx context.Context, body []byte) *JSONRPCResponse {
	req, parseErr := ParseRequestBytes(body)
	if parseErr != nil {
		d.stats.IncErrors()
		d.countRPC("invalid", "error")
		d.countError("protocol")
		return ErrorResponse(nil, parseErr)
	}
	return d.Dispatch(ctx, req)
}

// Dispatch routes a parsed request. Handler panics are recovered and
// surfaced as internal errors (-32603), never as method-not-found.
func (d *Dispatcher) Dispatch(ctx context.Context, req *JSONRPCRequest) (resp *JSONRPCResponse) {
	d.stats.IncJSONRPCRequests()

	defer func() {
		if r := recover(); r != nil {
			d.stats.IncErrors()
			d.countRPC(req.Method, "error")
			d.countError("internal")
			d.log.Error("handler panic", "method", req.Method, "panic", r)
			resp = ErrorResponse(req.ID, InternalError(fmt.Errorf("%v", r)))
		}
	}()

	var result interface{}
	rpcErr := ValidateRequest(req)
	if rpcErr == nil {
		result, rpcErr = d.route(ctx, req)
	}

	if req.IsNotification() {
		return nil
	}
	if rpcErr != nil {
		d.stats.IncErrors()
		d.countRPC(req.Method, "error")
		d.countError(errorCategory(rpcErr.Code))
		return ErrorResponse(req.ID, rpcErr)
	}

	d.countRPC(req.Method, "ok")
	return SuccessResponse(req.ID, result)
}

func (d *Dispatcher) route(ctx context.Context, req *JSONRPCRequest) (interface{}, *JSONRPCError) {
	switch req.Method {
	case "tools/list":
		return d.handleToolsList()
	case "tools/call":
		return d.handleToolsCall(ctx, req)
	case "tools/register":
		return d.handleToolsRegister(req)
	case "mcp/stats":
		return d.handleStats()
	case "ping":
		return d.handlePing()
	default:
		return nil, MethodNotFoundError(req.Method)
	}
}

// handleToolsList maps registry entries to the protocol tool shape.
func (d *Dispatcher) handleToolsList() (interface{}, *JSONRPCError) {
	tools := d.registry.List()
	defs := make([]ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: EmptyInputSchema(),
		})
	}
	return &ToolsListResult{Tools: defs}, nil
}

// handleToolsCall validates the target tool, executes it through the
// collaborator with a bounded deadline, then records usage and broadcasts.
func (d *Dispatcher) handleToolsCall(ctx context.Context, req *JSONRPCRequest) (interface{}, *JSONRPCError) {
	params, perr := UnmarshalParams[ToolCallParams](req.Params)
	if perr != nil {
		return nil, perr
	}
	if params.Name == "" {
		return nil, InvalidParamsError("tool name is required")
	}

	if _, ok := d.registry.Get(params.Name); !ok {
		return nil, ToolNotFoundError(params.Name)
	}

	execCtx, cancel := context.WithTimeout(ctx, d.toolTimeout)
	defer cancel()

	result, err := d.executor.Execute(execCtx, params.Name, params.Arguments)
	if err != nil {
		d.countTool(params.Name, "error")
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ToolTimeoutError(params.Name)
		}
		return nil, ToolError(params.Name, err)
	}

	tool, uerr := d.registry.RecordUsage(params.Name)
	if uerr != nil {
		// Registered a moment ago and tools are never deleted, so this
		// only happens if the registry itself failed.
		d.countTool(params.Name, "error")
		return nil, InternalError(uerr)
	}

	d.stats.IncToolCalls()
	d.countTool(params.Name, "ok")

	d.broadcast(EventToolExecuted, &ToolExecutedEvent{
		Name:       tool.Name,
		ServerID:   tool.ServerID,
		UsageCount: tool.UsageCount,
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
	})

	return result, nil
}

// handleToolsRegister registers or overwrites a tool entry.
func (d *Dispatcher) handleToolsRegister(req *JSONRPCRequest) (interface{}, *JSONRPCError) {
	params, perr := UnmarshalParams[ToolRegisterParams](req.Params)
	if perr != nil {
		return nil, perr
	}
	if params.Name == "" {
		return nil, InvalidParamsError("tool name is required")
	}

	serverID := params.ServerID
	if serverID == "" {
		serverID = d.serverID
	}

	tool, err := d.registry.Register(params.Name, params.Description, serverID)
	if err != nil {
		d.stats.IncErrors()
		return nil, InternalError(err)
	}

	d.stats.IncRegistrations()
	d.log.Info("tool registered", "tool", tool.Name, "server", tool.ServerID)

	d.broadcast(EventToolRegistered, &ToolRegisteredEvent{
		Name:        tool.Name,
		Description: tool.Description,
		ServerID:    tool.ServerID,
		Timestamp:   tool.RegisteredAt.UTC().Format(time.RFC3339Nano),
	})

	return &ToolRegisterResult{Registered: true, Name: tool.Name, ServerID: tool.ServerID}, nil
}

func (d *Dispatcher) handleStats() (interface{}, *JSONRPCError) {
	conns := 0
	if d.broadcaster != nil {
		conns = d.broadcaster.Count()
	}
	return &StatsResult{
		Tools:       d.registry.Count(),
		Servers:     d.registry.ServerCount(),
		Clients:     conns,
		Connections: conns,
		Stats:       d.stats.Snapshot(),
		Uptime:      d.stats.Uptime().Seconds(),
	}, nil
}

func (d *Dispatcher) handlePing() (interface{}, *JSONRPCError) {
	conns := 0
	if d.broadcaster != nil {
		conns = d.broadcaster.Count()
	}
	return &PingResult{
		Pong:        time.Now().UTC().Format(time.RFC3339Nano),
		Uptime:      d.stats.Uptime().Seconds(),
		Connections: conns,
	}, nil
}

// broadcast pushes an event notification; delivery failures are the
// broadcaster's concern, not the triggering request's.
func (d *Dispatcher) broadcast(method string, params interface{}) {
	if d.broadcaster == nil {
		return
	}
	sent := d.broadcaster.BroadcastJSON(NewNotification(method, params))
	if d.metrics != nil {
		if vec, err := d.metrics.BroadcastFanout.WithLabels(); err == nil {
			vec.Observe(float64(sent))
		}
	}
}

func (d *Dispatcher) countRPC(method, status string) {
	if d.metrics == nil {
		return
	}
	if vec, err := d.metrics.RPCRequestsTotal.WithLabels(method, status); err == nil {
		_ = vec.Inc()
	}
}

func (d *Dispatcher) countError(category string) {
	if d.metrics == nil {
		return
	}
	if vec, err := d.metrics.ErrorsTotal.WithLabels(category); err == nil {
		_ = vec.Inc()
	}
}

// errorCategory buckets JSON-RPC error codes for the errors_total metric.
func errorCategory(code int) string {
	switch code {
	case ErrCodeToolNotFound, ErrCodeToolError, ErrCodeToolTimeout:
		return "tool"
	case ErrCodeInternalError:
		return "internal"
	default:
		return "protocol"
	}
}

func (d *Dispatcher) countTool(tool, status string) {
	if d.metrics == nil {
		return
	}
	if vec, err := d.metrics.ToolCallsTotal.WithLabels(tool, status); err == nil {
		_ = vec.Inc()
	}
}

// Methods returns the JSON-RPC method names this dispatcher supports,
// advertised in the service descriptor.
func (d *Dispatcher) Methods() []string {
	return []string{"tools/list", "tools/call", "tools/register", "mcp/stats", "ping"}
}
