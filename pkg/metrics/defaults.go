package metrics

// Set groups the routerd metrics registered on a single registry. Components
// receive the whole set and pick the instruments they update.
type Set struct {
	Registry *Registry

	// RequestsTotal counts HTTP requests by path and method.
	RequestsTotal *Counter

	// RPCRequestsTotal counts JSON-RPC requests by method and status
	// ("ok" or "error").
	RPCRequestsTotal *Counter

	// ToolCallsTotal counts tool invocations by tool and status.
	ToolCallsTotal *Counter

	// ErrorsTotal counts errors by category (transport, protocol, tool,
	// internal).
	ErrorsTotal *Counter

	// WSConnections gauges currently open WebSocket connections.
	WSConnections *Gauge

	// BroadcastFanout observes the recipient count of each broadcast.
	BroadcastFanout *Histogram

	// RequestDuration observes HTTP request latency by path.
	RequestDuration *Histogram
}

// NewSet creates a registry pre-populated with the routerd metrics.
func NewSet() *Set {
	r := NewRegistry()
	return &Set{
		Registry: r,
		RequestsTotal: r.NewCounter("routerd_requests_total",
			"Total HTTP requests received.", "path", "method"),
		RPCRequestsTotal: r.NewCounter("routerd_rpc_requests_total",
			"Total JSON-RPC requests dispatched.", "method", "status"),
		ToolCallsTotal: r.NewCounter("routerd_tool_calls_total",
			"Total tool invocations.", "tool", "status"),
		ErrorsTotal: r.NewCounter("routerd_errors_total",
			"Total errors by category.", "category"),
		WSConnections: r.NewGauge("routerd_ws_connections",
			"Currently open WebSocket connections."),
		BroadcastFanout: r.NewHistogram("routerd_broadcast_fanout",
			"Recipients per broadcast.", []float64{0, 1, 2, 5, 10, 25, 50, 100}),
		RequestDuration: r.NewHistogram("routerd_request_duration_seconds",
			"HTTP request latency.", DefaultBuckets, "path"),
	}
}
