// Package stats tracks process-wide routerd counters.
//
// Every counter is monotonic: components increment, readers take whole
// snapshots, and the only reset is a process restart.
package stats

import (
	"sync/atomic"
	"time"
)

// Collector holds the routerd counters. All methods are safe for
// concurrent use; increments are atomic and never lost.
type Collector struct {
	startedAt time.Time

	totalRequests       atomic.Int64
	jsonRPCRequests     atomic.Int64
	toolCalls           atomic.Int64
	serverRegistrations atomic.Int64
	wsConnections       atomic.Int64
	wsMessages          atomic.Int64
	errors              atomic.Int64
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	TotalRequests       int64 `json:"totalRequests"`
	JSONRPCRequests     int64 `json:"jsonRpcRequests"`
	ToolCalls           int64 `json:"toolCalls"`
	ServerRegistrations int64 `json:"serverRegistrations"`
	WSConnections       int64 `json:"wsConnections"`
	WSMessages          int64 `json:"wsMessages"`
	Errors              int64 `json:"errors"`
}

// NewCollector creates a collector with all counters at zero.
func NewCollector() *Collector {
	return &Collector{startedAt: time.Now()}
}

// StartedAt returns the collector creation time.
func (c *Collector) StartedAt() time.Time {
	return c.startedAt
}

// Uptime returns the elapsed time since the collector was created.
func (c *Collector) Uptime() time.Duration {
	return time.Since(c.startedAt)
}

// IncRequests counts an inbound HTTP request.
func (c *Collector) IncRequests() { c.totalRequests.Add(1) }

// IncJSONRPCRequests counts a decoded JSON-RPC request.
func (c *Collector) IncJSONRPCRequests() { c.jsonRPCRequests.Add(1) }

// IncToolCalls counts a successful tool invocation.
func (c *Collector) IncToolCalls() { c.toolCalls.Add(1) }

// IncRegistrations counts a tool registration.
func (c *Collector) IncRegistrations() { c.serverRegistrations.Add(1) }

// IncWSConnections counts an accepted WebSocket connection.
func (c *Collector) IncWSConnections() { c.wsConnections.Add(1) }

// IncWSMessages counts an inbound WebSocket message.
func (c *Collector) IncWSMessages() { c.wsMessages.Add(1) }

// IncErrors counts an error of any category.
func (c *Collector) IncErrors() { c.errors.Add(1) }

// Snapshot returns a consistent-enough copy of all counters. Individual
// loads are atomic; the struct as a whole is a read under concurrent
// increments, which is all callers need.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		TotalRequests:       c.totalRequests.Load(),
		JSONRPCRequests:     c.jsonRPCRequests.Load(),
		ToolCalls:           c.toolCalls.Load(),
		ServerRegistrations: c.serverRegistrations.Load(),
		WSConnections:       c.wsConnections.Load(),
		WSMessages:          c.wsMessages.Load(),
		Errors:              c.errors.Load(),
	}
}
