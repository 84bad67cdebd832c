// Package mcp implements the JSON-RPC 2.0 envelope and the router's
// method dispatcher.
package mcp

import (
	"encoding/json"
)

// Version is the routerd protocol implementation version.
const Version = "0.1.0"

// JSON-RPC 2.0 Types

// JSONRPCRequest represents an incoming JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id,omitempty"` // string, number, or null
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`

	// hasID records whether the id member was present at all: an explicit
	// `"id": null` is a valid request id and must be echoed, only an
	// absent id makes a notification.
	hasID bool
}

// UnmarshalJSON implements json.Unmarshaler, keeping absent id distinct
// from literal null.
func (r *JSONRPCRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Method  string          `json:"method"`
		Params  json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.JSONRPC = raw.JSONRPC
	r.Method = raw.Method
	r.Params = raw.Params
	r.hasID = len(raw.ID) > 0
	r.ID = nil
	if r.hasID {
		if err := json.Unmarshal(raw.ID, &r.ID); err != nil {
			return err
		}
	}
	return nil
}

// IsNotification returns true if this is a notification (no id member).
// Requests constructed in code with a non-nil ID count as having an id.
func (r *JSONRPCRequest) IsNotification() bool {
	return !r.hasID && r.ID == nil
}

// JSONRPCResponse represents an outgoing JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      interface{}   `json:"id"`
	Result  interface{}   `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
}

// JSONRPCError represents a JSON-RPC 2.0 error object.
type JSONRPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// JSONRPCNotification represents a server-initiated notification.
type JSONRPCNotification struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// Tool Types

// ToolDefinition describes a tool in the tools/list response shape.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// ToolsListResult is the response for tools/list.
type ToolsListResult struct {
	Tools []ToolDefinition `json:"tools"`
}

// ToolCallParams are parameters for tools/call.
type ToolCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

// ToolRegisterParams are parameters for tools/register.
type ToolRegisterParams struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ServerID    string `json:"serverId,omitempty"`
}

// ToolRegisterResult is the response for tools/register.
type ToolRegisterResult struct {
	Registered bool   `json:"registered"`
	Name       string `json:"name"`
	ServerID   string `json:"serverId"`
}

// ToolResult is the result from tool execution.
type ToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// ContentBlock represents a content item in tool results.
type ContentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// Stats Types

// StatsResult is the response for mcp/stats.
type StatsResult struct {
	Tools       int         `json:"tools"`
	Servers     int         `json:"servers"`
	Clients     int         `json:"clients"`
	Connections int         `json:"connections"`
	Stats       interface{} `json:"stats"`
	Uptime      float64     `json:"uptime"` // seconds
}

// PingResult is the response for ping.
type PingResult struct {
	Pong        string  `json:"pong"` // RFC 3339 timestamp
	Uptime      float64 `json:"uptime"`
	Connections int     `json:"connections"`
}

// Broadcast event methods pushed to WebSocket clients.
const (
	EventToolRegistered = "tool_registered"
	EventToolExecuted   = "tool_executed"
)

// ToolRegisteredEvent is the payload of a tool_registered notification.
type ToolRegisteredEvent struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ServerID    string `json:"serverId"`
	Timestamp   string `json:"timestamp"`
}

// ToolExecutedEvent is the payload of a tool_executed notification.
type ToolExecutedEvent struct {
	Name       string `json:"name"`
	ServerID   string `json:"serverId"`
	UsageCount int64  `json:"usageCount"`
	Timestamp  string `json:"timestamp"`
}
