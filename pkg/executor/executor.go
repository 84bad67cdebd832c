// Package executor provides the in-process tool executor backing
// tools/call. Tools are plain functions keyed by name; anything routerd
// cannot resolve locally is an execution error, not a routing error.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/getrouterd/routerd/pkg/mcp"
)

// Func is a single tool implementation.
type Func func(ctx context.Context, args map[string]interface{}) (*mcp.ToolResult, error)

// Local executes tools registered as in-process functions. It implements
// mcp.ToolExecutor.
type Local struct {
	mu       sync.RWMutex
	handlers map[string]Func
}

// NewLocal creates an empty local executor.
func NewLocal() *Local {
	return &Local{handlers: make(map[string]Func)}
}

// Handle registers fn as the implementation of the named tool,
// replacing any previous handler.
func (l *Local) Handle(name string, fn Func) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[name] = fn
}

// Execute runs the named tool. Before invoking the handler it checks the
// context so an already-expired deadline fails fast.
func (l *Local) Execute(ctx context.Context, name string, args map[string]interface{}) (*mcp.ToolResult, error) {
	l.mu.RLock()
	fn, ok := l.handlers[name]
	l.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no handler for tool %q", name)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return fn(ctx, args)
}

// WithBuiltins registers the stock tools: echo, time and uuid.
func (l *Local) WithBuiltins() *Local {
	l.Handle("echo", Echo)
	l.Handle("time", Now)
	l.Handle("uuid", UUID)
	return l
}

// Builtins describes the stock tools for seeding a registry.
func Builtins() []struct{ Name, Description string } {
	return []struct{ Name, Description string }{
		{"echo", "Echoes back the provided message"},
		{"time", "Returns the current server time in RFC 3339 format"},
		{"uuid", "Generates a random UUID"},
	}
}

// Echo returns the message argument verbatim; absent a message it echoes
// the whole argument object.
func Echo(_ context.Context, args map[string]interface{}) (*mcp.ToolResult, error) {
	if msg, ok := args["message"].(string); ok {
		return mcp.ToolResultText(msg), nil
	}
	b, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	return mcp.ToolResultText(string(b)), nil
}

// Now returns the current time in RFC 3339 format.
func Now(_ context.Context, _ map[string]interface{}) (*mcp.ToolResult, error) {
	return mcp.ToolResultText(time.Now().UTC().Format(time.RFC3339)), nil
}

// UUID generates a random version-4 UUID.
func UUID(_ context.Context, _ map[string]interface{}) (*mcp.ToolResult, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, err
	}
	return mcp.ToolResultText(id.String()), nil
}
