// Package registry implements the in-memory tool registry.
//
// The registry is the single owner of tool records. Callers only ever see
// copies; mutation happens through Register and RecordUsage. Lifecycle is
// process-lifetime: tools are never deleted.
package registry

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrToolNotFound indicates the named tool is not registered.
var ErrToolNotFound = errors.New("tool not found")

// ErrEmptyName indicates a registration without a tool name.
var ErrEmptyName = errors.New("tool name is required")

// Tool is a registered tool record.
type Tool struct {
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	ServerID     string     `json:"serverId"`
	RegisteredAt time.Time  `json:"registeredAt"`
	UsageCount   int64      `json:"usageCount"`
	LastUsed     *time.Time `json:"lastUsed"`
}

// clone returns an independent copy so callers can't reach registry state.
func (t *Tool) clone() *Tool {
	cp := *t
	if t.LastUsed != nil {
		lu := *t.LastUsed
		cp.LastUsed = &lu
	}
	return &cp
}

// Registry is a concurrency-safe name -> tool mapping.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register inserts or overwrites the entry for name and returns a copy of
// the stored record. Re-registering a name resets its usage counters.
func (r *Registry) Register(name, description, serverID string) (*Tool, error) {
	if name == "" {
		return nil, ErrEmptyName
	}

	tool := &Tool{
		Name:         name,
		Description:  description,
		ServerID:     serverID,
		RegisteredAt: time.Now(),
	}

	r.mu.Lock()
	r.tools[name] = tool
	r.mu.Unlock()

	return tool.clone(), nil
}

// Get returns a copy of the named tool.
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return tool.clone(), true
}

// List returns a snapshot of all registered tools, sorted by name.
// Safe to call concurrently with registration.
func (r *Registry) List() []*Tool {
	r.mu.RLock()
	tools := make([]*Tool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t.clone())
	}
	r.mu.RUnlock()

	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

// RecordUsage increments the usage counter for name, stamps lastUsed, and
// returns a copy of the updated record. Returns ErrToolNotFound when the
// name is absent.
func (r *Registry) RecordUsage(name string) (*Tool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tool, ok := r.tools[name]
	if !ok {
		return nil, ErrToolNotFound
	}

	now := time.Now()
	tool.UsageCount++
	tool.LastUsed = &now

	return tool.clone(), nil
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// ServerCount returns the number of distinct owning server ids.
func (r *Registry) ServerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	servers := make(map[string]struct{}, len(r.tools))
	for _, t := range r.tools {
		servers[t.ServerID] = struct{}{}
	}
	return len(servers)
}
