package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/getrouterd/routerd/pkg/metrics"
	"github.com/getrouterd/routerd/pkg/registry"
	"github.com/getrouterd/routerd/pkg/stats"
)

type fakeExecutor struct {
	fn func(ctx context.Context, name string, args map[string]interface{}) (*ToolResult, error)
}

func (f *fakeExecutor) Execute(ctx context.Context, name string, args map[string]interface{}) (*ToolResult, error) {
	if f.fn != nil {
		return f.fn(ctx, name, args)
	}
	return ToolResultText("ok"), nil
}

type fakeBroadcaster struct {
	mu    sync.Mutex
	sent  []interface{}
	conns int
}

func (f *fakeBroadcaster) BroadcastJSON(v interface{}) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, v)
	return f.conns
}

func (f *fakeBroadcaster) Count() int { return f.conns }

func (f *fakeBroadcaster) notifications() []interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]interface{}, len(f.sent))
	copy(out, f.sent)
	return out
}

func newTestDispatcher(t *testing.T, exec ToolExecutor) (*Dispatcher, *registry.Registry, *fakeBroadcaster) {
	t.Helper()

	reg := registry.New()
	bc := &fakeBroadcaster{conns: 2}
	d := NewDispatcher(DispatcherConfig{
		Registry:    reg,
		Stats:       stats.NewCollector(),
		Metrics:     metrics.NewSet(),
		Broadcaster: bc,
		Executor:    exec,
	})
	return d, reg, bc
}

func request(t *testing.T, id interface{}, method string, params interface{}) *JSONRPCRequest {
	t.Helper()

	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			t.Fatalf("marshal params: %v", err)
		}
		raw = b
	}
	return &JSONRPCRequest{JSONRPC: "2.0", ID: id, Method: method, Params: raw}
}

func TestDispatch_EchoesIDAndVersion(t *testing.T) {
	t.Parallel()

	d, _, _ := newTestDispatcher(t, &fakeExecutor{})

	for _, id := range []interface{}{"abc", float64(42)} {
		resp := d.Dispatch(context.Background(), request(t, id, "ping", nil))
		if resp == nil {
			t.Fatal("nil response for request with id")
		}
		if resp.JSONRPC != "2.0" {
			t.Errorf("jsonrpc = %q, want 2.0", resp.JSONRPC)
		}
		if resp.ID != id {
			t.Errorf("id = %v, want %v", resp.ID, id)
		}
		if resp.Error != nil {
			t.Errorf("unexpected error: %v", resp.Error)
		}
	}
}

func TestDispatch_UnknownMethod(t *testing.T) {
	t.Parallel()

	d, _, _ := newTestDispatcher(t, &fakeExecutor{})

	resp := d.Dispatch(context.Background(), request(t, 1, "no/such", nil))
	if resp.Error == nil {
		t.Fatal("expected error response")
	}
	if resp.Error.Code != ErrCodeMethodNotFound {
		t.Errorf("code = %d, want %d", resp.Error.Code, ErrCodeMethodNotFound)
	}
	if resp.Result != nil {
		t.Error("error response must not carry a result")
	}
}

func TestDispatch_NotificationGetsNoResponse(t *testing.T) {
	t.Parallel()

	d, _, _ := newTestDispatcher(t, &fakeExecutor{})

	resp := d.Dispatch(context.Background(), request(t, nil, "ping", nil))
	if resp != nil {
		t.Errorf("notification produced a response: %+v", resp)
	}
}

func TestDispatchBytes_InvalidJSON(t *testing.T) {
	t.Parallel()

	d, _, _ := newTestDispatcher(t, &fakeExecutor{})

	resp := d.DispatchBytes(context.Background(), []byte("{not json"))
	if resp == nil || resp.Error == nil {
		t.Fatal("expected error response for invalid JSON")
	}
	if resp.Error.Code != ErrCodeInvalidRequest {
		t.Errorf("code = %d, want %d", resp.Error.Code, ErrCodeInvalidRequest)
	}
	if resp.ID != nil {
		t.Errorf("id = %v, want null", resp.ID)
	}
}

func TestDispatchBytes_ExplicitNullIDGetsResponse(t *testing.T) {
	t.Parallel()

	d, _, _ := newTestDispatcher(t, &fakeExecutor{})

	resp := d.DispatchBytes(context.Background(), []byte(`{"jsonrpc":"2.0","id":null,"method":"ping"}`))
	if resp == nil {
		t.Fatal("null id is a request id, not a notification; expected a response")
	}
	if resp.ID != nil {
		t.Errorf("id = %v, want null", resp.ID)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	if resp.Result == nil {
		t.Error("expected ping result")
	}

	b, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]interface{}
	_ = json.Unmarshal(b, &m)
	if v, has := m["id"]; !has || v != nil {
		t.Errorf("serialized id = %v (present=%v), want explicit null", v, has)
	}
}

func TestDispatchBytes_MissingMethodEchoesID(t *testing.T) {
	t.Parallel()

	d, _, _ := newTestDispatcher(t, &fakeExecutor{})

	resp := d.DispatchBytes(context.Background(), []byte(`{"jsonrpc":"2.0","id":5}`))
	if resp == nil || resp.Error == nil {
		t.Fatal("expected error response for envelope without method")
	}
	if resp.Error.Code != ErrCodeMethodNotFound {
		t.Errorf("code = %d, want %d", resp.Error.Code, ErrCodeMethodNotFound)
	}
	if resp.ID != float64(5) {
		t.Errorf("id = %v, want 5", resp.ID)
	}
}

func TestDispatchBytes_WrongVersionEchoesID(t *testing.T) {
	t.Parallel()

	d, _, _ := newTestDispatcher(t, &fakeExecutor{})

	resp := d.DispatchBytes(context.Background(), []byte(`{"jsonrpc":"1.0","id":"v","method":"ping"}`))
	if resp == nil || resp.Error == nil {
		t.Fatal("expected error response for wrong protocol version")
	}
	if resp.Error.Code != ErrCodeInvalidRequest {
		t.Errorf("code = %d, want %d", resp.Error.Code, ErrCodeInvalidRequest)
	}
	if resp.ID != "v" {
		t.Errorf("id = %v, want v", resp.ID)
	}
}

func TestToolsRegister_ThenList(t *testing.T) {
	t.Parallel()

	d, _, bc := newTestDispatcher(t, &fakeExecutor{})

	resp := d.Dispatch(context.Background(), request(t, 1, "tools/register", ToolRegisterParams{
		Name:        "echo",
		Description: "echoes input",
		ServerID:    "server-1",
	}))
	if resp.Error != nil {
		t.Fatalf("register failed: %v", resp.Error)
	}
	reg, ok := resp.Result.(*ToolRegisterResult)
	if !ok {
		t.Fatalf("result type %T", resp.Result)
	}
	if !reg.Registered || reg.Name != "echo" || reg.ServerID != "server-1" {
		t.Errorf("unexpected register result: %+v", reg)
	}

	resp = d.Dispatch(context.Background(), request(t, 2, "tools/list", nil))
	if resp.Error != nil {
		t.Fatalf("list failed: %v", resp.Error)
	}
	list := resp.Result.(*ToolsListResult)
	if len(list.Tools) != 1 || list.Tools[0].Name != "echo" {
		t.Errorf("unexpected tools: %+v", list.Tools)
	}
	if list.Tools[0].InputSchema == nil {
		t.Error("tool definition missing input schema")
	}

	notes := bc.notifications()
	if len(notes) != 1 {
		t.Fatalf("got %d notifications, want 1", len(notes))
	}
	n := notes[0].(*JSONRPCNotification)
	if n.Method != EventToolRegistered {
		t.Errorf("notification method = %q, want %q", n.Method, EventToolRegistered)
	}
}

func TestToolsRegister_MissingName(t *testing.T) {
	t.Parallel()

	d, _, _ := newTestDispatcher(t, &fakeExecutor{})

	resp := d.Dispatch(context.Background(), request(t, 1, "tools/register", ToolRegisterParams{Description: "x"}))
	if resp.Error == nil || resp.Error.Code != ErrCodeInvalidParams {
		t.Errorf("expected invalid params, got %+v", resp.Error)
	}
}

func TestToolsCall_Success(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{fn: func(_ context.Context, name string, args map[string]interface{}) (*ToolResult, error) {
		return ToolResultText(fmt.Sprintf("%s: %v", name, args["message"])), nil
	}}
	d, reg, bc := newTestDispatcher(t, exec)
	_, _ = reg.Register("echo", "echoes", "server-1")

	resp := d.Dispatch(context.Background(), request(t, "c1", "tools/call", ToolCallParams{
		Name:      "echo",
		Arguments: map[string]interface{}{"message": "hi"},
	}))
	if resp.Error != nil {
		t.Fatalf("call failed: %v", resp.Error)
	}
	result := resp.Result.(*ToolResult)
	if len(result.Content) != 1 || result.Content[0].Text != "echo: hi" {
		t.Errorf("unexpected result: %+v", result)
	}

	tool, _ := reg.Get("echo")
	if tool.UsageCount != 1 {
		t.Errorf("UsageCount = %d, want 1", tool.UsageCount)
	}
	if tool.LastUsed == nil {
		t.Error("LastUsed not stamped")
	}

	notes := bc.notifications()
	if len(notes) != 1 {
		t.Fatalf("got %d notifications, want 1", len(notes))
	}
	if n := notes[0].(*JSONRPCNotification); n.Method != EventToolExecuted {
		t.Errorf("notification method = %q, want %q", n.Method, EventToolExecuted)
	}
}

func TestToolsCall_UnknownTool(t *testing.T) {
	t.Parallel()

	d, _, _ := newTestDispatcher(t, &fakeExecutor{})

	resp := d.Dispatch(context.Background(), request(t, 1, "tools/call", ToolCallParams{Name: "missing"}))
	if resp.Error == nil {
		t.Fatal("expected error response")
	}
	if resp.Error.Code != ErrCodeToolNotFound {
		t.Errorf("code = %d, want %d", resp.Error.Code, ErrCodeToolNotFound)
	}
	if resp.Error.Message != "Tool 'missing' not found" {
		t.Errorf("message = %q", resp.Error.Message)
	}
}

func TestToolsCall_ExecutorError(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{fn: func(context.Context, string, map[string]interface{}) (*ToolResult, error) {
		return nil, errors.New("boom")
	}}
	d, reg, _ := newTestDispatcher(t, exec)
	_, _ = reg.Register("echo", "", "s")

	resp := d.Dispatch(context.Background(), request(t, 1, "tools/call", ToolCallParams{Name: "echo"}))
	if resp.Error == nil || resp.Error.Code != ErrCodeToolError {
		t.Errorf("expected tool error, got %+v", resp.Error)
	}

	tool, _ := reg.Get("echo")
	if tool.UsageCount != 0 {
		t.Errorf("failed call must not count as usage, got %d", tool.UsageCount)
	}
}

func TestToolsCall_Timeout(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{fn: func(ctx context.Context, _ string, _ map[string]interface{}) (*ToolResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	reg := registry.New()
	_, _ = reg.Register("slow", "", "s")
	d := NewDispatcher(DispatcherConfig{
		Registry:    reg,
		Stats:       stats.NewCollector(),
		Executor:    exec,
		ToolTimeout: 20 * time.Millisecond,
	})

	start := time.Now()
	resp := d.Dispatch(context.Background(), request(t, 1, "tools/call", ToolCallParams{Name: "slow"}))
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("timeout took %v", elapsed)
	}
	if resp.Error == nil || resp.Error.Code != ErrCodeToolTimeout {
		t.Errorf("expected timeout error, got %+v", resp.Error)
	}
}

func TestToolsCall_PanicBecomesInternalError(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{fn: func(context.Context, string, map[string]interface{}) (*ToolResult, error) {
		panic("handler blew up")
	}}
	d, reg, _ := newTestDispatcher(t, exec)
	_, _ = reg.Register("echo", "", "s")

	resp := d.Dispatch(context.Background(), request(t, 7, "tools/call", ToolCallParams{Name: "echo"}))
	if resp == nil || resp.Error == nil {
		t.Fatal("expected error response after panic")
	}
	if resp.Error.Code != ErrCodeInternalError {
		t.Errorf("code = %d, want %d", resp.Error.Code, ErrCodeInternalError)
	}
	if resp.ID != 7 {
		t.Errorf("id = %v, want 7", resp.ID)
	}
}

func TestToolsCall_ConcurrentUsageCounting(t *testing.T) {
	t.Parallel()

	d, reg, _ := newTestDispatcher(t, &fakeExecutor{})
	_, _ = reg.Register("echo", "", "s")

	const calls = 50
	var wg sync.WaitGroup
	wg.Add(calls)
	for i := 0; i < calls; i++ {
		go func(i int) {
			defer wg.Done()
			resp := d.Dispatch(context.Background(), request(t, i, "tools/call", ToolCallParams{Name: "echo"}))
			if resp.Error != nil {
				t.Errorf("call %d: %v", i, resp.Error)
			}
		}(i)
	}
	wg.Wait()

	tool, _ := reg.Get("echo")
	if tool.UsageCount != calls {
		t.Errorf("UsageCount = %d, want %d", tool.UsageCount, calls)
	}
}

func TestMCPStats(t *testing.T) {
	t.Parallel()

	d, reg, bc := newTestDispatcher(t, &fakeExecutor{})
	bc.conns = 3
	_, _ = reg.Register("a", "", "s1")
	_, _ = reg.Register("b", "", "s2")

	resp := d.Dispatch(context.Background(), request(t, 1, "mcp/stats", nil))
	if resp.Error != nil {
		t.Fatalf("mcp/stats failed: %v", resp.Error)
	}
	result := resp.Result.(*StatsResult)
	if result.Tools != 2 {
		t.Errorf("Tools = %d, want 2", result.Tools)
	}
	if result.Servers != 2 {
		t.Errorf("Servers = %d, want 2", result.Servers)
	}
	if result.Clients != 3 || result.Connections != 3 {
		t.Errorf("Clients/Connections = %d/%d, want 3/3", result.Clients, result.Connections)
	}
	if result.Uptime < 0 {
		t.Errorf("Uptime = %f", result.Uptime)
	}

	snap, ok := result.Stats.(stats.Snapshot)
	if !ok {
		t.Fatalf("Stats type %T", result.Stats)
	}
	// ping-free session: only this request went through the dispatcher.
	if snap.JSONRPCRequests != 1 {
		t.Errorf("JSONRPCRequests = %d, want 1", snap.JSONRPCRequests)
	}
}

func TestPing(t *testing.T) {
	t.Parallel()

	d, _, bc := newTestDispatcher(t, &fakeExecutor{})
	bc.conns = 1

	resp := d.Dispatch(context.Background(), request(t, "p", "ping", nil))
	if resp.Error != nil {
		t.Fatalf("ping failed: %v", resp.Error)
	}
	result := resp.Result.(*PingResult)
	if _, err := time.Parse(time.RFC3339Nano, result.Pong); err != nil {
		t.Errorf("Pong is not RFC 3339: %q (%v)", result.Pong, err)
	}
	if result.Connections != 1 {
		t.Errorf("Connections = %d, want 1", result.Connections)
	}
}

func TestDispatch_ResponseSerializesResultXorError(t *testing.T) {
	t.Parallel()

	d, _, _ := newTestDispatcher(t, &fakeExecutor{})

	ok := d.Dispatch(context.Background(), request(t, 1, "ping", nil))
	b, err := json.Marshal(ok)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]interface{}
	_ = json.Unmarshal(b, &m)
	if _, has := m["error"]; has {
		t.Error("success response serialized an error member")
	}
	if _, has := m["result"]; !has {
		t.Error("success response missing result member")
	}

	bad := d.Dispatch(context.Background(), request(t, 2, "no/such", nil))
	b, _ = json.Marshal(bad)
	m = nil
	_ = json.Unmarshal(b, &m)
	if _, has := m["result"]; has {
		t.Error("error response serialized a result member")
	}
	if _, has := m["error"]; !has {
		t.Error("error response missing error member")
	}
}
