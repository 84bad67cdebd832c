package websocket

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/getrouterd/routerd/pkg/executor"
	"github.com/getrouterd/routerd/pkg/mcp"
	"github.com/getrouterd/routerd/pkg/registry"
	"github.com/getrouterd/routerd/pkg/stats"
)

func newTestHandler(t *testing.T) (*httptest.Server, *Manager, *stats.Collector, *registry.Registry) {
	t.Helper()

	st := stats.NewCollector()
	reg := registry.New()
	m := NewManager(st, nil, nil)
	d := mcp.NewDispatcher(mcp.DispatcherConfig{
		Registry:    reg,
		Stats:       st,
		Broadcaster: m,
		Executor:    executor.NewLocal().WithBuiltins(),
	})
	h := NewHandler(m, d, st, nil)
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return ts, m, st, reg
}

// TestUpgrade_AcceptKeyVector checks the RFC 6455 Sec-WebSocket-Accept
// derivation against the specification's sample handshake.
func TestUpgrade_AcceptKeyVector(t *testing.T) {
	t.Parallel()

	ts, _, _, _ := newTestHandler(t)

	u, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatal(err)
	}
	conn, err := net.DialTimeout("tcp", u.Host, 5*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	fmt.Fprintf(conn, "GET / HTTP/1.1\r\n"+
		"Host: %s\r\n"+
		"Upgrade: websocket\r\n"+
		"Connection: Upgrade\r\n"+
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n"+
		"Sec-WebSocket-Version: 13\r\n\r\n", u.Host)

	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("status = %d, want 101", resp.StatusCode)
	}
	if got := resp.Header.Get("Sec-WebSocket-Accept"); got != "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=" {
		t.Errorf("Sec-WebSocket-Accept = %q, want s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", got)
	}
	if got := resp.Header.Get("Upgrade"); got != "websocket" {
		t.Errorf("Upgrade = %q, want websocket", got)
	}
}

func TestHandler_DispatchesJSONRPCInOrder(t *testing.T) {
	t.Parallel()

	ts, m, st, _ := newTestHandler(t)
	client := dial(t, ts)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	waitFor(t, func() bool { return m.Count() == 1 })

	for i := 1; i <= 3; i++ {
		body := fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"method":"ping"}`, i)
		if err := client.Write(ctx, websocket.MessageText, []byte(body)); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	for i := 1; i <= 3; i++ {
		_, data, err := client.Read(ctx)
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		var resp mcp.JSONRPCResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			t.Fatalf("unmarshal %d: %v", i, err)
		}
		if id, _ := resp.ID.(float64); int(id) != i {
			t.Errorf("response %d has id %v, out of order", i, resp.ID)
		}
		if resp.Error != nil {
			t.Errorf("response %d: %v", i, resp.Error)
		}
	}

	if st.Snapshot().WSMessages != 3 {
		t.Errorf("WSMessages = %d, want 3", st.Snapshot().WSMessages)
	}
}

func TestHandler_MalformedFrameGetsErrorResponse(t *testing.T) {
	t.Parallel()

	ts, _, _, _ := newTestHandler(t)
	client := dial(t, ts)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Write(ctx, websocket.MessageText, []byte("{broken")); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, data, err := client.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var resp mcp.JSONRPCResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != mcp.ErrCodeInvalidRequest {
		t.Errorf("expected invalid request error, got %+v", resp.Error)
	}
	if resp.ID != nil {
		t.Errorf("id = %v, want null", resp.ID)
	}

	// The connection survives the bad frame.
	if err := client.Write(ctx, websocket.MessageText, []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)); err != nil {
		t.Fatalf("write after bad frame: %v", err)
	}
	if _, _, err := client.Read(ctx); err != nil {
		t.Fatalf("read after bad frame: %v", err)
	}
}

func TestHandler_RegisterBroadcastsToClients(t *testing.T) {
	t.Parallel()

	ts, m, _, _ := newTestHandler(t)
	sender := dial(t, ts)
	watcher := dial(t, ts)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	waitFor(t, func() bool { return m.Count() == 2 })

	body := `{"jsonrpc":"2.0","id":"r1","method":"tools/register","params":{"name":"demo","serverId":"s1"}}`
	if err := sender.Write(ctx, websocket.MessageText, []byte(body)); err != nil {
		t.Fatalf("write: %v", err)
	}

	// The watcher only ever receives the notification.
	_, data, err := watcher.Read(ctx)
	if err != nil {
		t.Fatalf("watcher read: %v", err)
	}
	var note mcp.JSONRPCNotification
	if err := json.Unmarshal(data, &note); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if note.Method != mcp.EventToolRegistered {
		t.Errorf("method = %q, want %q", note.Method, mcp.EventToolRegistered)
	}

	// The sender receives the notification and the response, in that
	// order: the broadcast happens inside dispatch, before the reply.
	sawResponse := false
	for i := 0; i < 2; i++ {
		_, data, err := sender.Read(ctx)
		if err != nil {
			t.Fatalf("sender read %d: %v", i, err)
		}
		var probe struct {
			ID     interface{} `json:"id"`
			Method string      `json:"method"`
		}
		_ = json.Unmarshal(data, &probe)
		if probe.ID == "r1" {
			sawResponse = true
		}
	}
	if !sawResponse {
		t.Error("sender never received the tools/register response")
	}
}

func TestHandler_DisconnectUpdatesCount(t *testing.T) {
	t.Parallel()

	ts, m, _, _ := newTestHandler(t)
	client := dial(t, ts)

	waitFor(t, func() bool { return m.Count() == 1 })
	_ = client.CloseNow()
	waitFor(t, func() bool { return m.Count() == 0 })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}
