package cli

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// RunCall sends a single JSON-RPC request to a running router over HTTP
// and prints the response.
func RunCall(args []string) error {
	fs := flag.NewFlagSet("call", flag.ContinueOnError)

	url := fs.String("url", "http://localhost:8765/api/mcp", "Router JSON-RPC endpoint")
	token := fs.String("token", "", "Bearer token for authenticated routers")
	params := fs.String("params", "", "JSON params object")
	timeout := fs.Duration("timeout", 35*time.Second, "Request timeout")

	fs.Usage = func() {
		fmt.Fprint(os.Stderr, `Usage: routerd call [flags] <method>

Send a single JSON-RPC request to a running router.

Arguments:
  method   JSON-RPC method (e.g. tools/list, tools/call, ping)

Flags:
      --url      Router endpoint (default: http://localhost:8765/api/mcp)
      --token    Bearer token for authenticated routers
      --params   JSON params object
      --timeout  Request timeout (default: 35s)

Examples:
  # List registered tools
  routerd call tools/list

  # Call the echo tool
  routerd call tools/call --params '{"name":"echo","arguments":{"message":"hi"}}'

  # Register a tool
  routerd call tools/register --params '{"name":"search","serverId":"search-srv"}'
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return fmt.Errorf("method is required")
	}
	method := fs.Arg(0)

	reqBody := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      fmt.Sprintf("cli-%d", time.Now().UnixNano()),
		"method":  method,
	}
	if *params != "" {
		var p json.RawMessage
		if err := json.Unmarshal([]byte(*params), &p); err != nil {
			return fmt.Errorf("invalid --params JSON: %w", err)
		}
		reqBody["params"] = p
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, *url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if *token != "" {
		req.Header.Set("Authorization", "Bearer "+*token)
	}

	client := &http.Client{Timeout: *timeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		fmt.Println(string(data))
		return nil
	}
	fmt.Println(pretty.String())

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("router returned HTTP %d", resp.StatusCode)
	}
	return nil
}
