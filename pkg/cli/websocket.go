package cli

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// RunWebSocket handles the websocket command and its subcommands.
func RunWebSocket(args []string) error {
	if len(args) == 0 {
		printWebSocketUsage()
		return nil
	}

	subcommand := args[0]
	subArgs := args[1:]

	switch subcommand {
	case "send":
		return runWebSocketSend(subArgs)
	case "listen":
		return runWebSocketListen(subArgs)
	case "help", "--help", "-h":
		printWebSocketUsage()
		return nil
	default:
		return fmt.Errorf("unknown websocket subcommand: %s\n\nRun 'routerd websocket --help' for usage", subcommand)
	}
}

func printWebSocketUsage() {
	fmt.Print(`Usage: routerd websocket <subcommand> [flags]

Interact with a running router over WebSocket.

Subcommands:
  send     Send a single JSON-RPC message and print the response
  listen   Stream broadcast events (tool_registered, tool_executed)

Run 'routerd websocket <subcommand> --help' for more information.
`)
}

func wsDial(url, token string, timeout time.Duration) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := dialer.Dial(url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("connection failed: %v (HTTP %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("connection failed: %v", err)
	}
	return conn, nil
}

// runWebSocketSend sends one JSON-RPC frame and waits for the matching
// response; broadcast notifications received in between are skipped.
func runWebSocketSend(args []string) error {
	fs := flag.NewFlagSet("websocket send", flag.ContinueOnError)

	url := fs.String("url", "ws://localhost:8765/ws", "Router WebSocket URL")
	token := fs.String("token", "", "Bearer token")
	timeout := fs.Duration("timeout", 30*time.Second, "Connection and response timeout")

	fs.Usage = func() {
		fmt.Fprint(os.Stderr, `Usage: routerd websocket send [flags] <message>

Send a single JSON-RPC message and print the response.

Arguments:
  message   JSON-RPC request body

Flags:
      --url      Router WebSocket URL (default: ws://localhost:8765/ws)
      --token    Bearer token
      --timeout  Connection and response timeout (default: 30s)

Examples:
  routerd websocket send '{"jsonrpc":"2.0","id":1,"method":"tools/list"}'
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return fmt.Errorf("message is required")
	}
	message := fs.Arg(0)

	var probe struct {
		ID interface{} `json:"id"`
	}
	if err := json.Unmarshal([]byte(message), &probe); err != nil {
		return fmt.Errorf("message is not valid JSON: %w", err)
	}

	conn, err := wsDial(*url, *token, *timeout)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(message)); err != nil {
		return fmt.Errorf("send failed: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(*timeout))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("no response: %w", err)
		}

		var incoming struct {
			ID     interface{} `json:"id"`
			Method string      `json:"method"`
		}
		_ = json.Unmarshal(data, &incoming)
		// Broadcast frames carry a method and no id.
		if incoming.Method != "" && incoming.ID == nil {
			continue
		}

		fmt.Println(string(data))
		return nil
	}
}

// runWebSocketListen streams frames until interrupted.
func runWebSocketListen(args []string) error {
	fs := flag.NewFlagSet("websocket listen", flag.ContinueOnError)

	url := fs.String("url", "ws://localhost:8765/ws", "Router WebSocket URL")
	token := fs.String("token", "", "Bearer token")
	timeout := fs.Duration("timeout", 30*time.Second, "Connection timeout")
	showTime := fs.Bool("timestamps", false, "Prefix each message with its arrival time")

	fs.Usage = func() {
		fmt.Fprint(os.Stderr, `Usage: routerd websocket listen [flags]

Stream broadcast events from a running router. Ctrl+C to exit.

Flags:
      --url         Router WebSocket URL (default: ws://localhost:8765/ws)
      --token       Bearer token
      --timeout     Connection timeout (default: 30s)
      --timestamps  Prefix each message with its arrival time

Examples:
  routerd websocket listen --url ws://localhost:8765/ws
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	conn, err := wsDial(*url, *token, *timeout)
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Fprintf(os.Stderr, "Listening on %s. Ctrl+C to exit.\n", *url)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				done <- err
				return
			}
			if *showTime {
				fmt.Printf("[%s] %s\n", time.Now().Format(time.RFC3339), data)
			} else {
				fmt.Println(string(data))
			}
		}
	}()

	select {
	case <-interrupt:
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		select {
		case <-done:
		case <-time.After(time.Second):
		}
		return nil
	case err := <-done:
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil
		}
		return fmt.Errorf("connection closed: %w", err)
	}
}
