package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/getrouterd/routerd/pkg/config"
	"github.com/getrouterd/routerd/pkg/executor"
	"github.com/getrouterd/routerd/pkg/logging"
	"github.com/getrouterd/routerd/pkg/mcp"
	"github.com/getrouterd/routerd/pkg/metrics"
	"github.com/getrouterd/routerd/pkg/registry"
	"github.com/getrouterd/routerd/pkg/server"
	"github.com/getrouterd/routerd/pkg/stats"
	"github.com/getrouterd/routerd/pkg/websocket"
)

// RunServe starts the router server and blocks until SIGINT/SIGTERM.
func RunServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)

	configPath := fs.String("config", "", "Path to config file (YAML or JSON)")
	host := fs.String("host", "", "Listen host (overrides config)")
	port := fs.Int("port", 0, "Listen port (overrides config)")
	wsPath := fs.String("ws-path", "", "WebSocket endpoint path (overrides config)")
	logLevel := fs.String("log-level", "", "Log level: debug, info, warn, error")
	logFormat := fs.String("log-format", "", "Log format: text or json")
	toolTimeout := fs.Duration("tool-timeout", 0, "Per-tool-call timeout (overrides config)")
	noBuiltins := fs.Bool("no-builtins", false, "Do not register the built-in tools")

	fs.Usage = func() {
		fmt.Fprint(os.Stderr, `Usage: routerd serve [flags]

Start the MCP router server.

Flags:
      --config        Path to config file (YAML or JSON)
      --host          Listen host (overrides config)
      --port          Listen port (overrides config)
      --ws-path       WebSocket endpoint path (overrides config)
      --log-level     Log level: debug, info, warn, error
      --log-format    Log format: text or json
      --tool-timeout  Per-tool-call timeout (e.g. 45s)
      --no-builtins   Do not register the built-in tools

Examples:
  # Start with defaults on :8765
  routerd serve

  # Start from a config file with debug logging
  routerd serve --config routerd.yaml --log-level debug
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	applyOverrides(cfg, *host, *port, *wsPath, *logLevel, *logFormat, *toolTimeout)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log := logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.Logging.Level),
		Format: logging.ParseFormat(cfg.Logging.Format),
	})

	st := stats.NewCollector()
	set := metrics.NewSet()
	reg := registry.New()

	exec := executor.NewLocal()
	if !*noBuiltins {
		if err := registerBuiltins(reg, st, exec, cfg.MCP.ServerName); err != nil {
			return err
		}
	}

	manager := websocket.NewManager(st, set, log)
	dispatcher := mcp.NewDispatcher(mcp.DispatcherConfig{
		Registry:    reg,
		Stats:       st,
		Metrics:     set,
		Broadcaster: manager,
		Executor:    exec,
		ToolTimeout: cfg.MCP.ToolTimeout.Std(),
		ServerID:    cfg.MCP.ServerName,
		Logger:      log,
	})
	wsHandler := websocket.NewHandler(manager, dispatcher, st, log)

	srv, err := server.New(server.Options{
		Config:     cfg,
		Registry:   reg,
		Stats:      st,
		Metrics:    set,
		Dispatcher: dispatcher,
		WSManager:  manager,
		WSHandler:  wsHandler,
		Logger:     log,
	})
	if err != nil {
		return err
	}

	log.Info("starting router",
		"version", mcp.Version,
		"addr", srv.Addr(),
		"tools", reg.Count())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		<-ctx.Done()
		return srv.Shutdown(context.Background())
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	log.Info("stopped")
	return nil
}

// registerBuiltins wires the built-in tool handlers into the executor and
// the registry. Each registration counts toward serverRegistrations, same
// as any other path into the registry.
func registerBuiltins(reg *registry.Registry, st *stats.Collector, exec *executor.Local, serverID string) error {
	exec.WithBuiltins()
	for _, b := range executor.Builtins() {
		if _, err := reg.Register(b.Name, b.Description, serverID); err != nil {
			return fmt.Errorf("register builtin %q: %w", b.Name, err)
		}
		st.IncRegistrations()
	}
	return nil
}

// loadConfig loads the given file, or the defaults when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func applyOverrides(cfg *config.Config, host string, port int, wsPath, logLevel, logFormat string, toolTimeout time.Duration) {
	if host != "" {
		cfg.Server.Host = host
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	if wsPath != "" {
		cfg.Server.WSPath = wsPath
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	if toolTimeout > 0 {
		cfg.MCP.ToolTimeout = config.Duration(toolTimeout)
	}
}
