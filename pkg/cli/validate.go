package cli

import (
	"flag"
	"fmt"
	"os"
)

// RunValidate checks a config file without starting the server.
func RunValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	configPath := fs.String("config", "routerd.yaml", "Path to config file")

	fs.Usage = func() {
		fmt.Fprint(os.Stderr, `Usage: routerd validate [flags]

Validate a config file without starting the server.

Flags:
      --config   Path to config file (default: routerd.yaml)
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	path := *configPath
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}

	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}

	fmt.Printf("%s: OK\n", path)
	fmt.Printf("  listen:       %s\n", cfg.Server.Addr())
	fmt.Printf("  websocket:    %s\n", cfg.Server.WSPath)
	fmt.Printf("  tool timeout: %s\n", cfg.MCP.ToolTimeout.Std())
	fmt.Printf("  seed tools:   %d\n", len(cfg.Tools))
	if len(cfg.Server.AuthTokens) > 0 {
		fmt.Printf("  auth:         %d token(s)\n", len(cfg.Server.AuthTokens))
	}
	return nil
}
