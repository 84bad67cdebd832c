// routerd CLI - Command-line interface for the MCP router
package main

import (
	"fmt"
	"os"

	"github.com/getrouterd/routerd/pkg/cli"
)

// Build-time variables set via ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Command represents a registered CLI command.
type Command struct {
	Name     string
	Short    string
	Category string
	Run      func(args []string) error
}

// Registry holds all registered commands.
type Registry struct {
	commands map[string]*Command
	ordered  []*Command
}

func newRegistry() *Registry {
	return &Registry{commands: make(map[string]*Command)}
}

func (r *Registry) register(cmd *Command) {
	r.commands[cmd.Name] = cmd
	r.ordered = append(r.ordered, cmd)
}

func (r *Registry) lookup(name string) (*Command, bool) {
	cmd, ok := r.commands[name]
	return cmd, ok
}

func (r *Registry) isCommand(name string) bool {
	_, ok := r.commands[name]
	return ok
}

// buildRegistry creates the command registry with all CLI commands.
func buildRegistry() *Registry {
	reg := newRegistry()

	// Core
	reg.register(&Command{Name: "serve", Short: "Start the router server (default command)", Category: "Core", Run: cli.RunServe})
	reg.register(&Command{Name: "validate", Short: "Validate a config file without starting the server", Category: "Core", Run: cli.RunValidate})

	// Client
	reg.register(&Command{Name: "call", Short: "Send a JSON-RPC request to a running router", Category: "Client", Run: cli.RunCall})
	reg.register(&Command{Name: "websocket", Short: "Send and stream JSON-RPC over WebSocket", Category: "Client", Run: cli.RunWebSocket})

	// Utilities
	reg.register(&Command{
		Name: "version", Short: "Show version information", Category: "Utilities",
		Run: func(args []string) error {
			return cli.RunVersion(cli.BuildInfo{Version: Version, Commit: Commit, BuildDate: BuildDate}, args)
		},
	})

	return reg
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	reg := buildRegistry()

	command := ""
	var cmdArgs []string

	switch {
	case len(args) == 0:
		// No args at all, run serve
		command = "serve"
		cmdArgs = []string{}
	case args[0] == "" || args[0][0] == '-':
		first := args[0]
		switch first {
		case "--help", "-h":
			printUsage(reg)
			return nil
		case "--version", "-v":
			return cli.RunVersion(cli.BuildInfo{
				Version:   Version,
				Commit:    Commit,
				BuildDate: BuildDate,
			}, nil)
		default:
			// Other flags, run serve with them
			command = "serve"
			cmdArgs = args
		}
	case reg.isCommand(args[0]):
		command = args[0]
		cmdArgs = args[1:]
	default:
		return fmt.Errorf("unknown command: %s\n\nRun 'routerd --help' for usage", args[0])
	}

	cmd, ok := reg.lookup(command)
	if !ok {
		return fmt.Errorf("unknown command: %s\n\nRun 'routerd --help' for usage", command)
	}
	return cmd.Run(cmdArgs)
}

func printUsage(reg *Registry) {
	fmt.Print("routerd - JSON-RPC router for MCP tool servers\n\n")
	fmt.Print("Usage:\n")
	fmt.Print("  routerd                        Start the router with defaults\n")
	fmt.Print("  routerd <command> [flags]      Run a specific command\n")
	fmt.Print("  routerd --help                 Show this help message\n\n")

	categories := []string{"Core", "Client", "Utilities"}

	groups := make(map[string][]*Command)
	for _, cmd := range reg.ordered {
		groups[cmd.Category] = append(groups[cmd.Category], cmd)
	}

	for _, cat := range categories {
		cmds := groups[cat]
		if len(cmds) == 0 {
			continue
		}
		fmt.Printf("%s:\n", cat)
		for _, cmd := range cmds {
			fmt.Printf("  %-24s %s\n", cmd.Name, cmd.Short)
		}
		fmt.Println()
	}

	fmt.Print(`Global Flags:
  -h, --help      Show this help message
  -v, --version   Show version information

Examples:
  # Start the router with defaults on :8765
  routerd serve

  # Start from a config file
  routerd serve --config routerd.yaml

  # List tools on a running router
  routerd call tools/list

  # Call a tool
  routerd call tools/call --params '{"name":"echo","arguments":{"message":"hi"}}'

  # Watch broadcast events
  routerd websocket listen

Run 'routerd <command> --help' for more information on a command.
`)
}
