// Package config defines the routerd configuration file format and
// loader. Files are YAML or JSON, auto-detected by extension.
package config

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML/JSON strings
// like "30s" or "1m30s", or from a plain number of seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var v interface{}
	if err := node.Decode(&v); err != nil {
		return err
	}
	switch val := v.(type) {
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", val, err)
		}
		*d = Duration(parsed)
	case int:
		*d = Duration(time.Duration(val) * time.Second)
	case float64:
		*d = Duration(time.Duration(val * float64(time.Second)))
	default:
		return fmt.Errorf("invalid duration value %v", v)
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalJSON implements json.Unmarshaler with the same accepted
// forms as the YAML side.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", val, err)
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(time.Duration(val * float64(time.Second)))
	default:
		return fmt.Errorf("invalid duration value %v", v)
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the root routerd configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server" json:"server"`
	MCP     MCPConfig     `yaml:"mcp" json:"mcp"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Tools   []SeedTool    `yaml:"tools,omitempty" json:"tools,omitempty"`
}

// ServerConfig holds the HTTP/WebSocket listener settings.
type ServerConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`

	// WSPath is the path served as the WebSocket endpoint.
	WSPath string `yaml:"wsPath" json:"wsPath"`

	// AuthTokens, when non-empty, requires a matching bearer token on
	// every /api request. The WebSocket endpoint and /health stay open.
	AuthTokens []string `yaml:"authTokens,omitempty" json:"authTokens,omitempty"`

	ReadTimeout     Duration `yaml:"readTimeout" json:"readTimeout"`
	WriteTimeout    Duration `yaml:"writeTimeout" json:"writeTimeout"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout" json:"shutdownTimeout"`
}

// MCPConfig holds protocol-level settings.
type MCPConfig struct {
	// ToolTimeout bounds a single tools/call execution.
	ToolTimeout Duration `yaml:"toolTimeout" json:"toolTimeout"`

	// ServerName and ServerVersion appear in the service descriptor.
	ServerName    string `yaml:"serverName" json:"serverName"`
	ServerVersion string `yaml:"serverVersion" json:"serverVersion"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// SeedTool is a tool registered at startup from the config file.
type SeedTool struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	ServerID    string `yaml:"serverId,omitempty" json:"serverId,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8765,
			WSPath:          "/ws",
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(60 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
		},
		MCP: MCPConfig{
			ToolTimeout:   Duration(30 * time.Second),
			ServerName:    "routerd",
			ServerVersion: "0.1.0",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Addr returns the host:port listen address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
