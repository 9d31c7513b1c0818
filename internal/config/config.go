// Package config loads and validates the hook gateway configuration.
//
// DESIGN: Server and store settings MUST come from the YAML file -
// explicit, auditable configuration. Sandbox, dispatch and sink
// sections have safe defaults applied by withDefaults so a minimal
// config stays minimal.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hookmux/hook-gateway/internal/monitoring"
)

// Config is the root configuration for the hook gateway.
type Config struct {
	Server       ServerConfig            `yaml:"server"`       // HTTP server settings
	Store        StoreConfig             `yaml:"store"`        // hook document locations
	Projects     ProjectsConfig          `yaml:"projects"`     // project registry
	Sandbox      SandboxConfig           `yaml:"sandbox"`      // execution limits and allowlist
	Dispatch     DispatchConfig          `yaml:"dispatch"`     // per-event execution pacing
	Sink         SinkConfig              `yaml:"sink"`         // execution history
	Capabilities CapabilitiesConfig      `yaml:"capabilities"` // external capability services
	Monitoring   monitoring.LoggerConfig `yaml:"monitoring"`   // logging
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`          // Port to listen on
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // Max time to read request
	WriteTimeout time.Duration `yaml:"write_timeout"` // Max time to write response
}

// StoreConfig locates the user-scope hook document.
type StoreConfig struct {
	UserDir string `yaml:"user_dir"` // directory holding the user hooks.json
}

// UserDocPath is the full path of the user-scope hook document.
func (c StoreConfig) UserDocPath() string {
	return filepath.Join(c.UserDir, "hooks.json")
}

// ProjectsConfig locates the project registry.
type ProjectsConfig struct {
	RegistryPath string `yaml:"registry_path"` // JSON registry file; empty means no projects
}

// SandboxConfig bounds hook execution.
type SandboxConfig struct {
	Timeout      time.Duration `yaml:"timeout"`       // wall-clock budget per invocation
	AllowedHosts []string      `yaml:"allowed_hosts"` // utils.fetch allowlist (loopback is implicit)
}

// DispatchConfig paces hook execution within one event. The delay is a
// pointer so an explicit `inter_hook_delay: 0` (no pacing) survives
// defaulting; only an absent key gets the default.
type DispatchConfig struct {
	InterHookDelay *time.Duration `yaml:"inter_hook_delay"` // pause between hooks of one event
}

// Delay returns the configured inter-hook delay.
func (c DispatchConfig) Delay() time.Duration {
	if c.InterHookDelay == nil {
		return 0
	}
	return *c.InterHookDelay
}

// SinkConfig selects the execution history backend.
type SinkConfig struct {
	Type string `yaml:"type"` // "sqlite" or "none"
	Path string `yaml:"path"` // database path for type=sqlite
}

// CapabilitiesConfig points at the external services behind utils.
// Empty URLs disable the corresponding capability.
type CapabilitiesConfig struct {
	SpeechURL   string `yaml:"speech_url"`
	OllamaURL   string `yaml:"ollama_url"`
	OllamaModel string `yaml:"ollama_model"`
	NotifyURL   string `yaml:"notify_url"`
}

// expandEnvWithDefaults expands environment variables with support for
// default values. Supports both ${VAR} and ${VAR:-default} syntax.
func expandEnvWithDefaults(s string) string {
	re := regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultValue := ""
		if len(parts) > 2 {
			defaultValue = parts[2]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config file path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	return LoadFromBytes(data)
}

// LoadFromBytes parses configuration from raw YAML bytes. Supports
// ${VAR:-default} env var expansion, applies defaults, and validates.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := expandEnvWithDefaults(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.withDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// withDefaults fills the sections that have safe defaults.
func (c *Config) withDefaults() {
	if c.Sandbox.Timeout == 0 {
		c.Sandbox.Timeout = 30 * time.Second
	}
	if c.Dispatch.InterHookDelay == nil {
		d := 100 * time.Millisecond
		c.Dispatch.InterHookDelay = &d
	}
	if c.Sink.Type == "" {
		c.Sink.Type = "none"
	}
	if c.Store.UserDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.Store.UserDir = filepath.Join(home, ".hook-gateway")
		}
	}
	if c.Monitoring.Level == "" {
		c.Monitoring.Level = "info"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port == 0 {
		return fmt.Errorf("server.port is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ReadTimeout == 0 {
		return fmt.Errorf("server.read_timeout is required")
	}
	if c.Server.WriteTimeout == 0 {
		return fmt.Errorf("server.write_timeout is required")
	}

	if c.Store.UserDir == "" {
		return fmt.Errorf("store.user_dir is required")
	}

	if c.Sandbox.Timeout < 0 {
		return fmt.Errorf("sandbox.timeout must not be negative")
	}
	if c.Dispatch.Delay() < 0 {
		return fmt.Errorf("dispatch.inter_hook_delay must not be negative")
	}

	switch c.Sink.Type {
	case "none":
	case "sqlite":
		if c.Sink.Path == "" {
			return fmt.Errorf("sink.path is required for sink.type sqlite")
		}
	default:
		return fmt.Errorf("invalid sink.type %q (must be sqlite or none)", c.Sink.Type)
	}

	return nil
}
