// ABOUTME: Configuration loading and parsing for coven-chat and its dev backend
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// DefaultBackendURL is where the client looks for a backend when nothing is configured.
const DefaultBackendURL = "http://localhost:8000"

// DefaultSuggestions are the prompts offered on an empty conversation.
var DefaultSuggestions = []string{
	"Help me code a Python script",
	"Brainstorm names for my startup",
	"Explain quantum computing simply",
	"Write a thank you email",
}

// Config represents the complete coven-chat configuration
type Config struct {
	Backend   BackendConfig   `yaml:"backend" toml:"backend"`
	Chat      ChatConfig      `yaml:"chat" toml:"chat"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	DevServer DevServerConfig `yaml:"devserver" toml:"devserver"`
}

// BackendConfig describes how the client reaches the conversational backend
type BackendConfig struct {
	URL       string `yaml:"url" toml:"url"`
	Token     string `yaml:"token" toml:"token"`
	TokenFile string `yaml:"token_file" toml:"token_file"`

	// RequestTimeout bounds thread list/history/delete calls. Streams are never timed out.
	RequestTimeout    time.Duration `yaml:"-" toml:"-"`
	RequestTimeoutRaw string        `yaml:"request_timeout" toml:"request_timeout"`
}

// ChatConfig holds presentation-adjacent chat settings
type ChatConfig struct {
	Suggestions []string `yaml:"suggestions" toml:"suggestions"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// DevServerConfig holds settings for the development backend
type DevServerConfig struct {
	Addr      string `yaml:"addr" toml:"addr"`
	Database  string `yaml:"database" toml:"database"` // empty keeps everything in memory
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`

	ChunkDelay    time.Duration `yaml:"-" toml:"-"`
	ChunkDelayRaw string        `yaml:"chunk_delay" toml:"chunk_delay"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			URL:            DefaultBackendURL,
			RequestTimeout: 30 * time.Second,
		},
		Chat: ChatConfig{
			Suggestions: append([]string(nil), DefaultSuggestions...),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		DevServer: DevServerConfig{
			Addr:       "127.0.0.1:8000",
			ChunkDelay: 20 * time.Millisecond,
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Unset fields keep the values from Default().
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	cfg := Default()
	// Duration defaults live in the parsed fields; keep them unless the file sets a raw value
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault behaves like Load but returns Default() when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// Path returns the path to the chat config file.
// Priority: COVEN_CHAT_CONFIG env var > XDG_CONFIG_HOME/coven/chat.yaml > ~/.config/coven/chat.yaml
func Path() string {
	if envPath := os.Getenv("COVEN_CHAT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir, ok := configHome()
	if !ok {
		return "chat.yaml" // fallback
	}
	return filepath.Join(configDir, "coven", "chat.yaml")
}

// ResolveToken returns the bearer token to send to the backend.
// Priority: backend.token > COVEN_TOKEN env var > backend.token_file > XDG_CONFIG_HOME/coven/token
func (c *Config) ResolveToken() string {
	if c.Backend.Token != "" {
		return c.Backend.Token
	}
	if token := os.Getenv("COVEN_TOKEN"); token != "" {
		return token
	}

	tokenPath := c.Backend.TokenFile
	if tokenPath == "" {
		configDir, ok := configHome()
		if !ok {
			return ""
		}
		tokenPath = filepath.Join(configDir, "coven", "token")
	}

	data, err := os.ReadFile(tokenPath)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func configHome() (string, bool) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return dir, true
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", false
	}
	return filepath.Join(homeDir, ".config"), true
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("backend.url is required")
	}
	u, err := url.Parse(c.Backend.URL)
	if err != nil {
		return fmt.Errorf("backend.url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("backend.url must use http or https scheme")
	}

	if c.Backend.RequestTimeout < 0 {
		return fmt.Errorf("backend.request_timeout must not be negative")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}

	if c.DevServer.ChunkDelay < 0 {
		return fmt.Errorf("devserver.chunk_delay must not be negative")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Backend.RequestTimeoutRaw != "" {
		cfg.Backend.RequestTimeout, err = time.ParseDuration(cfg.Backend.RequestTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing request_timeout %q: %w", cfg.Backend.RequestTimeoutRaw, err)
		}
	}

	if cfg.DevServer.ChunkDelayRaw != "" {
		cfg.DevServer.ChunkDelay, err = time.ParseDuration(cfg.DevServer.ChunkDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing chunk_delay %q: %w", cfg.DevServer.ChunkDelayRaw, err)
		}
	}

	return nil
}
