package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// AppName names the config directory and local config file.
const AppName = "claude-gateway"

// Backend names.
const (
	BackendClaudeCLI = "claude-cli"
	BackendAnthropic = "anthropic"
)

// Config is loaded once at startup and treated as read-only afterwards.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Agent     AgentConfig     `mapstructure:"agent" yaml:"agent"`
	Anthropic AnthropicConfig `mapstructure:"anthropic" yaml:"anthropic"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-" yaml:"-"`
}

// ServerConfig configures the HTTP listener and client authentication.
type ServerConfig struct {
	Host        string   `mapstructure:"host" yaml:"host"`
	Port        int      `mapstructure:"port" yaml:"port"`
	APIKey      string   `mapstructure:"api_key" yaml:"api_key"`
	AllowNoAuth bool     `mapstructure:"allow_no_auth" yaml:"allow_no_auth"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// AgentConfig configures the agent backend and its execution options.
type AgentConfig struct {
	Backend          string   `mapstructure:"backend" yaml:"backend"`
	ClaudePath       string   `mapstructure:"claude_path" yaml:"claude_path"`
	MaxTurns         int      `mapstructure:"max_turns" yaml:"max_turns"`
	WorkingDirectory string   `mapstructure:"working_directory" yaml:"working_directory"`
	AllowedTools     []string `mapstructure:"allowed_tools" yaml:"allowed_tools"`
	AutoDenyTools    bool     `mapstructure:"auto_deny_tools" yaml:"auto_deny_tools"`
	DefaultModel     string   `mapstructure:"default_model" yaml:"default_model"`
	PreferOAuth      bool     `mapstructure:"prefer_oauth" yaml:"prefer_oauth"`
}

// AnthropicConfig configures the Messages API backend.
type AnthropicConfig struct {
	APIKey    string `mapstructure:"api_key" yaml:"api_key"`
	BaseURL   string `mapstructure:"base_url" yaml:"base_url"`
	MaxTokens int    `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// LogConfig configures logrus.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// envAliases binds conventional unprefixed variable names in addition to
// the CLAUDE_GATEWAY_* form.
var envAliases = map[string]string{
	"server.api_key":          "API_KEY",
	"server.port":             "PORT",
	"server.host":             "HOST",
	"anthropic.api_key":       "ANTHROPIC_API_KEY",
	"agent.max_turns":         "MAX_TURNS",
	"agent.working_directory": "CLAUDE_CWD",
	"agent.allowed_tools":     "ALLOWED_TOOLS",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.allow_no_auth", false)
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("agent.backend", BackendClaudeCLI)
	v.SetDefault("agent.claude_path", "claude")
	v.SetDefault("agent.max_turns", 10)
	v.SetDefault("agent.working_directory", "")
	v.SetDefault("agent.allowed_tools", []string{})
	v.SetDefault("agent.auto_deny_tools", true)
	v.SetDefault("agent.default_model", "claude-sonnet-4-20250514")
	v.SetDefault("agent.prefer_oauth", false)
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("anthropic.max_tokens", 8192)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads configuration from defaults, an optional YAML file and the
// environment. path names an explicit file; when empty, ./claude-gateway.yaml
// and then the XDG config file are tried.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CLAUDE_GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, alias := range envAliases {
		prefixed := "CLAUDE_GATEWAY_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, alias); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", alias, err)
		}
	}

	file, err := FindConfigFile(path)
	if err != nil {
		return nil, err
	}
	if file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.File = file
	cfg.Server.APIKey = expandEnv(cfg.Server.APIKey)
	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)
	cfg.Agent.AllowedTools = splitList(cfg.Agent.AllowedTools)
	cfg.Server.CORSOrigins = splitList(cfg.Server.CORSOrigins)
	return &cfg, nil
}

// FindConfigFile returns the file Load would read: explicit when given
// (an error if it is missing), else ./claude-gateway.yaml, else the XDG
// config file. It returns "" when none exists.
func FindConfigFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file %s: %w", explicit, err)
		}
		return explicit, nil
	}
	candidates := []string{AppName + ".yaml"}
	if p, err := GetConfigPath(); err == nil {
		candidates = append(candidates, p)
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", nil
}

// splitList trims entries and splits any that still hold commas, which
// happens when a list arrives as a single environment string.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Overrides carries CLI flag values. Nil fields were not set on the command
// line and leave the loaded value alone.
type Overrides struct {
	Host             *string
	Port             *int
	APIKey           *string
	AllowNoAuth      *bool
	CORSOrigins      []string
	Backend          *string
	MaxTurns         *int
	WorkingDirectory *string
	AllowedTools     []string
	LogLevel         *string
}

// ApplyOverrides applies explicitly set CLI flags on top of the loaded config.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.Host != nil {
		c.Server.Host = *o.Host
	}
	if o.Port != nil {
		c.Server.Port = *o.Port
	}
	if o.APIKey != nil {
		c.Server.APIKey = *o.APIKey
	}
	if o.AllowNoAuth != nil {
		c.Server.AllowNoAuth = *o.AllowNoAuth
	}
	if o.CORSOrigins != nil {
		c.Server.CORSOrigins = splitList(o.CORSOrigins)
	}
	if o.Backend != nil {
		c.Agent.Backend = *o.Backend
	}
	if o.MaxTurns != nil {
		c.Agent.MaxTurns = *o.MaxTurns
	}
	if o.WorkingDirectory != nil {
		c.Agent.WorkingDirectory = *o.WorkingDirectory
	}
	if o.AllowedTools != nil {
		c.Agent.AllowedTools = splitList(o.AllowedTools)
	}
	if o.LogLevel != nil {
		c.Log.Level = *o.LogLevel
	}
}

// Validate checks the settings the server needs before it can start.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.APIKey == "" {
		switch {
		case !c.Server.AllowNoAuth:
			errs = append(errs, errors.New("server.api_key is required (set API_KEY, or allow_no_auth on a loopback host)"))
		case !isLoopback(c.Server.Host):
			errs = append(errs, fmt.Errorf("server.allow_no_auth requires a loopback host, got %q", c.Server.Host))
		}
	}
	if c.Agent.MaxTurns <= 0 {
		errs = append(errs, fmt.Errorf("agent.max_turns must be positive, got %d", c.Agent.MaxTurns))
	}
	switch c.Agent.Backend {
	case BackendClaudeCLI:
	case BackendAnthropic:
		if c.Anthropic.APIKey == "" {
			errs = append(errs, errors.New("anthropic.api_key is required for the anthropic backend (set ANTHROPIC_API_KEY)"))
		}
	default:
		errs = append(errs, fmt.Errorf("agent.backend must be %q or %q, got %q", BackendClaudeCLI, BackendAnthropic, c.Agent.Backend))
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, fmt.Sprint(c.Server.Port))
}

const redactedValue = "********"

// Redacted returns a copy with secrets masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	out.Server.CORSOrigins = append([]string(nil), c.Server.CORSOrigins...)
	out.Agent.AllowedTools = append([]string(nil), c.Agent.AllowedTools...)
	if out.Server.APIKey != "" {
		out.Server.APIKey = redactedValue
	}
	if out.Anthropic.APIKey != "" {
		out.Anthropic.APIKey = redactedValue
	}
	return &out
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// expandEnv expands ${VAR} or $VAR in a string
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}
	if strings.HasPrefix(s, "$") {
		return os.Getenv(s[1:])
	}
	return s
}

// GetConfigDir returns the XDG config directory for claude-gateway.
// Uses $XDG_CONFIG_HOME if set, otherwise ~/.config
func GetConfigDir() (string, error) {
	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		return filepath.Join(xdgHome, AppName), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", AppName), nil
}

// GetConfigPath returns the path of the XDG config file.
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.yaml"), nil
}
