package llm

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/samsaffron/claude-gateway/internal/config"
)

// NewProvider creates the agent backend named by cfg.Agent.Backend.
func NewProvider(cfg *config.Config, log logrus.FieldLogger) (Provider, error) {
	switch cfg.Agent.Backend {
	case config.BackendClaudeCLI, "":
		p := NewClaudeBinProvider(cfg.Agent.ClaudePath, log)
		p.SetPreferOAuth(cfg.Agent.PreferOAuth)
		return p, nil
	case config.BackendAnthropic:
		if cfg.Anthropic.APIKey == "" {
			return nil, fmt.Errorf("anthropic API key not configured. Set ANTHROPIC_API_KEY or add to config")
		}
		return NewAnthropicProvider(cfg.Anthropic.APIKey, cfg.Anthropic.BaseURL, cfg.Anthropic.MaxTokens), nil
	default:
		return nil, fmt.Errorf("unknown backend: %s", cfg.Agent.Backend)
	}
}
