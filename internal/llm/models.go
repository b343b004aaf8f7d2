package llm

import (
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
)

// Tier is the backend model family passed to `claude --model`.
type Tier string

const (
	TierOpus   Tier = "opus"
	TierSonnet Tier = "sonnet"
	TierHaiku  Tier = "haiku"
)

// DefaultTier is used for model ids the alias table does not know.
const DefaultTier = TierSonnet

// ModelInfo describes one advertised model.
type ModelInfo struct {
	ID      string
	Tier    Tier
	Created int64
	OwnedBy string
}

// Models is the list served by /v1/models.
var Models = []ModelInfo{
	{ID: string(anthropic.ModelClaudeOpus4_20250514), Tier: TierOpus, Created: 1747180800, OwnedBy: "anthropic"},
	{ID: string(anthropic.ModelClaudeSonnet4_20250514), Tier: TierSonnet, Created: 1747180800, OwnedBy: "anthropic"},
	{ID: string(anthropic.ModelClaude3_5Haiku20241022), Tier: TierHaiku, Created: 1729555200, OwnedBy: "anthropic"},
}

// DefaultModel is the response model id when a request names none.
var DefaultModel = string(anthropic.ModelClaudeSonnet4_20250514)

// modelAliases maps full ids and short names to a tier. Keys are lowercase.
var modelAliases = map[string]Tier{
	"opus":   TierOpus,
	"sonnet": TierSonnet,
	"haiku":  TierHaiku,

	string(anthropic.ModelClaudeOpus4_20250514):   TierOpus,
	string(anthropic.ModelClaude4Opus20250514):    TierOpus,
	string(anthropic.ModelClaudeOpus4_0):          TierOpus,
	string(anthropic.ModelClaudeOpus4_1_20250805): TierOpus,
	string(anthropic.ModelClaudeOpus4_5):          TierOpus,
	string(anthropic.ModelClaudeOpus4_5_20251101): TierOpus,
	"claude-opus-4":                               TierOpus,
	"claude-opus-4-1":                             TierOpus,

	string(anthropic.ModelClaudeSonnet4_20250514):   TierSonnet,
	string(anthropic.ModelClaude4Sonnet20250514):    TierSonnet,
	string(anthropic.ModelClaudeSonnet4_0):          TierSonnet,
	string(anthropic.ModelClaudeSonnet4_5):          TierSonnet,
	string(anthropic.ModelClaudeSonnet4_5_20250929): TierSonnet,
	string(anthropic.ModelClaude3_7Sonnet20250219):  TierSonnet,
	"claude-sonnet-4":                               TierSonnet,

	string(anthropic.ModelClaude3_5Haiku20241022):  TierHaiku,
	string(anthropic.ModelClaude3_5HaikuLatest):    TierHaiku,
	string(anthropic.ModelClaudeHaiku4_5):          TierHaiku,
	string(anthropic.ModelClaudeHaiku4_5_20251001): TierHaiku,
	"claude-3-5-haiku":                             TierHaiku,
}

// LookupTier returns the tier for a model id or alias.
func LookupTier(model string) (Tier, bool) {
	tier, ok := modelAliases[strings.ToLower(strings.TrimSpace(model))]
	return tier, ok
}

// ResolveTier maps a model id to a tier, falling back to fallback for
// unknown ids rather than rejecting them.
func ResolveTier(model string, fallback Tier) Tier {
	if tier, ok := LookupTier(model); ok {
		return tier
	}
	if fallback == "" {
		return DefaultTier
	}
	return fallback
}

// LookupModel finds an advertised model by exact id.
func LookupModel(id string) (ModelInfo, bool) {
	for _, m := range Models {
		if m.ID == id {
			return m, true
		}
	}
	return ModelInfo{}, false
}

// ModelForTier returns the advertised full id for a tier. The Anthropic
// API backend needs a concrete id where the CLI takes a tier name.
func ModelForTier(tier Tier) string {
	for _, m := range Models {
		if m.Tier == tier {
			return m.ID
		}
	}
	return DefaultModel
}
