package llm

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/samsaffron/claude-gateway/internal/openai"
)

// IsAssistantContent reports whether ev carries assistant content blocks.
func IsAssistantContent(ev Event) bool {
	return ev.Type == EventAssistant && ev.Message != nil
}

// IsResult reports whether ev is the final result event. Usage is optional.
func IsResult(ev Event) bool {
	return ev.Type == EventResult
}

// IsSystemInit reports whether ev is the session-start event.
func IsSystemInit(ev Event) bool {
	return ev.Type == EventSystem && ev.Subtype == SubtypeInit
}

// Content is the text and tool calls of one assistant event.
type Content struct {
	Text      string
	ToolCalls []openai.ToolCall
}

// ExtractContent pulls text and tool calls out of an assistant event. Text
// blocks are joined with a newline. Tool calls without an id get one from
// newID.
func ExtractContent(ev Event, newID func() string) Content {
	if ev.Message == nil {
		return Content{}
	}
	var texts []string
	var calls []openai.ToolCall
	for _, block := range ev.Message.Content {
		switch block.Type {
		case BlockText:
			texts = append(texts, block.Text)
		case BlockToolUse:
			id := block.ID
			if id == "" {
				id = newID()
			}
			calls = append(calls, openai.NewToolCall(id, block.Name, toolArguments(block.Input)))
		}
	}
	return Content{Text: strings.Join(texts, "\n"), ToolCalls: calls}
}

// toolArguments renders a tool input as compact JSON, "{}" when absent.
func toolArguments(input json.RawMessage) string {
	trimmed := bytes.TrimSpace(input)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "{}"
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return string(trimmed)
	}
	return buf.String()
}

// ExtractUsage reads token counts from a result event. Missing counts are 0.
func ExtractUsage(ev Event) openai.Usage {
	if ev.Usage == nil {
		return openai.NewUsage(0, 0)
	}
	return openai.NewUsage(ev.Usage.InputTokens, ev.Usage.OutputTokens)
}
