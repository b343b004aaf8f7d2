// Package prompt flattens an OpenAI conversation into the single prompt and
// optional system prompt the agent backend accepts.
package prompt

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/samsaffron/claude-gateway/internal/openai"
)

// Prompt is the flattened form of one request.
type Prompt struct {
	Prompt       string
	SystemPrompt string // empty when the conversation has no system messages
	// DroppedParts counts non-text content parts (images, audio, files)
	// that could not be carried into the prompt.
	DroppedParts int
}

const (
	historyHeader = "Previous conversation:"
	currentHeader = "Current request:"
)

// Flatten converts messages into a Prompt. System messages are pulled out
// into SystemPrompt; a lone user message is passed through verbatim and
// anything else is rendered as a labelled transcript ending in the latest
// user turn.
func Flatten(messages []openai.Message) (Prompt, error) {
	if len(messages) == 0 {
		return Prompt{}, openai.InvalidRequest("messages", "messages must be a non-empty array")
	}

	var out Prompt
	var system []string
	var conversation []openai.Message
	for _, m := range messages {
		if m.Role == openai.RoleSystem {
			system = append(system, out.text(m.Content))
			continue
		}
		conversation = append(conversation, m)
	}
	out.SystemPrompt = strings.Join(system, "\n\n")

	if len(conversation) == 1 && conversation[0].Role == openai.RoleUser {
		out.Prompt = out.text(conversation[0].Content)
		return out, nil
	}
	out.Prompt = out.transcript(conversation)
	return out, nil
}

func (p *Prompt) transcript(conversation []openai.Message) string {
	lastUser := -1
	for i := len(conversation) - 1; i >= 0; i-- {
		if conversation[i].Role == openai.RoleUser {
			lastUser = i
			break
		}
	}
	if lastUser < 0 {
		return p.formatAll(conversation)
	}

	var sections []string
	if history := p.formatAll(conversation[:lastUser]); history != "" {
		sections = append(sections, historyHeader+"\n"+history)
	}
	if trailing := p.formatAll(conversation[lastUser+1:]); trailing != "" {
		sections = append(sections, trailing)
	}
	sections = append(sections, currentHeader+"\n"+p.text(conversation[lastUser].Content))
	return strings.Join(sections, "\n\n")
}

func (p *Prompt) formatAll(messages []openai.Message) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		lines = append(lines, p.formatMessage(m))
	}
	return strings.Join(lines, "\n\n")
}

func (p *Prompt) formatMessage(m openai.Message) string {
	text := p.text(m.Content)
	if m.Role == openai.RoleTool && m.ToolCallID != "" {
		return "Tool Result (" + m.ToolCallID + "): " + text
	}

	body := text
	if len(m.ToolCalls) > 0 {
		calls := make([]string, 0, len(m.ToolCalls))
		for _, tc := range m.ToolCalls {
			calls = append(calls, "[Tool Call: "+tc.Function.Name+"("+tc.Function.Arguments+")]")
		}
		callText := strings.Join(calls, "\n")
		if body == "" {
			body = callText
		} else {
			body += "\n" + callText
		}
	}
	return roleLabel(m.Role) + ": " + body
}

// text extracts the textual content of a message. Parts are joined with a
// newline; non-text parts are counted and skipped.
func (p *Prompt) text(c openai.Content) string {
	if !c.Present {
		return ""
	}
	if !c.IsParts {
		return c.Text
	}
	texts := make([]string, 0, len(c.Parts))
	for _, part := range c.Parts {
		if part.Type != openai.PartText {
			p.DroppedParts++
			continue
		}
		texts = append(texts, part.Text)
	}
	return strings.Join(texts, "\n")
}

func roleLabel(role openai.Role) string {
	switch role {
	case openai.RoleUser:
		return "User"
	case openai.RoleAssistant:
		return "Assistant"
	case openai.RoleTool:
		return "Tool"
	}
	r, size := utf8.DecodeRuneInString(string(role))
	if r == utf8.RuneError {
		return string(role)
	}
	return string(unicode.ToUpper(r)) + string(role)[size:]
}
