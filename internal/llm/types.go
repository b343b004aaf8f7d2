package llm

import (
	"context"
	"encoding/json"
)

// Provider runs one agent session per Stream call.
type Provider interface {
	Name() string
	Stream(ctx context.Context, req Request) (Stream, error)
}

// Stream yields events until io.EOF. Close releases the backend (killing a
// subprocess or aborting an HTTP stream) and is safe to call more than once.
type Stream interface {
	Recv() (Event, error)
	Close() error
}

// Request is one agent session: a flattened prompt plus execution options.
type Request struct {
	Prompt           string
	SystemPrompt     string
	Model            Tier
	MaxTurns         int
	AllowedTools     []string
	AutoDenyTools    bool
	WorkingDirectory string
}

// EventType tags a backend event.
type EventType string

const (
	EventSystem    EventType = "system"
	EventAssistant EventType = "assistant"
	EventUser      EventType = "user"
	EventResult    EventType = "result"
)

// SubtypeInit marks the session-start system event.
const SubtypeInit = "init"

// Event is one backend message. The field layout matches a line of
// `claude --output-format stream-json`, so CLI output decodes directly.
type Event struct {
	Type      EventType         `json:"type"`
	Subtype   string            `json:"subtype,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	Model     string            `json:"model,omitempty"`
	Message   *AssistantMessage `json:"message,omitempty"`
	Usage     *Usage            `json:"usage,omitempty"`
	IsError   bool              `json:"is_error,omitempty"`
	Result    string            `json:"result,omitempty"`
}

// AssistantMessage carries the content blocks of an assistant turn.
type AssistantMessage struct {
	ID      string         `json:"id,omitempty"`
	Model   string         `json:"model,omitempty"`
	Content []ContentBlock `json:"content"`
}

// Content block kinds.
const (
	BlockText    = "text"
	BlockToolUse = "tool_use"
)

// ContentBlock is a text or tool_use block. Other kinds (thinking,
// tool_result) decode but are ignored.
type ContentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

// Usage is the token count reported on a result event.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}
