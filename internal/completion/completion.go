// Package completion turns a backend event stream into OpenAI chat
// completion responses, either one buffered object or a chunk sequence.
package completion

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/samsaffron/claude-gateway/internal/llm"
	"github.com/samsaffron/claude-gateway/internal/openai"
)

// Meta is the per-response envelope shared by every object or chunk.
type Meta struct {
	ID           string
	Model        string
	Created      int64
	IncludeUsage bool
}

// Accumulator collects text, tool calls and usage across a backend stream.
// Tool calls are deduplicated by id; the first occurrence wins.
type Accumulator struct {
	newID     func() string
	texts     []string
	toolCalls []openai.ToolCall
	seen      map[string]bool
	usage     openai.Usage
}

// NewAccumulator returns an empty accumulator. newID supplies ids for tool
// calls the backend left unnamed.
func NewAccumulator(newID func() string) *Accumulator {
	return &Accumulator{newID: newID, seen: make(map[string]bool)}
}

// Add folds one event into the accumulated state.
func (a *Accumulator) Add(ev llm.Event) {
	switch {
	case llm.IsAssistantContent(ev):
		content := llm.ExtractContent(ev, a.newID)
		if content.Text != "" {
			a.texts = append(a.texts, content.Text)
		}
		for _, tc := range content.ToolCalls {
			if a.seen[tc.ID] {
				continue
			}
			a.seen[tc.ID] = true
			a.toolCalls = append(a.toolCalls, tc)
		}
	case llm.IsResult(ev):
		a.usage = llm.ExtractUsage(ev)
	}
}

// Completion builds the final response. Content is null when no text was
// produced.
func (a *Accumulator) Completion(meta Meta) *openai.ChatCompletion {
	msg := openai.ResponseMessage{Role: openai.RoleAssistant}
	if len(a.texts) > 0 {
		text := strings.Join(a.texts, "\n\n")
		msg.Content = &text
	}
	finish := openai.FinishStop
	if len(a.toolCalls) > 0 {
		msg.ToolCalls = append([]openai.ToolCall(nil), a.toolCalls...)
		finish = openai.FinishToolCalls
	}
	return &openai.ChatCompletion{
		ID:      meta.ID,
		Object:  openai.ObjectChatCompletion,
		Created: meta.Created,
		Model:   meta.Model,
		Choices: []openai.Choice{{
			Index:        0,
			Message:      msg,
			FinishReason: finish,
		}},
		Usage: a.usage,
	}
}

// Collect drains stream and returns the buffered completion. The stream is
// always closed.
func Collect(ctx context.Context, stream llm.Stream, meta Meta, newID func() string) (*openai.ChatCompletion, error) {
	defer stream.Close()
	acc := NewAccumulator(newID)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ev, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		acc.Add(ev)
	}
	return acc.Completion(meta), nil
}
