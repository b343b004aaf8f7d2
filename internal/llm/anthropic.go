package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicMaxTokens = 8192

// AnthropicProvider runs a single-turn session against the Messages API.
// There is no agent loop: tool_use blocks are reported, never executed.
type AnthropicProvider struct {
	client    anthropic.Client
	maxTokens int64
}

// NewAnthropicProvider creates a provider. baseURL may be empty.
func NewAnthropicProvider(apiKey, baseURL string, maxTokens int) *AnthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	return &AnthropicProvider{
		client:    anthropic.NewClient(opts...),
		maxTokens: int64(maxTokens),
	}
}

func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Stream emits a system/init event, one assistant event per completed
// content block, and a result event carrying usage.
func (p *AnthropicProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		model := ModelForTier(req.Model)
		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(model),
			MaxTokens: p.maxTokens,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
			},
		}
		if req.SystemPrompt != "" {
			params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
		}

		if err := send(ctx, events, Event{Type: EventSystem, Subtype: SubtypeInit, Model: model}); err != nil {
			return err
		}

		var message anthropic.Message
		stream := p.client.Messages.NewStreaming(ctx, params)
		defer stream.Close()
		for stream.Next() {
			event := stream.Current()
			if err := message.Accumulate(event); err != nil {
				return fmt.Errorf("anthropic accumulate error: %w", err)
			}
			stop, ok := event.AsAny().(anthropic.ContentBlockStopEvent)
			if !ok {
				continue
			}
			idx := int(stop.Index)
			if idx < 0 || idx >= len(message.Content) {
				continue
			}
			block, ok := contentBlockFromAnthropic(message.Content[idx])
			if !ok {
				continue
			}
			ev := Event{
				Type:      EventAssistant,
				SessionID: message.ID,
				Message: &AssistantMessage{
					ID:      message.ID,
					Model:   string(message.Model),
					Content: []ContentBlock{block},
				},
			}
			if err := send(ctx, events, ev); err != nil {
				return err
			}
		}
		if err := stream.Err(); err != nil {
			return fmt.Errorf("anthropic streaming error: %w", err)
		}

		return send(ctx, events, Event{
			Type:      EventResult,
			Subtype:   "success",
			SessionID: message.ID,
			Usage: &Usage{
				InputTokens:  int(message.Usage.InputTokens),
				OutputTokens: int(message.Usage.OutputTokens),
			},
		})
	}), nil
}

func contentBlockFromAnthropic(block anthropic.ContentBlockUnion) (ContentBlock, bool) {
	switch block.Type {
	case BlockText:
		return ContentBlock{Type: BlockText, Text: block.Text}, true
	case BlockToolUse:
		return ContentBlock{Type: BlockToolUse, ID: block.ID, Name: block.Name, Input: block.Input}, true
	}
	return ContentBlock{}, false
}
