package completion

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/samsaffron/claude-gateway/internal/llm"
	"github.com/samsaffron/claude-gateway/internal/openai"
)

// ChunkWriter receives the encoded stream. WriteDone emits the terminator.
type ChunkWriter interface {
	WriteChunk(chunk openai.ChatCompletionChunk) error
	WriteDone() error
}

// StreamCursor tracks what a streaming response has already sent.
type StreamCursor struct {
	meta             Meta
	newID            func() string
	sent             map[string]bool
	emittedToolCalls bool
	nextIndex        int
	usage            openai.Usage
}

// NewStreamCursor returns a cursor for one response.
func NewStreamCursor(meta Meta, newID func() string) *StreamCursor {
	return &StreamCursor{meta: meta, newID: newID, sent: make(map[string]bool)}
}

// RoleChunk is the opening chunk announcing the assistant role.
func (c *StreamCursor) RoleChunk() openai.ChatCompletionChunk {
	return c.chunk(openai.Delta{Role: openai.RoleAssistant}, nil)
}

// Advance returns the chunks for one event: a content chunk when the event
// has text, then one tool-call chunk holding only calls not sent before.
func (c *StreamCursor) Advance(ev llm.Event) []openai.ChatCompletionChunk {
	if llm.IsResult(ev) {
		c.usage = llm.ExtractUsage(ev)
		return nil
	}
	if !llm.IsAssistantContent(ev) {
		return nil
	}

	content := llm.ExtractContent(ev, c.newID)
	var chunks []openai.ChatCompletionChunk
	if content.Text != "" {
		chunks = append(chunks, c.chunk(openai.Delta{Content: content.Text}, nil))
	}

	var fresh []openai.ToolCall
	for _, tc := range content.ToolCalls {
		if c.sent[tc.ID] {
			continue
		}
		c.sent[tc.ID] = true
		index := c.nextIndex
		c.nextIndex++
		tc.Index = &index
		fresh = append(fresh, tc)
	}
	if len(fresh) > 0 {
		c.emittedToolCalls = true
		chunks = append(chunks, c.chunk(openai.Delta{ToolCalls: fresh}, nil))
	}
	return chunks
}

// FinalChunk carries the finish reason with an empty delta.
func (c *StreamCursor) FinalChunk() openai.ChatCompletionChunk {
	finish := openai.FinishStop
	if c.emittedToolCalls {
		finish = openai.FinishToolCalls
	}
	return c.chunk(openai.Delta{}, &finish)
}

// UsageChunk reports token usage with no choices.
func (c *StreamCursor) UsageChunk() openai.ChatCompletionChunk {
	usage := c.usage
	chunk := c.chunk(openai.Delta{}, nil)
	chunk.Choices = []openai.ChunkChoice{}
	chunk.Usage = &usage
	return chunk
}

// ErrorChunk reports a backend failure that happened after the stream began.
func (c *StreamCursor) ErrorChunk(err error) openai.ChatCompletionChunk {
	chunk := c.chunk(openai.Delta{}, nil)
	chunk.Choices = []openai.ChunkChoice{}
	chunk.Error = openai.StreamErrorDetail(err)
	return chunk
}

func (c *StreamCursor) chunk(delta openai.Delta, finish *string) openai.ChatCompletionChunk {
	return openai.ChatCompletionChunk{
		ID:      c.meta.ID,
		Object:  openai.ObjectChatCompletionChunk,
		Created: c.meta.Created,
		Model:   c.meta.Model,
		Choices: []openai.ChunkChoice{{
			Index:        0,
			Delta:        delta,
			FinishReason: finish,
		}},
	}
}

// Stream encodes stream onto w as it arrives. A backend error or an expired
// deadline becomes an error chunk followed by the terminator and is also
// returned for logging. A cancelled ctx writes nothing more.
// A write error means the client is gone; consumption stops and the write
// error is returned. The backend stream is always closed.
func Stream(ctx context.Context, stream llm.Stream, meta Meta, w ChunkWriter, newID func() string) error {
	defer stream.Close()

	cursor := NewStreamCursor(meta, newID)
	if err := w.WriteChunk(cursor.RoleChunk()); err != nil {
		return err
	}

	for {
		ev, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Cancellation means the client is gone; a deadline still has a
			// listener that needs the error chunk and terminator.
			if errors.Is(ctx.Err(), context.Canceled) {
				return ctx.Err()
			}
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				err = fmt.Errorf("request timed out: %w", ctx.Err())
			}
			if werr := w.WriteChunk(cursor.ErrorChunk(err)); werr != nil {
				return werr
			}
			if werr := w.WriteDone(); werr != nil {
				return werr
			}
			return fmt.Errorf("backend failed mid-stream: %w", err)
		}
		for _, chunk := range cursor.Advance(ev) {
			if err := w.WriteChunk(chunk); err != nil {
				return err
			}
		}
	}

	if err := w.WriteChunk(cursor.FinalChunk()); err != nil {
		return err
	}
	if meta.IncludeUsage {
		if err := w.WriteChunk(cursor.UsageChunk()); err != nil {
			return err
		}
	}
	return w.WriteDone()
}
