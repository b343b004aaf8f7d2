package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"
)

// MockTurn scripts the response to one Stream call.
type MockTurn struct {
	Events []Event
	// Err is returned by Recv after Events have been delivered.
	Err error
	// StartErr is returned by Stream itself.
	StartErr error
	// Delay is slept before each event.
	Delay time.Duration
}

// MockProvider replays scripted turns, one per Stream call, and records
// every request it sees. The last turn repeats once the script runs out.
type MockProvider struct {
	name string

	mu       sync.Mutex
	turns    []MockTurn
	next     int
	requests []Request
	closed   int
}

// NewMockProvider creates an empty mock provider.
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{name: name}
}

// AddTurn appends a scripted turn.
func (m *MockProvider) AddTurn(turn MockTurn) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, turn)
	return m
}

// AddTextResponse appends a turn answering with text and a small usage.
func (m *MockProvider) AddTextResponse(text string) *MockProvider {
	return m.AddTurn(MockTurn{Events: []Event{
		SystemInitEvent("mock-session"),
		TextEvent(text),
		ResultEvent(10, len(strings.Fields(text))),
	}})
}

// AddError appends a turn that fails after the given events.
func (m *MockProvider) AddError(err error, events ...Event) *MockProvider {
	return m.AddTurn(MockTurn{Events: events, Err: err})
}

func (m *MockProvider) Name() string {
	return m.name
}

func (m *MockProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	if len(m.turns) == 0 {
		m.mu.Unlock()
		return nil, errors.New("mock provider: no turns configured")
	}
	idx := m.next
	if idx >= len(m.turns) {
		idx = len(m.turns) - 1
	} else {
		m.next++
	}
	turn := m.turns[idx]
	m.mu.Unlock()

	if turn.StartErr != nil {
		return nil, turn.StartErr
	}
	inner := newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		for _, ev := range turn.Events {
			if turn.Delay > 0 {
				select {
				case <-time.After(turn.Delay):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if err := send(ctx, events, ev); err != nil {
				return err
			}
		}
		return turn.Err
	})
	return &mockStream{eventStream: inner, onClose: m.recordClose}, nil
}

// Requests returns a copy of the requests seen so far.
func (m *MockProvider) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

// Closed returns how many streams have been closed.
func (m *MockProvider) Closed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockProvider) recordClose() {
	m.mu.Lock()
	m.closed++
	m.mu.Unlock()
}

type mockStream struct {
	*eventStream
	onClose func()
	once    sync.Once
}

func (s *mockStream) Close() error {
	s.once.Do(s.onClose)
	return s.eventStream.Close()
}

// SystemInitEvent builds a session-start event.
func SystemInitEvent(sessionID string) Event {
	return Event{Type: EventSystem, Subtype: SubtypeInit, SessionID: sessionID}
}

// TextEvent builds an assistant event with one text block per argument.
func TextEvent(texts ...string) Event {
	blocks := make([]ContentBlock, 0, len(texts))
	for _, t := range texts {
		blocks = append(blocks, ContentBlock{Type: BlockText, Text: t})
	}
	return AssistantEvent(blocks...)
}

// ToolUseEvent builds an assistant event with a single tool_use block.
// input is marshalled to JSON; nil leaves the input absent.
func ToolUseEvent(id, name string, input any) Event {
	block := ContentBlock{Type: BlockToolUse, ID: id, Name: name}
	if input != nil {
		raw, err := json.Marshal(input)
		if err != nil {
			panic(err)
		}
		block.Input = raw
	}
	return AssistantEvent(block)
}

// AssistantEvent builds an assistant event from raw blocks.
func AssistantEvent(blocks ...ContentBlock) Event {
	return Event{Type: EventAssistant, Message: &AssistantMessage{Content: blocks}}
}

// ResultEvent builds a result event with usage.
func ResultEvent(inputTokens, outputTokens int) Event {
	return Event{
		Type:    EventResult,
		Subtype: "success",
		Usage:   &Usage{InputTokens: inputTokens, OutputTokens: outputTokens},
	}
}
