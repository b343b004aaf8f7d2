// Package idgen produces completion and tool-call identifiers.
package idgen

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Generator hands out fresh identifiers. Implementations must be safe for
// concurrent use.
type Generator interface {
	CompletionID() string
	ToolCallID() string
}

// UUID generates ids from random v4 UUIDs.
type UUID struct{}

// CompletionID returns "chatcmpl-<uuid>".
func (UUID) CompletionID() string {
	return "chatcmpl-" + uuid.NewString()
}

// ToolCallID returns "call_" followed by 24 hex characters.
func (UUID) ToolCallID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "call_" + hex[:24]
}

// Sequence produces predictable ids ("chatcmpl-1", "call_1", ...).
type Sequence struct {
	mu         sync.Mutex
	completion int
	toolCall   int
}

// CompletionID returns "chatcmpl-N" for the next N.
func (s *Sequence) CompletionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completion++
	return fmt.Sprintf("chatcmpl-%d", s.completion)
}

// ToolCallID returns "call_N" for the next N.
func (s *Sequence) ToolCallID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toolCall++
	return fmt.Sprintf("call_%d", s.toolCall)
}
