package prompt

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/samsaffron/claude-gateway/internal/openai"
)

func msg(role openai.Role, text string) openai.Message {
	return openai.Message{Role: role, Content: openai.TextContent(text)}
}

func TestFlatten(t *testing.T) {
	t.Run("empty input is rejected", func(t *testing.T) {
		_, err := Flatten(nil)
		var apiErr *openai.APIError
		if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest || apiErr.Param != "messages" {
			t.Fatalf("Flatten(nil) error = %v, want invalid messages", err)
		}
	})

	t.Run("single user message passes through verbatim", func(t *testing.T) {
		got, err := Flatten([]openai.Message{msg(openai.RoleUser, "Hi\nthere")})
		if err != nil {
			t.Fatalf("Flatten failed: %v", err)
		}
		if got.Prompt != "Hi\nthere" || got.SystemPrompt != "" {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("one system and one user", func(t *testing.T) {
		got, err := Flatten([]openai.Message{
			msg(openai.RoleSystem, "You are helpful."),
			msg(openai.RoleUser, "What is Go?"),
		})
		if err != nil {
			t.Fatalf("Flatten failed: %v", err)
		}
		if got.SystemPrompt != "You are helpful." {
			t.Errorf("system prompt = %q", got.SystemPrompt)
		}
		if got.Prompt != "What is Go?" {
			t.Errorf("prompt = %q", got.Prompt)
		}
	})

	t.Run("system messages are joined in order and never inline", func(t *testing.T) {
		got, err := Flatten([]openai.Message{
			msg(openai.RoleSystem, "first"),
			msg(openai.RoleUser, "q1"),
			msg(openai.RoleSystem, "second"),
			msg(openai.RoleAssistant, "a1"),
			msg(openai.RoleSystem, "third"),
			msg(openai.RoleUser, "q2"),
		})
		if err != nil {
			t.Fatalf("Flatten failed: %v", err)
		}
		if got.SystemPrompt != "first\n\nsecond\n\nthird" {
			t.Errorf("system prompt = %q", got.SystemPrompt)
		}
		for _, s := range []string{"first", "second", "third"} {
			if strings.Contains(got.Prompt, s) {
				t.Errorf("prompt contains system text %q: %q", s, got.Prompt)
			}
		}
	})

	t.Run("multi-turn layout", func(t *testing.T) {
		got, err := Flatten([]openai.Message{
			msg(openai.RoleUser, "Hello"),
			msg(openai.RoleAssistant, "Hi! How can I help?"),
			msg(openai.RoleUser, "Tell me a joke"),
		})
		if err != nil {
			t.Fatalf("Flatten failed: %v", err)
		}
		want := "Previous conversation:\n" +
			"User: Hello\n\n" +
			"Assistant: Hi! How can I help?\n\n" +
			"Current request:\n" +
			"Tell me a joke"
		if got.Prompt != want {
			t.Errorf("expected:\n%s\ngot:\n%s", want, got.Prompt)
		}
	})

	t.Run("current request marker precedes the last user text", func(t *testing.T) {
		got, err := Flatten([]openai.Message{
			msg(openai.RoleAssistant, "Earlier reply"),
			msg(openai.RoleUser, "final question"),
		})
		if err != nil {
			t.Fatalf("Flatten failed: %v", err)
		}
		if !strings.HasSuffix(got.Prompt, "Current request:\nfinal question") {
			t.Errorf("prompt = %q", got.Prompt)
		}
	})

	t.Run("tool round trip after the last user turn", func(t *testing.T) {
		got, err := Flatten([]openai.Message{
			msg(openai.RoleUser, "Weather in Tokyo?"),
			{
				Role: openai.RoleAssistant,
				ToolCalls: []openai.ToolCall{
					openai.NewToolCall("call_1", "get_weather", `{"city":"Tokyo"}`),
				},
			},
			{Role: openai.RoleTool, ToolCallID: "call_1", Content: openai.TextContent("Sunny, 22C")},
		})
		if err != nil {
			t.Fatalf("Flatten failed: %v", err)
		}
		want := "Assistant: [Tool Call: get_weather({\"city\":\"Tokyo\"})]\n\n" +
			"Tool Result (call_1): Sunny, 22C\n\n" +
			"Current request:\n" +
			"Weather in Tokyo?"
		if got.Prompt != want {
			t.Errorf("expected:\n%s\ngot:\n%s", want, got.Prompt)
		}
	})

	t.Run("tool calls follow assistant text on new lines", func(t *testing.T) {
		got, err := Flatten([]openai.Message{
			{
				Role:    openai.RoleAssistant,
				Content: openai.TextContent("Let me check."),
				ToolCalls: []openai.ToolCall{
					openai.NewToolCall("a", "ls", `{}`),
					openai.NewToolCall("b", "cat", `{"f":"x"}`),
				},
			},
			msg(openai.RoleUser, "go on"),
		})
		if err != nil {
			t.Fatalf("Flatten failed: %v", err)
		}
		want := "Previous conversation:\n" +
			"Assistant: Let me check.\n[Tool Call: ls({})]\n[Tool Call: cat({\"f\":\"x\"})]\n\n" +
			"Current request:\ngo on"
		if got.Prompt != want {
			t.Errorf("expected:\n%s\ngot:\n%s", want, got.Prompt)
		}
	})

	t.Run("no user message formats everything", func(t *testing.T) {
		got, err := Flatten([]openai.Message{
			msg(openai.RoleSystem, "sys"),
			msg(openai.RoleAssistant, "I was saying"),
			{Role: openai.RoleTool, Content: openai.TextContent("orphan result")},
		})
		if err != nil {
			t.Fatalf("Flatten failed: %v", err)
		}
		want := "Assistant: I was saying\n\nTool: orphan result"
		if got.Prompt != want {
			t.Errorf("expected:\n%s\ngot:\n%s", want, got.Prompt)
		}
		if strings.Contains(got.Prompt, "Current request:") {
			t.Errorf("prompt without user turn has a current request marker")
		}
	})

	t.Run("lone assistant message is formatted", func(t *testing.T) {
		got, err := Flatten([]openai.Message{msg(openai.RoleAssistant, "hello")})
		if err != nil {
			t.Fatalf("Flatten failed: %v", err)
		}
		if got.Prompt != "Assistant: hello" {
			t.Errorf("prompt = %q", got.Prompt)
		}
	})

	t.Run("multi-part content keeps text and counts dropped parts", func(t *testing.T) {
		got, err := Flatten([]openai.Message{
			{Role: openai.RoleSystem, Content: openai.PartsContent(
				openai.ContentPart{Type: openai.PartText, Text: "rule one"},
				openai.ContentPart{Type: openai.PartText, Text: "rule two"},
			)},
			{Role: openai.RoleUser, Content: openai.PartsContent(
				openai.ContentPart{Type: openai.PartText, Text: "What is in"},
				openai.ContentPart{Type: openai.PartImageURL},
				openai.ContentPart{Type: openai.PartText, Text: "this picture?"},
			)},
		})
		if err != nil {
			t.Fatalf("Flatten failed: %v", err)
		}
		if got.SystemPrompt != "rule one\nrule two" {
			t.Errorf("system prompt = %q", got.SystemPrompt)
		}
		if got.Prompt != "What is in\nthis picture?" {
			t.Errorf("prompt = %q", got.Prompt)
		}
		if got.DroppedParts != 1 {
			t.Errorf("dropped parts = %d, want 1", got.DroppedParts)
		}
	})

	t.Run("audio and file parts are dropped from history", func(t *testing.T) {
		got, err := Flatten([]openai.Message{
			{Role: openai.RoleUser, Content: openai.PartsContent(
				openai.ContentPart{Type: openai.PartInputAudio},
				openai.ContentPart{Type: openai.PartText, Text: "transcribe this"},
			)},
			msg(openai.RoleAssistant, "done"),
			{Role: openai.RoleUser, Content: openai.PartsContent(
				openai.ContentPart{Type: openai.PartFile},
				openai.ContentPart{Type: openai.PartText, Text: "and summarize"},
			)},
		})
		if err != nil {
			t.Fatalf("Flatten failed: %v", err)
		}
		want := "Previous conversation:\nUser: transcribe this\n\nAssistant: done\n\nCurrent request:\nand summarize"
		if got.Prompt != want {
			t.Errorf("prompt = %q, want %q", got.Prompt, want)
		}
		if got.DroppedParts != 2 {
			t.Errorf("dropped parts = %d, want 2", got.DroppedParts)
		}
	})

	t.Run("null content on a user turn", func(t *testing.T) {
		got, err := Flatten([]openai.Message{
			msg(openai.RoleAssistant, "a"),
			{Role: openai.RoleUser},
		})
		if err != nil {
			t.Fatalf("Flatten failed: %v", err)
		}
		if got.Prompt != "Previous conversation:\nAssistant: a\n\nCurrent request:\n" {
			t.Errorf("prompt = %q", got.Prompt)
		}
	})
}

func TestRoleLabel(t *testing.T) {
	tests := map[openai.Role]string{
		openai.RoleUser:      "User",
		openai.RoleAssistant: "Assistant",
		openai.RoleTool:      "Tool",
		"developer":          "Developer",
		"":                   "",
	}
	for role, want := range tests {
		if got := roleLabel(role); got != want {
			t.Errorf("roleLabel(%q) = %q, want %q", role, got, want)
		}
	}
}
