package openai

import (
	"errors"
	"net/http"
	"strings"
	"testing"
)

func TestParseChatRequest_Valid(t *testing.T) {
	body := `{
		"model": "claude-sonnet-4-20250514",
		"stream": true,
		"temperature": 0.3,
		"messages": [
			{"role": "system", "content": "be brief"},
			{"role": "user", "content": [{"type": "text", "text": "hi"}, {"type": "image_url", "image_url": {"url": "data:x"}}]},
			{"role": "assistant", "content": null, "tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "f", "arguments": "{}"}}]},
			{"role": "tool", "tool_call_id": "call_1", "content": "ok"}
		]
	}`
	req, err := ParseChatRequest([]byte(body))
	if err != nil {
		t.Fatalf("ParseChatRequest failed: %v", err)
	}
	if !req.Stream {
		t.Fatalf("stream = false, want true")
	}
	if len(req.Messages) != 4 {
		t.Fatalf("len(messages) = %d, want 4", len(req.Messages))
	}
	if !req.Messages[1].Content.IsParts || len(req.Messages[1].Content.Parts) != 2 {
		t.Fatalf("user content parts = %#v", req.Messages[1].Content)
	}
	if req.Messages[2].Content.Present {
		t.Fatalf("null content decoded as present")
	}
	if got := req.Messages[2].ToolCalls[0].Function.Name; got != "f" {
		t.Fatalf("tool call name = %q, want f", got)
	}
	if req.Messages[3].ToolCallID != "call_1" {
		t.Fatalf("tool_call_id = %q", req.Messages[3].ToolCallID)
	}
}

func TestParseChatRequest_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantParam string
		wantMsg   string
	}{
		{"not json", `{`, "", "valid JSON"},
		{"array body", `[]`, "", "JSON object"},
		{"missing messages", `{"model":"x"}`, "messages", "messages"},
		{"empty messages", `{"messages":[]}`, "messages", "messages"},
		{"messages not array", `{"messages":"hi"}`, "messages", "messages"},
		{"message not object", `{"messages":["hi"]}`, "messages[0]", "messages[0]"},
		{"bad role", `{"messages":[{"role":"user","content":"a"},{"role":"robot","content":"b"}]}`, "messages[1].role", "messages[1].role"},
		{"missing role", `{"messages":[{"content":"a"}]}`, "messages[0].role", "role"},
		{"numeric content", `{"messages":[{"role":"user","content":42}]}`, "messages[0].content", "content"},
		{"object content", `{"messages":[{"role":"user","content":{"text":"a"}}]}`, "messages[0].content", "content"},
		{"untyped part", `{"messages":[{"role":"user","content":[{"text":"a"}]}]}`, "messages[0].content[0]", "content[0]"},
		{"model not string", `{"model":1,"messages":[{"role":"user","content":"a"}]}`, "model", "model"},
		{"stream not bool", `{"stream":"yes","messages":[{"role":"user","content":"a"}]}`, "stream", "stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseChatRequest([]byte(tt.body))
			if err == nil {
				t.Fatalf("expected error")
			}
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error %T is not *APIError", err)
			}
			if apiErr.Status != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", apiErr.Status)
			}
			if apiErr.Type != TypeInvalidRequest {
				t.Fatalf("type = %q, want %q", apiErr.Type, TypeInvalidRequest)
			}
			if apiErr.Param != tt.wantParam {
				t.Fatalf("param = %q, want %q", apiErr.Param, tt.wantParam)
			}
			if !strings.Contains(apiErr.Message, tt.wantMsg) {
				t.Fatalf("message %q does not mention %q", apiErr.Message, tt.wantMsg)
			}
		})
	}
}

func TestContentMarshalRoundTrip(t *testing.T) {
	var c Content
	if err := c.UnmarshalJSON([]byte(`"hello"`)); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !c.Present || c.IsParts || c.Text != "hello" {
		t.Fatalf("content = %#v", c)
	}
	out, err := Content{}.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != "null" {
		t.Fatalf("absent content marshals to %s, want null", out)
	}
}

func TestAPIErrorBody(t *testing.T) {
	body := ModelNotFound("gpt-9").Body()
	if body.Error.Type != TypeInvalidRequest {
		t.Fatalf("type = %q", body.Error.Type)
	}
	if body.Error.Param == nil || *body.Error.Param != "model" {
		t.Fatalf("param = %v, want model", body.Error.Param)
	}
	if body.Error.Code == nil || *body.Error.Code != CodeModelNotFound {
		t.Fatalf("code = %v, want %s", body.Error.Code, CodeModelNotFound)
	}

	unauth := Unauthorized(CodeMissingAuthorization, "missing").Body()
	if unauth.Error.Param != nil {
		t.Fatalf("param = %v, want nil", *unauth.Error.Param)
	}
}

func TestAsAPIError(t *testing.T) {
	cause := errors.New("claude exited 1")
	apiErr := AsAPIError(BackendFailure(cause))
	if apiErr.Status != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", apiErr.Status)
	}
	if strings.Contains(apiErr.Message, "exited") {
		t.Fatalf("message leaks backend detail: %q", apiErr.Message)
	}
	if !errors.Is(apiErr, cause) {
		t.Fatalf("cause not reachable via errors.Is")
	}

	plain := AsAPIError(errors.New("boom"))
	if plain.Status != http.StatusInternalServerError || plain.Code != CodeInternalError {
		t.Fatalf("plain error mapped to %#v", plain)
	}
}
