package openai

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// ParseChatRequest validates the shape of a raw chat completions body and
// decodes it. Shape errors name the offending field, e.g. "messages[2].role".
func ParseChatRequest(body []byte) (*ChatRequest, error) {
	if !gjson.ValidBytes(body) {
		return nil, InvalidRequest("", "request body must be valid JSON")
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, InvalidRequest("", "request body must be a JSON object")
	}

	if model := root.Get("model"); model.Exists() && model.Type != gjson.String && model.Type != gjson.Null {
		return nil, InvalidRequest("model", "model must be a string")
	}
	if stream := root.Get("stream"); stream.Exists() && !isBool(stream) && stream.Type != gjson.Null {
		return nil, InvalidRequest("stream", "stream must be a boolean")
	}

	messages := root.Get("messages")
	if !messages.IsArray() {
		return nil, InvalidRequest("messages", "messages must be a non-empty array")
	}
	items := messages.Array()
	if len(items) == 0 {
		return nil, InvalidRequest("messages", "messages must be a non-empty array")
	}
	for i, item := range items {
		if err := validateMessage(i, item); err != nil {
			return nil, err
		}
	}

	var req ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, InvalidRequest("", "invalid request body: %v", err)
	}
	return &req, nil
}

func validateMessage(i int, msg gjson.Result) error {
	field := fmt.Sprintf("messages[%d]", i)
	if !msg.IsObject() {
		return InvalidRequest(field, "%s must be an object", field)
	}

	role := msg.Get("role")
	if role.Type != gjson.String || !Role(role.String()).Valid() {
		return InvalidRequest(field+".role", "%s.role must be one of system, user, assistant, tool", field)
	}

	content := msg.Get("content")
	if content.Exists() && content.Type != gjson.String && content.Type != gjson.Null && !content.IsArray() {
		return InvalidRequest(field+".content", "%s.content must be a string, an array, or null", field)
	}
	if content.IsArray() {
		for j, part := range content.Array() {
			if !part.IsObject() || part.Get("type").Type != gjson.String {
				partField := fmt.Sprintf("%s.content[%d]", field, j)
				return InvalidRequest(partField, "%s must be an object with a type", partField)
			}
		}
	}

	if calls := msg.Get("tool_calls"); calls.Exists() && calls.Type != gjson.Null && !calls.IsArray() {
		return InvalidRequest(field+".tool_calls", "%s.tool_calls must be an array", field)
	}
	return nil
}

func isBool(r gjson.Result) bool {
	return r.Type == gjson.True || r.Type == gjson.False
}
