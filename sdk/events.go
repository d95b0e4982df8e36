package krishichat

import (
	"encoding/json"
	"strings"
)

// StreamEvent is one decoded event from a conversation stream.
type StreamEvent interface {
	streamEventType() string
}

// InitialEvent carries the server-assigned conversation identity.
type InitialEvent struct {
	ConversationID    string
	ConversationTitle string
}

func (e InitialEvent) streamEventType() string { return "initial" }

// StatusKind classifies an assistant status update.
type StatusKind string

const (
	StatusThinking StatusKind = "thinking"
	StatusToolCall StatusKind = "toolCall"
)

// StatusEvent signals assistant activity before content arrives.
type StatusEvent struct {
	Kind     StatusKind
	ToolName string
}

func (e StatusEvent) streamEventType() string { return "status" }

// ChunkEvent carries a piece of assistant message content.
type ChunkEvent struct {
	Text string
}

func (e ChunkEvent) streamEventType() string { return "chunk" }

// EndEvent marks the normal end of a stream.
type EndEvent struct{}

func (e EndEvent) streamEventType() string { return "end" }

// unmarshalStreamEvent decodes a single event payload. Unknown event types
// and malformed payloads return (nil, false); they are dropped, never fatal.
func unmarshalStreamEvent(eventType string, payload []byte) (StreamEvent, bool) {
	switch eventType {
	case "initial":
		var data struct {
			ConversationID    string `json:"conversationId"`
			ConversationTitle string `json:"conversationTitle"`
		}
		if err := json.Unmarshal(payload, &data); err != nil {
			return nil, false
		}
		return InitialEvent{
			ConversationID:    data.ConversationID,
			ConversationTitle: data.ConversationTitle,
		}, true
	case "status":
		var data struct {
			Type string `json:"type"`
			Name string `json:"name"`
		}
		if err := json.Unmarshal(payload, &data); err != nil {
			return nil, false
		}
		switch StatusKind(data.Type) {
		case StatusThinking:
			return StatusEvent{Kind: StatusThinking}, true
		case StatusToolCall:
			return StatusEvent{Kind: StatusToolCall, ToolName: data.Name}, true
		default:
			return nil, false
		}
	case "chunk":
		return unmarshalChunk(payload)
	case "end":
		var data map[string]any
		if err := json.Unmarshal(payload, &data); err != nil {
			return nil, false
		}
		return EndEvent{}, true
	default:
		return nil, false
	}
}

// unmarshalChunk accepts the three shapes the backend emits:
// {"chunkContent": "..."}, {"content": "..."}, or a bare JSON string.
func unmarshalChunk(payload []byte) (StreamEvent, bool) {
	trimmed := strings.TrimSpace(string(payload))
	if strings.HasPrefix(trimmed, "\"") {
		var text string
		if err := json.Unmarshal(payload, &text); err != nil {
			return nil, false
		}
		return ChunkEvent{Text: text}, true
	}
	var data struct {
		ChunkContent string `json:"chunkContent"`
		Content      string `json:"content"`
	}
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, false
	}
	text := data.ChunkContent
	if text == "" {
		text = data.Content
	}
	return ChunkEvent{Text: text}, true
}
