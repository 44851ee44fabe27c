package entity

import (
	"encoding/json"
	"time"
)

type EventType string

// Event families delivered over the product's socket.
const (
	EventTerminalConnected EventType = "terminal_connected"
	EventTerminalOutput    EventType = "terminal_output"
	EventTerminalError     EventType = "terminal_error"
	EventAgentOutput       EventType = "agentOutput"
	EventPreviewUpdated    EventType = "previewUpdated"
	EventChatMessage       EventType = "chat-message"
)

// Event is one WebSocket frame from the product under test. The payload shape
// varies by event family and server version, so both envelope fields are kept
// raw and decoded lazily.
type Event struct {
	Type       EventType       `json:"type"`
	AgentID    string          `json:"agentId,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	ReceivedAt time.Time       `json:"-"`
}

// Text extracts a human-readable string from the event payload. It tolerates
// the shapes seen in the wild: a bare JSON string, or an object carrying one
// of the usual text fields.
func (e Event) Text() string {
	for _, raw := range []json.RawMessage{e.Data, e.Payload} {
		if len(raw) == 0 {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
		var obj struct {
			Text    string `json:"text"`
			Message string `json:"message"`
			Output  string `json:"output"`
			Content string `json:"content"`
		}
		if err := json.Unmarshal(raw, &obj); err == nil {
			for _, v := range []string{obj.Text, obj.Message, obj.Output, obj.Content} {
				if v != "" {
					return v
				}
			}
		}
	}
	return ""
}
