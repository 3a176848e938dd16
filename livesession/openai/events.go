package openai

import "encoding/json"

// Server event types handled by the session.
const (
	EventSessionCreated        = "session.created"
	EventFunctionCallArgsDone  = "response.function_call_arguments.done"
	EventError                 = "error"
	eventConversationItemAdd   = "conversation.item.create"
	eventResponseCreate        = "response.create"
	itemTypeFunctionCallOutput = "function_call_output"
)

// Event is a discriminated union for server events on the oai-events
// channel. Check the concrete type via type switch.
type Event interface {
	eventType() string
}

// SessionCreatedEvent is the first event after the data channel opens.
type SessionCreatedEvent struct {
	EventID string `json:"event_id"`
}

func (SessionCreatedEvent) eventType() string { return EventSessionCreated }

// FunctionCallEvent carries the complete arguments of a function call.
type FunctionCallEvent struct {
	EventID   string `json:"event_id"`
	ItemID    string `json:"item_id"`
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON encoded object
}

func (FunctionCallEvent) eventType() string { return EventFunctionCallArgsDone }

// ErrorEvent is emitted when an API error occurs.
type ErrorEvent struct {
	EventID string `json:"event_id"`
	Error   struct {
		Type    string `json:"type"`
		Code    string `json:"code,omitempty"`
		Message string `json:"message"`
	} `json:"error"`
}

func (ErrorEvent) eventType() string { return EventError }

// UnknownEvent holds events we don't act on.
type UnknownEvent struct {
	Type string
}

func (e UnknownEvent) eventType() string { return e.Type }

// ParseEvent unmarshals JSON into the appropriate Event type.
func ParseEvent(data []byte) (Event, error) {
	var header struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, err
	}

	switch header.Type {
	case EventSessionCreated:
		return decode[SessionCreatedEvent](data)
	case EventFunctionCallArgsDone:
		return decode[FunctionCallEvent](data)
	case EventError:
		return decode[ErrorEvent](data)
	}
	return UnknownEvent{Type: header.Type}, nil
}

func decode[T Event](data []byte) (Event, error) {
	var e T
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return e, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Client events
// ─────────────────────────────────────────────────────────────────────────────

type itemCreate struct {
	Type string `json:"type"`
	Item item   `json:"item"`
}

type item struct {
	Type    string        `json:"type"`
	Role    string        `json:"role,omitempty"`
	Content []itemContent `json:"content,omitempty"`
	CallID  string        `json:"call_id,omitempty"`
	Output  string        `json:"output,omitempty"`
}

type itemContent struct {
	Type     string `json:"type"`
	ImageURL string `json:"image_url,omitempty"`
}

type responseCreate struct {
	Type string `json:"type"`
}

// imageItem adds a still image to the conversation as user input.
func imageItem(mimeType, data string) itemCreate {
	return itemCreate{
		Type: eventConversationItemAdd,
		Item: item{
			Type: "message",
			Role: "user",
			Content: []itemContent{{
				Type:     "input_image",
				ImageURL: "data:" + mimeType + ";base64," + data,
			}},
		},
	}
}

// functionOutputItem acknowledges a function call.
func functionOutputItem(callID string, output []byte) itemCreate {
	return itemCreate{
		Type: eventConversationItemAdd,
		Item: item{
			Type:   itemTypeFunctionCallOutput,
			CallID: callID,
			Output: string(output),
		},
	}
}
