// Package livesession defines the streaming collaborator: a bidirectional
// session that accepts realtime media chunks and delivers tool calls.
package livesession

import (
	"context"
	"encoding/json"
	"errors"

	"go.aimuz.me/ergowatch/internal/schema"
)

// ErrClosed is returned when sending on a closed session.
var ErrClosed = errors.New("session closed")

// Chunk is one realtime media payload. Data is base64 encoded.
type Chunk struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

// FunctionCall is an inbound tool call. Args is the undecoded argument object.
type FunctionCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// FunctionResponse acknowledges a FunctionCall.
type FunctionResponse struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// FunctionDeclaration publishes a callable function to the remote model.
type FunctionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  *schema.Schema `json:"parameters"`
}

// Config is the session setup sent when opening.
type Config struct {
	Model             string
	SystemInstruction string
	Tools             []FunctionDeclaration
}

// Callbacks receive session events. They may be invoked from transport
// goroutines; OnClose is called at most once and only for remote closure.
type Callbacks struct {
	OnOpen     func()
	OnToolCall func(calls []FunctionCall)
	OnClose    func(err error)
}

func (cb Callbacks) Open() {
	if cb.OnOpen != nil {
		cb.OnOpen()
	}
}

func (cb Callbacks) ToolCall(calls []FunctionCall) {
	if cb.OnToolCall != nil && len(calls) > 0 {
		cb.OnToolCall(calls)
	}
}

func (cb Callbacks) Close(err error) {
	if cb.OnClose != nil {
		cb.OnClose(err)
	}
}

// Session is an open streaming session. Sends do not wait for the remote
// side to process the payload.
type Session interface {
	SendRealtimeInput(ctx context.Context, chunk Chunk) error
	SendToolResponse(ctx context.Context, responses []FunctionResponse) error
	// Close is best-effort and idempotent.
	Close() error
}

// Connector opens streaming sessions.
type Connector interface {
	Open(ctx context.Context, cfg Config, cb Callbacks) (Session, error)
}
