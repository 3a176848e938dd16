// Package bridge turns inbound tool calls from the streaming collaborator
// into workspace metrics and acknowledges them.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.aimuz.me/ergowatch/internal/schema"
	"go.aimuz.me/ergowatch/internal/types"
	"go.aimuz.me/ergowatch/livesession"
)

// FunctionName is the only function the bridge acts on.
const FunctionName = "report_workspace_metrics"

// ErrInvalidArgs is returned when call arguments do not match Parameters.
var ErrInvalidArgs = errors.New("invalid tool-call arguments")

// Parameters is the declared argument schema of FunctionName.
var Parameters = &schema.Schema{
	Type: schema.TypeObject,
	Properties: map[string]*schema.Schema{
		"posture": {
			Type:        schema.TypeString,
			Description: "Overall posture of the user.",
			Enum:        postureNames(),
		},
		"distance": {
			Type:        schema.TypeNumber,
			Description: "Estimated eye-to-screen distance in centimetres.",
			Minimum:     schema.Min(0),
		},
		"blinksPerMinute": {
			Type:        schema.TypeNumber,
			Description: "Estimated blink rate per minute.",
			Minimum:     schema.Min(0),
		},
		"isFocused": {
			Type:        schema.TypeBoolean,
			Description: "Whether the user appears focused on the screen.",
		},
		"isTired": {
			Type:        schema.TypeBoolean,
			Description: "Whether the user shows signs of fatigue.",
		},
		"feedback": {
			Type:        schema.TypeString,
			Description: "One short sentence of ergonomic feedback.",
		},
	},
	Required: []string{"posture", "distance", "blinksPerMinute", "isFocused", "isTired", "feedback"},
}

func postureNames() []string {
	names := make([]string, len(types.Postures))
	for i, p := range types.Postures {
		names[i] = string(p)
	}
	return names
}

// Instruction is the system instruction for the streaming session.
const Instruction = "You are a workspace ergonomics monitor watching a live webcam and microphone feed. " +
	"Every few seconds call " + FunctionName + " with your current estimate of the user's posture, " +
	"eye-to-screen distance, blink rate, focus and tiredness, plus one short sentence of feedback. " +
	"Do not speak; only report through the function."

// Declaration returns the function declaration published to the session.
func Declaration() livesession.FunctionDeclaration {
	return livesession.FunctionDeclaration{
		Name:        FunctionName,
		Description: "Report the latest workspace ergonomics reading for the user.",
		Parameters:  Parameters,
	}
}

type metricArgs struct {
	Posture         types.Posture `json:"posture"`
	Distance        float64       `json:"distance"`
	BlinksPerMinute float64       `json:"blinksPerMinute"`
	IsFocused       bool          `json:"isFocused"`
	IsTired         bool          `json:"isTired"`
	Feedback        string        `json:"feedback"`
}

// Decode validates args and builds a metric stamped with receivedAt.
func Decode(args json.RawMessage, receivedAt time.Time) (types.WorkspaceMetric, error) {
	if err := Parameters.ValidateJSON(args); err != nil {
		return types.WorkspaceMetric{}, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	var a metricArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return types.WorkspaceMetric{}, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	return types.WorkspaceMetric{
		Posture:         a.Posture,
		Distance:        a.Distance,
		BlinksPerMinute: a.BlinksPerMinute,
		IsFocused:       a.IsFocused,
		IsTired:         a.IsTired,
		Feedback:        a.Feedback,
		Timestamp:       receivedAt,
	}, nil
}

// Recorder stores a decoded metric and updates the projection.
type Recorder interface {
	RecordMetric(m types.WorkspaceMetric) error
}

// Responder is the acknowledgement half of a streaming session.
type Responder interface {
	SendToolResponse(ctx context.Context, responses []livesession.FunctionResponse) error
}

// Stats counts handled calls.
type Stats struct {
	Accepted int64
	Rejected int64
	Ignored  int64
}

// Bridge dispatches tool calls to a Recorder.
type Bridge struct {
	rec Recorder
	now func() time.Time

	accepted, rejected, ignored atomic.Int64
}

// New creates a Bridge. A nil now uses time.Now.
func New(rec Recorder, now func() time.Time) *Bridge {
	if now == nil {
		now = time.Now
	}
	return &Bridge{rec: rec, now: now}
}

// Handle processes calls in order, acknowledging each recognized call on
// resp before moving to the next. Calls to other functions get no response.
func (b *Bridge) Handle(ctx context.Context, resp Responder, calls []livesession.FunctionCall) {
	for _, call := range calls {
		if call.Name != FunctionName {
			b.ignored.Add(1)
			slog.Debug("ignore tool call", "name", call.Name, "id", call.ID)
			continue
		}

		result := map[string]any{"result": "ok"}
		if err := b.handle(call); err != nil {
			result = map[string]any{"error": err.Error()}
		}

		ack := []livesession.FunctionResponse{{ID: call.ID, Name: call.Name, Response: result}}
		if err := resp.SendToolResponse(ctx, ack); err != nil {
			slog.Warn("acknowledge tool call", "id", call.ID, "error", err)
		}
	}
}

func (b *Bridge) handle(call livesession.FunctionCall) error {
	m, err := Decode(call.Args, b.now())
	if err != nil {
		b.rejected.Add(1)
		slog.Warn("drop malformed tool call", "id", call.ID, "error", err)
		return err
	}
	if err := b.rec.RecordMetric(m); err != nil {
		b.rejected.Add(1)
		slog.Warn("record metric", "id", call.ID, "error", err)
		return err
	}
	b.accepted.Add(1)
	return nil
}

// Stats returns a snapshot of the counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		Accepted: b.accepted.Load(),
		Rejected: b.rejected.Load(),
		Ignored:  b.ignored.Load(),
	}
}
