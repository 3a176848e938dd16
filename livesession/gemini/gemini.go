// Package gemini implements livesession over the Gemini Live
// BidiGenerateContent websocket API.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"nhooyr.io/websocket"

	"go.aimuz.me/ergowatch/livesession"
)

const (
	// DefaultURL is the Gemini Live websocket endpoint.
	DefaultURL = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
	// DefaultModel is the default live model.
	DefaultModel = "models/gemini-2.0-flash-live-001"

	// Server frames carry whole tool calls and transcripts.
	readLimit = 4 << 20
)

var errGoAway = errors.New("server sent goAway")

// Connector opens Gemini Live sessions.
type Connector struct {
	APIKey string
	URL    string // Overrides DefaultURL
}

// Open dials the endpoint and sends the setup message. OnOpen fires when the
// server answers with setupComplete.
func (c *Connector) Open(ctx context.Context, cfg livesession.Config, cb livesession.Callbacks) (livesession.Session, error) {
	endpoint := c.URL
	if endpoint == "" {
		endpoint = DefaultURL
	}
	endpoint += "?key=" + url.QueryEscape(c.APIKey)

	conn, _, err := websocket.Dial(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	conn.SetReadLimit(readLimit)

	readCtx, cancel := context.WithCancel(context.Background())
	s := &session{
		conn:   conn,
		cb:     cb,
		cancel: cancel,
	}

	if err := s.send(ctx, newSetup(cfg)); err != nil {
		cancel()
		_ = conn.Close(websocket.StatusInternalError, "setup failed")
		return nil, fmt.Errorf("send setup: %w", err)
	}

	slog.Info("gemini live session dialed", "model", modelName(cfg.Model))
	go s.readLoop(readCtx)
	return s, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Wire messages
// ─────────────────────────────────────────────────────────────────────────────

type setupMessage struct {
	Setup setup `json:"setup"`
}

type setup struct {
	Model             string            `json:"model"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	Tools             []tool            `json:"tools,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type tool struct {
	FunctionDeclarations []livesession.FunctionDeclaration `json:"functionDeclarations"`
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	MediaChunks []livesession.Chunk `json:"mediaChunks"`
}

type toolResponseMessage struct {
	ToolResponse toolResponse `json:"toolResponse"`
}

type toolResponse struct {
	FunctionResponses []livesession.FunctionResponse `json:"functionResponses"`
}

type serverMessage struct {
	SetupComplete *struct{} `json:"setupComplete,omitempty"`
	ToolCall      *struct {
		FunctionCalls []livesession.FunctionCall `json:"functionCalls"`
	} `json:"toolCall,omitempty"`
	GoAway *struct {
		TimeLeft string `json:"timeLeft"`
	} `json:"goAway,omitempty"`
}

func modelName(m string) string {
	if m == "" {
		m = DefaultModel
	}
	if !strings.HasPrefix(m, "models/") {
		m = "models/" + m
	}
	return m
}

func newSetup(cfg livesession.Config) setupMessage {
	s := setup{
		Model:            modelName(cfg.Model),
		GenerationConfig: &generationConfig{ResponseModalities: []string{"TEXT"}},
	}
	if cfg.SystemInstruction != "" {
		s.SystemInstruction = &content{Parts: []part{{Text: cfg.SystemInstruction}}}
	}
	if len(cfg.Tools) > 0 {
		s.Tools = []tool{{FunctionDeclarations: cfg.Tools}}
	}
	return setupMessage{Setup: s}
}

// ─────────────────────────────────────────────────────────────────────────────
// Session
// ─────────────────────────────────────────────────────────────────────────────

type session struct {
	conn   *websocket.Conn
	cb     livesession.Callbacks
	cancel context.CancelFunc

	mu     sync.Mutex // serializes writes
	closed atomic.Bool
}

func (s *session) SendRealtimeInput(ctx context.Context, chunk livesession.Chunk) error {
	return s.send(ctx, realtimeInputMessage{
		RealtimeInput: realtimeInput{MediaChunks: []livesession.Chunk{chunk}},
	})
}

func (s *session) SendToolResponse(ctx context.Context, responses []livesession.FunctionResponse) error {
	return s.send(ctx, toolResponseMessage{
		ToolResponse: toolResponse{FunctionResponses: responses},
	})
}

func (s *session) send(ctx context.Context, msg any) error {
	if s.closed.Load() {
		return livesession.ErrClosed
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Write(ctx, websocket.MessageText, data)
}

// Close closes the socket without invoking OnClose. Callbacks already
// running may still complete.
func (s *session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	defer s.cancel()
	return s.conn.Close(websocket.StatusNormalClosure, "closing")
}

func (s *session) readLoop(ctx context.Context) {
	defer s.cancel()

	for {
		// Frames may arrive as text or binary; both hold JSON.
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			s.remoteClose(fmt.Errorf("read: %w", err))
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("failed to unmarshal server message", "error", err)
			continue
		}

		switch {
		case msg.SetupComplete != nil:
			slog.Info("gemini live session ready")
			s.cb.Open()
		case msg.ToolCall != nil:
			s.cb.ToolCall(msg.ToolCall.FunctionCalls)
		case msg.GoAway != nil:
			slog.Info("gemini live session going away", "time_left", msg.GoAway.TimeLeft)
			s.remoteClose(errGoAway)
			_ = s.conn.Close(websocket.StatusNormalClosure, "going away")
			return
		}
	}
}

// remoteClose reports a closure the caller did not request.
func (s *session) remoteClose(err error) {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	slog.Debug("gemini live session closed", "error", err)
	s.cb.Close(err)
}
