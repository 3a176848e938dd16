package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"go.aimuz.me/ergowatch/internal/schema"
	"go.aimuz.me/ergowatch/livesession"
)

// fakeServer accepts one connection, records client frames and runs script
// after the setup message arrives.
func fakeServer(t *testing.T, script func(ctx context.Context, c *websocket.Conn)) (*httptest.Server, chan []byte) {
	t.Helper()
	frames := make(chan []byte, 8)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "test-key" {
			http.Error(w, "bad key", http.StatusUnauthorized)
			return
		}
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer c.CloseNow()

		ctx := r.Context()
		_, data, err := c.Read(ctx)
		if err != nil {
			return
		}
		frames <- data

		script(ctx, c)

		for {
			_, data, err := c.Read(ctx)
			if err != nil {
				return
			}
			frames <- data
		}
	}))
	t.Cleanup(srv.Close)
	return srv, frames
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
	var zero T
	return zero
}

func TestSession_RoundTrip(t *testing.T) {
	srv, frames := fakeServer(t, func(ctx context.Context, c *websocket.Conn) {
		_ = c.Write(ctx, websocket.MessageText, []byte(`{"setupComplete":{}}`))
		_ = c.Write(ctx, websocket.MessageBinary, []byte(
			`{"toolCall":{"functionCalls":[{"id":"call-1","name":"report_workspace_metrics","args":{"posture":"Good"}}]}}`))
	})

	opened := make(chan struct{}, 1)
	calls := make(chan []livesession.FunctionCall, 1)
	closed := make(chan error, 1)

	conn := &Connector{APIKey: "test-key", URL: wsURL(srv)}
	cfg := livesession.Config{
		Model:             "gemini-test",
		SystemInstruction: "watch posture",
		Tools: []livesession.FunctionDeclaration{{
			Name:        "report_workspace_metrics",
			Description: "report",
			Parameters:  &schema.Schema{Type: schema.TypeObject},
		}},
	}
	sess, err := conn.Open(context.Background(), cfg, livesession.Callbacks{
		OnOpen:     func() { opened <- struct{}{} },
		OnToolCall: func(c []livesession.FunctionCall) { calls <- c },
		OnClose:    func(err error) { closed <- err },
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	var setupMsg struct {
		Setup struct {
			Model             string `json:"model"`
			SystemInstruction struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"systemInstruction"`
			Tools []struct {
				FunctionDeclarations []struct {
					Name       string `json:"name"`
					Parameters struct {
						Type string `json:"type"`
					} `json:"parameters"`
				} `json:"functionDeclarations"`
			} `json:"tools"`
		} `json:"setup"`
	}
	if err := json.Unmarshal(recv(t, frames), &setupMsg); err != nil {
		t.Fatalf("unmarshal setup: %v", err)
	}
	if setupMsg.Setup.Model != "models/gemini-test" {
		t.Errorf("model = %q, want models/gemini-test", setupMsg.Setup.Model)
	}
	if p := setupMsg.Setup.SystemInstruction.Parts; len(p) != 1 || p[0].Text != "watch posture" {
		t.Errorf("systemInstruction = %+v", p)
	}
	if tl := setupMsg.Setup.Tools; len(tl) != 1 || len(tl[0].FunctionDeclarations) != 1 ||
		tl[0].FunctionDeclarations[0].Parameters.Type != "OBJECT" {
		t.Errorf("tools = %+v", tl)
	}

	recv(t, opened)
	got := recv(t, calls)
	if len(got) != 1 || got[0].ID != "call-1" || got[0].Name != "report_workspace_metrics" {
		t.Fatalf("calls = %+v", got)
	}
	if string(got[0].Args) != `{"posture":"Good"}` {
		t.Errorf("args = %s", got[0].Args)
	}

	ctx := context.Background()
	err = sess.SendToolResponse(ctx, []livesession.FunctionResponse{{
		ID: "call-1", Name: "report_workspace_metrics", Response: map[string]any{"result": "ok"},
	}})
	if err != nil {
		t.Fatalf("SendToolResponse() error = %v", err)
	}
	if frame := string(recv(t, frames)); !strings.Contains(frame, `"toolResponse":{"functionResponses":[{"id":"call-1"`) {
		t.Errorf("tool response frame = %s", frame)
	}

	if err := sess.SendRealtimeInput(ctx, livesession.Chunk{MIMEType: "image/jpeg", Data: "AAAA"}); err != nil {
		t.Fatalf("SendRealtimeInput() error = %v", err)
	}
	want := `{"realtimeInput":{"mediaChunks":[{"mimeType":"image/jpeg","data":"AAAA"}]}}`
	if frame := string(recv(t, frames)); frame != want {
		t.Errorf("realtime frame = %s, want %s", frame, want)
	}

	if err := sess.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := sess.SendRealtimeInput(ctx, livesession.Chunk{}); !errors.Is(err, livesession.ErrClosed) {
		t.Errorf("send after close error = %v, want ErrClosed", err)
	}

	select {
	case err := <-closed:
		t.Errorf("OnClose called after local Close: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSession_GoAway(t *testing.T) {
	srv, _ := fakeServer(t, func(ctx context.Context, c *websocket.Conn) {
		_ = c.Write(ctx, websocket.MessageText, []byte(`{"setupComplete":{}}`))
		_ = c.Write(ctx, websocket.MessageText, []byte(`{"goAway":{"timeLeft":"0s"}}`))
	})

	closed := make(chan error, 1)
	conn := &Connector{APIKey: "test-key", URL: wsURL(srv)}
	sess, err := conn.Open(context.Background(), livesession.Config{}, livesession.Callbacks{
		OnClose: func(err error) { closed <- err },
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if err := recv(t, closed); !errors.Is(err, errGoAway) {
		t.Errorf("OnClose error = %v, want errGoAway", err)
	}
	if err := sess.SendRealtimeInput(context.Background(), livesession.Chunk{}); !errors.Is(err, livesession.ErrClosed) {
		t.Errorf("send after goAway error = %v, want ErrClosed", err)
	}
}

func TestConnector_DialError(t *testing.T) {
	srv, _ := fakeServer(t, func(context.Context, *websocket.Conn) {})
	conn := &Connector{APIKey: "wrong", URL: wsURL(srv)}

	if _, err := conn.Open(context.Background(), livesession.Config{}, livesession.Callbacks{}); err == nil {
		t.Fatal("Open() with bad key succeeded")
	}
}

func TestModelName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", DefaultModel},
		{"gemini-x", "models/gemini-x"},
		{"models/gemini-x", "models/gemini-x"},
	}
	for _, tt := range tests {
		if got := modelName(tt.in); got != tt.want {
			t.Errorf("modelName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
