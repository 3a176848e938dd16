// Package openai implements livesession over the OpenAI Realtime API using a
// WebRTC peer connection: audio goes out on an Opus track, images and tool
// traffic travel on the oai-events data channel.
package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	opuscodec "github.com/jj11hh/opus"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"go.aimuz.me/ergowatch/livesession"
)

const DefaultModel = "gpt-realtime"

// ErrNotReady is returned when the data channel is not open yet.
var ErrNotReady = errors.New("data channel not ready")

// Connector opens OpenAI Realtime sessions.
type Connector struct {
	APIKey  string
	BaseURL string // Overrides DefaultBaseURL
}

// Open mints an ephemeral key carrying the session config, then negotiates
// the peer connection. OnOpen fires when the data channel opens.
func (c *Connector) Open(ctx context.Context, cfg livesession.Config, cb livesession.Callbacks) (livesession.Session, error) {
	slog.Info("creating OpenAI realtime session")
	token, err := createClientSecret(ctx, c.BaseURL, c.APIKey, cfg)
	if err != nil {
		return nil, fmt.Errorf("create client secret: %w", err)
	}
	slog.Info("session created", "expires", time.Unix(token.ExpiresAt, 0))

	s := &session{
		cb:         cb,
		opusBuffer: make([]byte, maxOpusPacket),
	}
	if err := s.connect(ctx, c.BaseURL, token.Value); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

type session struct {
	// Audio path, guarded by audioMu.
	audioMu     sync.Mutex
	opusEncoder *opuscodec.Encoder
	audioTrack  *webrtc.TrackLocalStaticSample
	opusBuffer  []byte
	framer      framer

	mu             sync.Mutex // protects the connection handles
	peerConnection *webrtc.PeerConnection
	dataChannel    *webrtc.DataChannel

	closed atomic.Bool
	cb     livesession.Callbacks
}

func (s *session) connect(ctx context.Context, baseURL, ephemeralKey string) error {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return fmt.Errorf("register codecs: %w", err)
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine))
	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
	})
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}
	s.mu.Lock()
	s.peerConnection = pc
	s.mu.Unlock()

	audioTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeOpus,
			ClockRate: outputRate,
			Channels:  channels,
		},
		"audio",
		"ergowatch-audio",
	)
	if err != nil {
		return fmt.Errorf("create audio track: %w", err)
	}
	if _, err = pc.AddTrack(audioTrack); err != nil {
		return fmt.Errorf("add audio track: %w", err)
	}

	opusEnc, err := opuscodec.NewEncoder(outputRate, channels, opuscodec.AppRestrictedLowdelay)
	if err != nil {
		return fmt.Errorf("create opus encoder: %w", err)
	}

	dc, err := pc.CreateDataChannel("oai-events", nil)
	if err != nil {
		return fmt.Errorf("create data channel: %w", err)
	}

	s.audioMu.Lock()
	s.audioTrack = audioTrack
	s.opusEncoder = opusEnc
	s.audioMu.Unlock()

	s.mu.Lock()
	s.dataChannel = dc
	s.mu.Unlock()

	dc.OnOpen(func() {
		slog.Info("data channel opened")
		go s.cb.Open()
	})
	dc.OnClose(func() {
		s.remoteClose(errors.New("data channel closed"))
	})
	dc.OnMessage(s.handleDataMessage)

	// Remote audio is not used; drain it.
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := track.Read(buf); err != nil {
					return
				}
			}
		}()
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		if state == webrtc.ICEConnectionStateFailed || state == webrtc.ICEConnectionStateClosed {
			s.remoteClose(fmt.Errorf("ICE connection %s", state.String()))
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}

	select {
	case <-webrtc.GatheringCompletePromise(pc):
	case <-ctx.Done():
		return ctx.Err()
	}

	answerSDP, err := exchangeSDP(ctx, baseURL, pc.LocalDescription().SDP, ephemeralKey)
	if err != nil {
		return fmt.Errorf("exchange SDP: %w", err)
	}

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answerSDP,
	}); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

func (s *session) handleDataMessage(msg webrtc.DataChannelMessage) {
	event, err := ParseEvent(msg.Data)
	if err != nil {
		slog.Warn("failed to parse event", "error", err)
		return
	}

	switch e := event.(type) {
	case FunctionCallEvent:
		s.cb.ToolCall([]livesession.FunctionCall{{
			ID:   e.CallID,
			Name: e.Name,
			Args: json.RawMessage(e.Arguments),
		}})
	case ErrorEvent:
		slog.Warn("realtime api error", "type", e.Error.Type, "code", e.Error.Code, "message", e.Error.Message)
	default:
		slog.Debug("on message", "type", event.eventType())
	}
}

// SendRealtimeInput routes PCM audio to the Opus track and images to the
// conversation.
func (s *session) SendRealtimeInput(_ context.Context, chunk livesession.Chunk) error {
	if s.closed.Load() {
		return livesession.ErrClosed
	}
	switch {
	case strings.HasPrefix(chunk.MIMEType, "audio/pcm"):
		return s.sendAudio(chunk.Data)
	case strings.HasPrefix(chunk.MIMEType, "image/"):
		return s.sendEvent(imageItem(chunk.MIMEType, chunk.Data))
	}
	return fmt.Errorf("unsupported media type %q", chunk.MIMEType)
}

func (s *session) sendAudio(data string) error {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return fmt.Errorf("decode audio: %w", err)
	}

	s.audioMu.Lock()
	defer s.audioMu.Unlock()

	if s.audioTrack == nil || s.opusEncoder == nil {
		return ErrNotReady
	}
	for _, frame := range s.framer.push(decodePCM16(raw)) {
		n, err := s.opusEncoder.EncodeFloat32(frame, s.opusBuffer)
		if err != nil {
			return fmt.Errorf("opus encode: %w", err)
		}
		// WriteSample copies the data internally
		if err := s.audioTrack.WriteSample(media.Sample{Data: s.opusBuffer[:n], Duration: frameLength}); err != nil {
			return fmt.Errorf("write sample: %w", err)
		}
	}
	return nil
}

// SendToolResponse writes one function_call_output item per response, then
// asks the model to continue.
func (s *session) SendToolResponse(_ context.Context, responses []livesession.FunctionResponse) error {
	if s.closed.Load() {
		return livesession.ErrClosed
	}
	for _, r := range responses {
		out, err := json.Marshal(r.Response)
		if err != nil {
			return fmt.Errorf("marshal tool output: %w", err)
		}
		if err := s.sendEvent(functionOutputItem(r.ID, out)); err != nil {
			return err
		}
	}
	return s.sendEvent(responseCreate{Type: eventResponseCreate})
}

func (s *session) sendEvent(v any) error {
	s.mu.Lock()
	dc := s.dataChannel
	s.mu.Unlock()

	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrNotReady
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return dc.SendText(string(data))
}

// Close shuts down the peer connection without invoking OnClose.
func (s *session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.mu.Lock()
	pc := s.peerConnection
	s.mu.Unlock()

	if pc != nil {
		return pc.Close()
	}
	return nil
}

func (s *session) remoteClose(err error) {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	slog.Debug("realtime session closed", "error", err)
	s.cb.Close(err)

	s.mu.Lock()
	pc := s.peerConnection
	s.mu.Unlock()
	if pc != nil {
		go pc.Close()
	}
}
