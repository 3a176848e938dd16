package main

import (
	"errors"
	"fmt"
	"log/slog"

	"go.aimuz.me/ergowatch/analysis"
	"go.aimuz.me/ergowatch/capture"
	"go.aimuz.me/ergowatch/config"
	"go.aimuz.me/ergowatch/engine"
	"go.aimuz.me/ergowatch/history"
	"go.aimuz.me/ergowatch/internal/types"
	"go.aimuz.me/ergowatch/livesession"
	"go.aimuz.me/ergowatch/livesession/gemini"
	"go.aimuz.me/ergowatch/livesession/openai"
	"go.aimuz.me/ergowatch/report"
	"go.aimuz.me/ergowatch/sink"
)

// session carries the host-provided collaborators.
type session struct {
	acquirer  capture.Acquirer
	connector livesession.Connector // nil builds one from the streaming credential
	renderer  report.Renderer
	emit      sink.EmitFunc
}

func buildEngine(cfg *config.Config, s session) (*engine.Engine, error) {
	connector := s.connector
	if connector == nil {
		cred, err := cfg.Resolve(cfg.Streaming)
		if err != nil {
			return nil, fmt.Errorf("streaming provider: %w", err)
		}
		if connector, err = newConnector(cred); err != nil {
			return nil, err
		}
	}

	analyzer, err := newAnalyzer(cfg)
	if err != nil {
		return nil, err
	}

	store, err := history.New(cfg.History)
	if err != nil {
		return nil, err
	}

	ecfg := engine.DefaultConfig()
	ecfg.Stream.Model = cfg.Streaming.Model
	ecfg.FrameInterval = cfg.Cadence.FrameInterval()
	ecfg.DeepInterval = cfg.Cadence.DeepInterval()
	ecfg.FrameQuality = cfg.Cadence.FrameQuality
	ecfg.DeepQuality = cfg.Cadence.DeepQuality
	ecfg.Cooldown = cfg.Cadence.Cooldown()
	ecfg.ToastDuration = cfg.Cadence.ToastDuration()

	return engine.New(ecfg, engine.Deps{
		Acquirer:  s.acquirer,
		Connector: connector,
		Analyzer:  analyzer,
		History:   store,
		Renderer:  s.renderer,
		Notifier:  logNotifier{},
		Emit:      s.emit,
	})
}

func newConnector(cred types.APICredential) (livesession.Connector, error) {
	switch cred.Type {
	case types.ProviderGemini:
		// BaseURL addresses the REST API; the live endpoint keeps its default.
		return &gemini.Connector{APIKey: cred.APIKey}, nil
	case types.ProviderOpenAI:
		return &openai.Connector{APIKey: cred.APIKey, BaseURL: cred.BaseURL}, nil
	}
	return nil, fmt.Errorf("unsupported streaming provider: %s", cred.Type)
}

// newAnalyzer returns nil when no analysis provider is configured.
func newAnalyzer(cfg *config.Config) (analysis.Analyzer, error) {
	cred, err := cfg.Resolve(cfg.Analysis)
	if errors.Is(err, config.ErrNoCredential) {
		slog.Warn("no analysis provider configured, deep analysis disabled")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("analysis provider: %w", err)
	}
	return analysis.New(cred.Type, analysis.Options{
		APIKey:  cred.APIKey,
		BaseURL: cred.BaseURL,
		Model:   cfg.Analysis.Model,
	})
}

// logNotifier stands in for OS notifications on the terminal.
type logNotifier struct{}

func (logNotifier) Permitted() bool { return true }

func (logNotifier) Notify(title, message string) error {
	slog.Warn(title, "message", message)
	return nil
}

func logEvent(name string, data any) {
	switch v := data.(type) {
	case types.SessionState:
		slog.Info("session state", "state", v)
	case types.WorkspaceMetric:
		slog.Info("workspace metrics",
			"posture", v.Posture,
			"distance", v.Distance,
			"blinks", v.BlinksPerMinute,
			"score", v.CurrentAuditScore,
			"avg", v.SessionAvgScore,
		)
	case engine.AuditEvent:
		slog.Info("wellness audit", "score", v.Score, "avg", v.SessionAvgScore, "summary", v.Audit.Summary)
	case types.NotificationEvent:
		slog.Debug("toast shown", "id", v.ID)
	default:
		slog.Debug(name)
	}
}
