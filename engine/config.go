package engine

import (
	"time"

	"go.aimuz.me/ergowatch/analysis"
	"go.aimuz.me/ergowatch/capture"
	"go.aimuz.me/ergowatch/history"
	"go.aimuz.me/ergowatch/livesession"
	"go.aimuz.me/ergowatch/notify"
	"go.aimuz.me/ergowatch/pipeline"
	"go.aimuz.me/ergowatch/report"
)

// Config holds the fixed session parameters. Zero fields take the defaults
// of DefaultConfig.
type Config struct {
	Constraints capture.Constraints
	Stream      livesession.Config

	FrameInterval time.Duration
	DeepInterval  time.Duration
	FrameQuality  float64
	DeepQuality   float64
	OutboxSize    int

	// AnalysisTimeout bounds one deep-analysis call. Stop does not cancel it.
	AnalysisTimeout time.Duration

	Cooldown      time.Duration
	ToastDuration time.Duration
}

// DefaultConfig returns the standard cadences and capture constraints.
func DefaultConfig() Config {
	return Config{
		Constraints:     capture.DefaultConstraints(),
		FrameInterval:   pipeline.FrameInterval,
		DeepInterval:    pipeline.DeepInterval,
		FrameQuality:    pipeline.FrameQuality,
		DeepQuality:     pipeline.DeepQuality,
		OutboxSize:      pipeline.DefaultOutboxSize,
		AnalysisTimeout: time.Minute,
		Cooldown:        notify.DefaultCooldown,
		ToastDuration:   notify.DefaultToastDuration,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Constraints == (capture.Constraints{}) {
		c.Constraints = d.Constraints
	}
	if c.FrameInterval <= 0 {
		c.FrameInterval = d.FrameInterval
	}
	if c.DeepInterval <= 0 {
		c.DeepInterval = d.DeepInterval
	}
	if c.FrameQuality <= 0 {
		c.FrameQuality = d.FrameQuality
	}
	if c.DeepQuality <= 0 {
		c.DeepQuality = d.DeepQuality
	}
	if c.OutboxSize <= 0 {
		c.OutboxSize = d.OutboxSize
	}
	if c.AnalysisTimeout <= 0 {
		c.AnalysisTimeout = d.AnalysisTimeout
	}
	if c.Cooldown <= 0 {
		c.Cooldown = d.Cooldown
	}
	if c.ToastDuration <= 0 {
		c.ToastDuration = d.ToastDuration
	}
	return c
}

// Deps are the external collaborators. Acquirer and Connector are required.
type Deps struct {
	Acquirer  capture.Acquirer
	Connector livesession.Connector
	Analyzer  analysis.Analyzer // Nil disables deep analysis
	History   history.Store     // Nil uses an in-memory store
	Renderer  report.Renderer
	Notifier  notify.Notifier   // Called without the engine lock held
	Player    notify.TonePlayer // Called without the engine lock held

	// Emit pushes UI projection events. It may be called with the engine
	// lock held and must not call back into the Engine.
	Emit func(name string, data any)
	Now  func() time.Time
}
