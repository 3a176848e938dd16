// Package engine owns the live session lifecycle: capture, streaming,
// tool-call ingestion, deep analysis, scoring, alerting and the final report.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.aimuz.me/ergowatch/analysis"
	"go.aimuz.me/ergowatch/bridge"
	"go.aimuz.me/ergowatch/capture"
	"go.aimuz.me/ergowatch/history"
	"go.aimuz.me/ergowatch/internal/types"
	"go.aimuz.me/ergowatch/livesession"
	"go.aimuz.me/ergowatch/notify"
	"go.aimuz.me/ergowatch/pipeline"
	"go.aimuz.me/ergowatch/report"
	"go.aimuz.me/ergowatch/scoring"
)

var (
	// ErrAcquisition wraps capture device failures. The engine is left in
	// StateError until the next Start.
	ErrAcquisition = errors.New("media acquisition failed")
	// ErrStream wraps failures to open the streaming session.
	ErrStream = errors.New("streaming session failed")
	// ErrAlreadyStarted is returned by Start outside Disconnected and Error.
	ErrAlreadyStarted = errors.New("session already started")
	// ErrStopped is returned by Start when Stop interrupted it.
	ErrStopped = errors.New("session stopped during start")
	// ErrDestroyed is returned after Destroy.
	ErrDestroyed = errors.New("engine destroyed")
	// ErrStaleSession rejects results that belong to an ended session.
	ErrStaleSession = errors.New("stale session")
)

// Engine is the session state machine. All mutable session state is guarded
// by mu; results from asynchronous work carry the generation they were
// started under and are dropped when it no longer matches.
type Engine struct {
	cfg     Config
	deps    Deps
	store   history.Store
	alerter *notify.Alerter
	guard   pipeline.Guard // at most one deep analysis in flight

	ctx    context.Context // cancelled by Destroy
	cancel context.CancelFunc

	mu         sync.Mutex
	state      types.SessionState
	gen        uint64
	sess       *session
	current    types.WorkspaceMetric
	hasCurrent bool
	startedAt  time.Time
	destroyed  bool
}

// session holds the resources of one Start..Stop span.
type session struct {
	gen    uint64
	ctx    context.Context // cancelled on teardown; stops producers
	cancel context.CancelFunc

	device capture.Device
	stream livesession.Session
	outbox *pipeline.Outbox
	bridge *bridge.Bridge
	opened bool
}

// New creates an Engine in StateDisconnected.
func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Acquirer == nil {
		return nil, errors.New("engine: nil Acquirer")
	}
	if deps.Connector == nil {
		return nil, errors.New("engine: nil Connector")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Emit == nil {
		deps.Emit = func(string, any) {}
	}
	if deps.History == nil {
		deps.History = history.NewMemory()
	}
	cfg = cfg.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:    cfg,
		deps:   deps,
		store:  deps.History,
		ctx:    ctx,
		cancel: cancel,
		state:  types.StateDisconnected,
	}
	e.alerter = notify.NewAlerter(notify.AlerterConfig{
		Cooldown:      cfg.Cooldown,
		ToastDuration: cfg.ToastDuration,
		Notifier:      deps.Notifier,
		Player:        deps.Player,
		Now:           deps.Now,
		Toast: func(ev *types.NotificationEvent) {
			if ev == nil {
				deps.Emit(EventToastDismiss, nil)
				return
			}
			deps.Emit(EventToastShow, *ev)
		},
	})
	return e, nil
}

// State returns the current session state.
func (e *Engine) State() types.SessionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Generation returns the current session generation.
func (e *Engine) Generation() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gen
}

// Current returns the latest metric projection, if any.
func (e *Engine) Current() (types.WorkspaceMetric, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current, e.hasCurrent
}

// setState must be called with mu held.
func (e *Engine) setState(s types.SessionState) {
	if e.state == s {
		return
	}
	slog.Info("session state", "from", e.state, "to", s, "gen", e.gen)
	e.state = s
	e.deps.Emit(EventSessionState, s)
}

// resetLocked clears histories, projection and alert state.
func (e *Engine) resetLocked() {
	if err := e.store.Reset(); err != nil {
		slog.Error("reset history", "error", err)
	}
	e.current = types.WorkspaceMetric{}
	e.hasCurrent = false
	e.alerter.Reset()
}

// Start acquires the capture device and opens the streaming session. It
// returns once the session is opening; the engine reaches StateConnected when
// the collaborator reports open.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return ErrDestroyed
	}
	if e.state != types.StateDisconnected && e.state != types.StateError {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}
	e.gen++
	gen := e.gen
	e.resetLocked()
	e.startedAt = e.deps.Now()
	e.setState(types.StateConnecting)
	e.mu.Unlock()

	slog.Info("start session", "gen", gen)

	device, err := e.deps.Acquirer.Acquire(ctx, e.cfg.Constraints)
	if err != nil {
		e.failStart(gen)
		return fmt.Errorf("%w: %w", ErrAcquisition, err)
	}

	sctx, cancel := context.WithCancel(e.ctx)
	s := &session{gen: gen, ctx: sctx, cancel: cancel, device: device}

	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		s.teardown()
		return ErrStopped
	}
	e.sess = s
	e.mu.Unlock()

	stream, err := e.deps.Connector.Open(ctx, e.streamConfig(), livesession.Callbacks{
		OnOpen:     func() { e.onOpen(gen) },
		OnToolCall: func(calls []livesession.FunctionCall) { e.onToolCall(gen, calls) },
		OnClose:    func(err error) { e.onClose(gen, err) },
	})
	if err != nil {
		e.mu.Lock()
		if gen == e.gen {
			e.sess = nil
			e.setState(types.StateError)
		}
		e.mu.Unlock()
		s.teardown()
		return fmt.Errorf("%w: %w", ErrStream, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen {
		_ = stream.Close()
		return ErrStopped
	}
	s.stream = stream
	if s.opened {
		e.connectLocked(s)
	}
	return nil
}

func (e *Engine) failStart(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen == e.gen {
		e.setState(types.StateError)
	}
}

func (e *Engine) streamConfig() livesession.Config {
	cfg := e.cfg.Stream
	if cfg.SystemInstruction == "" {
		cfg.SystemInstruction = bridge.Instruction
	}
	if len(cfg.Tools) == 0 {
		cfg.Tools = []livesession.FunctionDeclaration{bridge.Declaration()}
	}
	return cfg
}

// onOpen may arrive before Open has returned the session handle.
func (e *Engine) onOpen(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.sess
	if gen != e.gen || s == nil || s.gen != gen {
		return
	}
	s.opened = true
	if s.stream != nil {
		e.connectLocked(s)
	}
}

// connectLocked starts the producers and the bridge. mu must be held.
func (e *Engine) connectLocked(s *session) {
	if e.state == types.StateConnected {
		return
	}
	s.outbox = pipeline.StartOutbox(s.ctx, s.stream, e.cfg.OutboxSize)
	s.bridge = bridge.New(recorder{e: e, gen: s.gen}, e.deps.Now)
	e.setState(types.StateConnected)

	outbox := s.outbox
	if err := s.device.StartAudio(func(samples []float32) {
		if s.ctx.Err() != nil {
			return
		}
		outbox.Push(pipeline.AudioChunk(samples))
	}); err != nil {
		slog.Warn("start audio capture", "error", err)
	}

	go pipeline.Sampler{
		Interval: e.cfg.FrameInterval,
		Tick:     func(context.Context) { e.sampleFrame(s) },
	}.Run(s.ctx)

	if e.deps.Analyzer != nil {
		go pipeline.Sampler{
			Interval: e.cfg.DeepInterval,
			Tick:     func(context.Context) { e.sampleDeep(s) },
		}.Run(s.ctx)
	}
}

func (e *Engine) sampleFrame(s *session) {
	img, err := s.device.Frame()
	if err != nil {
		slog.Debug("capture frame", "error", err)
		return
	}
	chunk, err := pipeline.FrameChunk(img, e.cfg.FrameQuality)
	if err != nil {
		slog.Warn("encode frame", "error", err)
		return
	}
	s.outbox.Push(chunk)
}

// sampleDeep submits a frame for deep analysis unless a call is in flight,
// in which case the tick is dropped.
func (e *Engine) sampleDeep(s *session) {
	if !e.guard.TryAcquire() {
		slog.Debug("deep analysis in flight, tick dropped", "dropped", e.guard.Dropped())
		return
	}

	img, err := s.device.Frame()
	if err != nil {
		e.guard.Release()
		slog.Debug("capture deep frame", "error", err)
		return
	}
	data, err := pipeline.EncodeJPEG(img, e.cfg.DeepQuality)
	if err != nil {
		e.guard.Release()
		slog.Warn("encode deep frame", "error", err)
		return
	}

	go e.analyze(s.gen, analysis.Image{MIMEType: pipeline.ImageMIMEType, Data: data})
}

func (e *Engine) analyze(gen uint64, img analysis.Image) {
	defer e.guard.Release()

	// Bound by Destroy and the timeout only; Stop lets the call finish.
	ctx, cancel := context.WithTimeout(e.ctx, e.cfg.AnalysisTimeout)
	defer cancel()

	audit, err := e.deps.Analyzer.Analyze(ctx, img, pipeline.DeepInstruction, analysis.AuditSchema)
	if err != nil {
		slog.Warn("deep analysis failed", "error", err)
		return
	}
	if err := e.recordAudit(gen, audit); err != nil {
		slog.Debug("discard audit", "gen", gen, "error", err)
	}
}

// recordAudit appends a deep-analysis result, refreshes the scores and runs
// the alert gate. OS notification and tone happen after the lock is released.
func (e *Engine) recordAudit(gen uint64, audit types.WellnessAudit) error {
	alert, err := e.appendAudit(gen, audit)
	if alert != nil {
		e.alerter.Announce(alert)
	}
	return err
}

func (e *Engine) appendAudit(gen uint64, audit types.WellnessAudit) (*types.NotificationEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen || e.state != types.StateConnected {
		return nil, ErrStaleSession
	}

	audit.ReceivedAt = e.deps.Now()
	if err := e.store.AppendAudit(audit); err != nil {
		return nil, fmt.Errorf("append audit: %w", err)
	}
	current, avg, err := e.scoresLocked()
	if err != nil {
		return nil, err
	}
	if e.hasCurrent {
		e.current.CurrentAuditScore = current
		e.current.SessionAvgScore = avg
	}

	e.deps.Emit(EventWellnessAudit, AuditEvent{Audit: audit, Score: current, SessionAvgScore: avg})
	alert, _ := e.alerter.Admit(audit)
	return alert, nil
}

// recordMetric appends a routine metric and replaces the projection.
func (e *Engine) recordMetric(gen uint64, m types.WorkspaceMetric) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen || e.state != types.StateConnected {
		return ErrStaleSession
	}

	if err := e.store.AppendMetric(m); err != nil {
		return fmt.Errorf("append metric: %w", err)
	}
	current, avg, err := e.scoresLocked()
	if err != nil {
		return err
	}
	m.CurrentAuditScore = current
	m.SessionAvgScore = avg
	e.current = m
	e.hasCurrent = true

	e.deps.Emit(EventWorkspaceMetrics, m)
	return nil
}

// scoresLocked returns the latest audit score and the session average. Both
// are MaxScore before the first audit.
func (e *Engine) scoresLocked() (current, avg int, err error) {
	audits, err := e.store.Audits()
	if err != nil {
		return 0, 0, fmt.Errorf("read audits: %w", err)
	}
	if len(audits) == 0 {
		return scoring.MaxScore, scoring.MaxScore, nil
	}
	return scoring.Score(audits[len(audits)-1]), scoring.Average(audits), nil
}

type recorder struct {
	e   *Engine
	gen uint64
}

func (r recorder) RecordMetric(m types.WorkspaceMetric) error {
	return r.e.recordMetric(r.gen, m)
}

func (e *Engine) onToolCall(gen uint64, calls []livesession.FunctionCall) {
	e.mu.Lock()
	s := e.sess
	if gen != e.gen || s == nil || s.bridge == nil {
		e.mu.Unlock()
		slog.Debug("tool call outside connected session", "gen", gen)
		return
	}
	b, stream, ctx := s.bridge, s.stream, s.ctx
	e.mu.Unlock()

	b.Handle(ctx, stream, calls)
}

// onClose handles a remote close: tear down without a report.
func (e *Engine) onClose(gen uint64, err error) {
	e.mu.Lock()
	if gen != e.gen || (e.state != types.StateConnecting && e.state != types.StateConnected) {
		e.mu.Unlock()
		return
	}
	slog.Warn("stream closed", "gen", gen, "error", err)

	s := e.sess
	e.sess = nil
	e.gen++
	e.resetLocked()
	e.setState(types.StateDisconnected)
	e.mu.Unlock()

	if s != nil {
		s.teardown()
	}
}

// Stop ends the session. With a non-empty wellness history it synthesizes
// the report, emits it and hands it to the Renderer. Stop is a no-op
// returning (nil, nil) when already disconnected.
func (e *Engine) Stop() (*types.SessionReport, error) {
	e.mu.Lock()
	if e.state == types.StateDisconnected {
		e.mu.Unlock()
		return nil, nil
	}

	s := e.sess
	e.sess = nil
	e.gen++ // late callbacks and analysis results are now stale

	rep, err := e.synthesizeLocked()
	if rep != nil {
		e.deps.Emit(EventSessionReport, *rep)
	}
	e.resetLocked()
	e.setState(types.StateDisconnected)
	e.mu.Unlock()

	if s != nil {
		s.teardown()
	}
	slog.Info("session stopped", "report", rep != nil)

	if err != nil {
		return nil, err
	}
	if rep != nil && e.deps.Renderer != nil {
		if err := e.deps.Renderer.Render(*rep); err != nil {
			return rep, fmt.Errorf("render report: %w", err)
		}
	}
	return rep, nil
}

func (e *Engine) synthesizeLocked() (*types.SessionReport, error) {
	now := e.deps.Now()
	first, ok, err := e.store.FirstMetric()
	if err != nil {
		return nil, fmt.Errorf("read first metric: %w", err)
	}
	start := now
	if ok {
		start = first.Timestamp
	}
	minutes := report.TotalMinutes(start, now)

	audits, err := e.store.Audits()
	if err != nil {
		return nil, fmt.Errorf("read audits: %w", err)
	}
	if len(audits) == 0 {
		return nil, nil
	}
	metrics, err := e.store.Metrics()
	if err != nil {
		return nil, fmt.Errorf("read metrics: %w", err)
	}

	rep, err := report.Synthesize(audits, metrics, minutes, report.Window{Start: e.startedAt, End: now})
	if err != nil {
		return nil, fmt.Errorf("synthesize report: %w", err)
	}
	return &rep, nil
}

// Destroy stops any session, cancels in-flight analysis and closes the
// history store. The engine cannot be restarted.
func (e *Engine) Destroy() {
	if _, err := e.Stop(); err != nil {
		slog.Warn("stop on destroy", "error", err)
	}

	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return
	}
	e.destroyed = true
	e.mu.Unlock()

	e.cancel()
	if err := e.store.Close(); err != nil {
		slog.Warn("close history", "error", err)
	}
}

// Stats is a snapshot of engine counters.
type Stats struct {
	Outbox           pipeline.OutboxStats
	Bridge           bridge.Stats
	DeepDropped      int64
	AlertsSuppressed int
}

// Stats returns the counters of the current session.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	var (
		outbox *pipeline.Outbox
		b      *bridge.Bridge
	)
	if s := e.sess; s != nil {
		outbox, b = s.outbox, s.bridge
	}
	e.mu.Unlock()

	st := Stats{
		DeepDropped:      e.guard.Dropped(),
		AlertsSuppressed: e.alerter.Suppressed(),
	}
	if outbox != nil {
		st.Outbox = outbox.Stats()
	}
	if b != nil {
		st.Bridge = b.Stats()
	}
	return st
}

// teardown releases session resources. Errors are logged and swallowed.
func (s *session) teardown() {
	s.cancel()
	if s.outbox != nil {
		s.outbox.Close()
	}
	if s.stream != nil {
		if err := s.stream.Close(); err != nil {
			slog.Debug("close stream", "error", err)
		}
	}
	if s.device != nil {
		if err := s.device.Close(); err != nil {
			slog.Debug("close device", "error", err)
		}
	}
}
