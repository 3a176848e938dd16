package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"go.aimuz.me/ergowatch/internal/types"
)

// DefaultToastDuration is how long an in-app toast stays visible.
const DefaultToastDuration = 7 * time.Second

// Notifier is the OS-level notification surface.
type Notifier interface {
	// Permitted reports whether notification permission was granted earlier.
	Permitted() bool
	Notify(title, message string) error
}

// TonePlayer plays mono float32 samples.
type TonePlayer interface {
	Play(samples []float32, sampleRate int) error
}

// ToastFunc receives toast changes: the active event, or nil on dismiss.
type ToastFunc func(event *types.NotificationEvent)

// AlerterConfig holds the collaborators and timings of an Alerter.
// Nil collaborators are skipped.
type AlerterConfig struct {
	Cooldown      time.Duration
	ToastDuration time.Duration
	Notifier      Notifier
	Player        TonePlayer
	Toast         ToastFunc
	Now           func() time.Time
}

// Alerter raises at most one alert per cooldown window and keeps at most one
// toast active. A new emission replaces the active toast and restarts its
// dismiss timer.
type Alerter struct {
	cfg      AlerterConfig
	throttle Throttle
	tone     []float32

	mu     sync.Mutex
	active *types.NotificationEvent
	timer  *time.Timer
}

// NewAlerter creates an Alerter, applying default timings.
func NewAlerter(cfg AlerterConfig) *Alerter {
	if cfg.Cooldown == 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.ToastDuration == 0 {
		cfg.ToastDuration = DefaultToastDuration
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Alerter{
		cfg:      cfg,
		throttle: Throttle{Cooldown: cfg.Cooldown},
		tone:     AlertTone(ToneSampleRate),
	}
}

// Evaluate checks a new audit and emits an alert if any category deviates
// and the cooldown has elapsed. It returns the emitted event, if any.
func (a *Alerter) Evaluate(audit types.WellnessAudit) (*types.NotificationEvent, bool) {
	event, ok := a.Admit(audit)
	if ok {
		a.Announce(event)
	}
	return event, ok
}

// Admit runs the deviation check and the cooldown and, on success, shows
// the toast. It does not touch the OS notifier or the tone player; the
// caller passes the event to Announce.
func (a *Alerter) Admit(audit types.WellnessAudit) (*types.NotificationEvent, bool) {
	devs := Deviations(audit)
	if len(devs) == 0 {
		return nil, false
	}

	now := a.cfg.Now()
	if !a.throttle.Allow(now) {
		slog.Debug("alert suppressed by cooldown", "deviations", len(devs))
		return nil, false
	}

	title, message := Compose(devs)
	event := &types.NotificationEvent{
		ID:        uuid.New().String(),
		Title:     title,
		Message:   message,
		EmittedAt: now,
	}
	a.showToast(event)
	return event, true
}

// Announce delivers an admitted event to the OS notifier and plays the tone.
// Both may block.
func (a *Alerter) Announce(event *types.NotificationEvent) {
	if n := a.cfg.Notifier; n != nil && n.Permitted() {
		if err := n.Notify(event.Title, event.Message); err != nil {
			slog.Warn("os notification failed", "error", err)
		}
	}

	if p := a.cfg.Player; p != nil {
		if err := p.Play(a.tone, ToneSampleRate); err != nil {
			slog.Warn("play alert tone", "error", err)
		}
	}

	slog.Info("alert emitted", "id", event.ID, "message", event.Message)
}

func (a *Alerter) showToast(event *types.NotificationEvent) {
	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
	}
	a.active = event
	id := event.ID
	a.timer = time.AfterFunc(a.cfg.ToastDuration, func() { a.dismiss(id) })
	toast := a.cfg.Toast
	a.mu.Unlock()

	if toast != nil {
		toast(event)
	}
}

// dismiss hides the toast if it is still the one identified by id.
func (a *Alerter) dismiss(id string) {
	a.mu.Lock()
	if a.active == nil || a.active.ID != id {
		a.mu.Unlock()
		return
	}
	a.active = nil
	a.timer = nil
	toast := a.cfg.Toast
	a.mu.Unlock()

	if toast != nil {
		toast(nil)
	}
}

// Active returns the visible toast, if any.
func (a *Alerter) Active() (types.NotificationEvent, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active == nil {
		return types.NotificationEvent{}, false
	}
	return *a.active, true
}

// Suppressed returns how many alerts the cooldown has dropped.
func (a *Alerter) Suppressed() int {
	return a.throttle.Suppressed()
}

// Reset dismisses any active toast and clears the cooldown.
func (a *Alerter) Reset() {
	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	hadToast := a.active != nil
	a.active = nil
	toast := a.cfg.Toast
	a.mu.Unlock()

	a.throttle.Reset()
	if hadToast && toast != nil {
		toast(nil)
	}
}
