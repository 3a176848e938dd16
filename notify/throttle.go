// Package notify decides when an ergonomics alert is raised and delivers it
// to the notification surfaces.
package notify

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"go.aimuz.me/ergowatch/internal/types"
	"go.aimuz.me/ergowatch/scoring"
)

// DefaultCooldown is the minimum gap between two emitted alerts.
const DefaultCooldown = 30 * time.Second

// AlertTitle is the title of every ergonomics alert.
const AlertTitle = "Ergonomics check"

// Deviation is a category whose status is not ideal.
type Deviation struct {
	Category types.Category
	Status   types.Status
}

// Deviations returns every category of a that deviates from its ideal status,
// in report order.
func Deviations(a types.WellnessAudit) []Deviation {
	var devs []Deviation
	for _, c := range types.Categories {
		s := a.Assessment(c).Status
		if !scoring.IsIdeal(c, s) {
			devs = append(devs, Deviation{Category: c, Status: s})
		}
	}
	return devs
}

// Compose builds the alert message listing each deviation with its actual
// status, for example "Neck angle: Forward Head. Blinking: Heavy/Droopy."
func Compose(devs []Deviation) (title, message string) {
	// A Caser is stateful; each call gets its own.
	caser := cases.Title(language.English)
	parts := make([]string, 0, len(devs))
	for _, d := range devs {
		status := string(d.Status)
		if status == "" {
			status = "unknown"
		}
		parts = append(parts, fmt.Sprintf("%s: %s.", d.Category.Label(), caser.String(status)))
	}
	return AlertTitle, strings.Join(parts, " ")
}

// Throttle is a cooldown gate. The zero value allows the first emission and
// uses DefaultCooldown.
type Throttle struct {
	Cooldown time.Duration

	mu       sync.Mutex
	last     time.Time
	emitted  bool
	suppress int
}

// Allow reports whether an alert may be emitted at now and, if so, records
// now as the last emission. Suppressed alerts are not queued or merged.
func (t *Throttle) Allow(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	cooldown := t.Cooldown
	if cooldown == 0 {
		cooldown = DefaultCooldown
	}
	if t.emitted && now.Sub(t.last) < cooldown {
		t.suppress++
		return false
	}
	t.last = now
	t.emitted = true
	return true
}

// Suppressed returns how many alerts the gate has dropped.
func (t *Throttle) Suppressed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.suppress
}

// Reset forgets the last emission.
func (t *Throttle) Reset() {
	t.mu.Lock()
	t.last = time.Time{}
	t.emitted = false
	t.suppress = 0
	t.mu.Unlock()
}
