// Package types provides shared type definitions for the session engine.
package types

import "time"

// SessionState is the lifecycle state of a live session.
type SessionState string

const (
	StateDisconnected SessionState = "disconnected"
	StateConnecting   SessionState = "connecting"
	StateConnected    SessionState = "connected"
	StateError        SessionState = "error"
)

// Posture is the coarse posture reported with each routine metric.
type Posture string

const (
	PostureGood        Posture = "Good"
	PostureSlouching   Posture = "Slouching"
	PostureForwardHead Posture = "Forward Head"
	PostureUnknown     Posture = "Unknown"
)

// Postures lists every posture value accepted from the streaming collaborator.
var Postures = []Posture{PostureGood, PostureSlouching, PostureForwardHead, PostureUnknown}

// WorkspaceMetric is a routine ergonomics reading delivered through a tool call.
// Immutable once appended to the metric history.
type WorkspaceMetric struct {
	Posture         Posture   `json:"posture"`
	Distance        float64   `json:"distance"`        // Eye-to-screen distance in centimetres
	BlinksPerMinute float64   `json:"blinksPerMinute"` // Estimated blink rate
	IsFocused       bool      `json:"isFocused"`
	IsTired         bool      `json:"isTired"`
	Feedback        string    `json:"feedback"`
	Timestamp       time.Time `json:"timestamp"` // Receipt time, not capture time

	// Projection of the latest scores, filled when the metric is projected to the UI.
	CurrentAuditScore int `json:"currentAuditScore"`
	SessionAvgScore   int `json:"sessionAvgScore"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Wellness audits
// ─────────────────────────────────────────────────────────────────────────────

// Category is one of the four assessment areas of a wellness audit.
type Category string

const (
	CategoryNeck     Category = "neckAngle"
	CategoryDistance Category = "distance"
	CategoryBlinking Category = "blinking"
	CategoryFocus    Category = "focus"
)

// Categories lists the audit categories in report order.
var Categories = []Category{CategoryNeck, CategoryDistance, CategoryBlinking, CategoryFocus}

// Label returns a human-readable category name.
func (c Category) Label() string {
	switch c {
	case CategoryNeck:
		return "Neck angle"
	case CategoryDistance:
		return "Screen distance"
	case CategoryBlinking:
		return "Blinking"
	case CategoryFocus:
		return "Focus"
	}
	return string(c)
}

// Status is the assessed condition of a single category.
type Status string

const (
	StatusNeutral         Status = "Neutral"
	StatusSlightlyForward Status = "Slightly Forward"
	StatusForwardHead     Status = "Forward Head"
	StatusSlouching       Status = "Slouching"

	StatusOptimal  Status = "Optimal"
	StatusTooFar   Status = "Too Far"
	StatusTooClose Status = "Too Close"

	StatusNormal Status = "Normal"
	StatusLow    Status = "Low"
	StatusHeavy  Status = "Heavy/Droopy"

	StatusFocused    Status = "Focused"
	StatusDistracted Status = "Distracted"
	StatusDrowsy     Status = "Drowsy"
)

// AllowedStatuses returns the statuses the analysis collaborator may report
// for c, ideal first, secondary second.
func AllowedStatuses(c Category) []Status {
	switch c {
	case CategoryNeck:
		return []Status{StatusNeutral, StatusSlightlyForward, StatusForwardHead, StatusSlouching}
	case CategoryDistance:
		return []Status{StatusOptimal, StatusTooFar, StatusTooClose}
	case CategoryBlinking:
		return []Status{StatusNormal, StatusLow, StatusHeavy}
	case CategoryFocus:
		return []Status{StatusFocused, StatusDistracted, StatusDrowsy}
	}
	return nil
}

// Assessment is the status and explanation for one category.
type Assessment struct {
	Status  Status `json:"status"`
	Message string `json:"message"`
}

// WellnessAudit is a deep-analysis result. Immutable once appended to the
// wellness history.
type WellnessAudit struct {
	NeckAngle Assessment `json:"neckAngle"`
	Distance  Assessment `json:"distance"`
	Blinking  Assessment `json:"blinking"`
	Focus     Assessment `json:"focus"`
	Summary   string     `json:"summary"`

	ReceivedAt time.Time `json:"receivedAt,omitzero"`
}

// Assessment returns the assessment recorded for c.
func (a WellnessAudit) Assessment(c Category) Assessment {
	switch c {
	case CategoryNeck:
		return a.NeckAngle
	case CategoryDistance:
		return a.Distance
	case CategoryBlinking:
		return a.Blinking
	case CategoryFocus:
		return a.Focus
	}
	return Assessment{}
}

// ─────────────────────────────────────────────────────────────────────────────
// Notifications
// ─────────────────────────────────────────────────────────────────────────────

// NotificationEvent is an emitted ergonomics alert. At most one is active.
type NotificationEvent struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	EmittedAt time.Time `json:"emittedAt"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Session report
// ─────────────────────────────────────────────────────────────────────────────

// GuidanceVariant selects which guidance text applies to a category.
type GuidanceVariant string

const (
	GuidancePraise     GuidanceVariant = "praise"
	GuidanceCorrective GuidanceVariant = "corrective"
)

// Guidance is the advice attached to a category in the report.
type Guidance struct {
	Variant   GuidanceVariant `json:"variant" yaml:"variant"`
	Title     string          `json:"title" yaml:"title"`
	Body      string          `json:"body" yaml:"body"`
	Rationale []string        `json:"rationale,omitempty" yaml:"rationale,omitempty"`
}

// CategoryReport is the normalized score of one category over the session.
type CategoryReport struct {
	Category       Category `json:"category" yaml:"category"`
	Label          string   `json:"label" yaml:"label"`
	Score          float64  `json:"score" yaml:"score"` // 0-10, one decimal
	IdealCount     int      `json:"idealCount" yaml:"ideal_count"`
	SecondaryCount int      `json:"secondaryCount" yaml:"secondary_count"`
	Guidance       Guidance `json:"guidance" yaml:"guidance"`
}

// MetricSummary aggregates the routine metrics of a session.
type MetricSummary struct {
	Samples            int             `json:"samples" yaml:"samples"`
	AvgDistance        float64         `json:"avgDistance" yaml:"avg_distance"`
	AvgBlinksPerMinute float64         `json:"avgBlinksPerMinute" yaml:"avg_blinks_per_minute"`
	FocusedRatio       float64         `json:"focusedRatio" yaml:"focused_ratio"`
	TiredRatio         float64         `json:"tiredRatio" yaml:"tired_ratio"`
	Postures           map[Posture]int `json:"postures,omitempty" yaml:"postures,omitempty"`
}

// SessionReport is the end-of-session content handed to the renderer.
// Never mutated after creation.
type SessionReport struct {
	ID                  string           `json:"id" yaml:"id"`
	StartedAt           time.Time        `json:"startedAt" yaml:"started_at"`
	EndedAt             time.Time        `json:"endedAt" yaml:"ended_at"`
	TotalMinutes        int              `json:"totalMinutes" yaml:"total_minutes"`
	AuditCount          int              `json:"auditCount" yaml:"audit_count"`
	MetricCount         int              `json:"metricCount" yaml:"metric_count"`
	Categories          []CategoryReport `json:"categories" yaml:"categories"`
	OverallScorePercent int              `json:"overallScorePercent" yaml:"overall_score_percent"`
	Metrics             MetricSummary    `json:"metrics" yaml:"metrics"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

// Provider types.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// APICredential is a stored API key for one provider.
type APICredential struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"` // gemini, openai
	BaseURL string `json:"base_url,omitempty"`
	APIKey  string `json:"api_key"`
}

// ProviderSelection picks the credential and model used by a collaborator.
type ProviderSelection struct {
	CredentialID string `json:"credential_id"`
	Model        string `json:"model,omitempty"`
}
