package engine

import "go.aimuz.me/ergowatch/internal/types"

// Event names for UI projection.
const (
	EventSessionState     = "session-state"
	EventWorkspaceMetrics = "workspace-metrics"
	EventWellnessAudit    = "wellness-audit"
	EventToastShow        = "toast-show"
	EventToastDismiss     = "toast-dismiss"
	EventSessionReport    = "session-report"
)

// AuditEvent is the payload of EventWellnessAudit.
type AuditEvent struct {
	Audit           types.WellnessAudit `json:"audit"`
	Score           int                 `json:"score"`
	SessionAvgScore int                 `json:"sessionAvgScore"`
}
