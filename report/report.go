// Package report synthesizes the end-of-session report content.
package report

import (
	"errors"
	"math"
	"time"

	"github.com/google/uuid"

	"go.aimuz.me/ergowatch/internal/types"
	"go.aimuz.me/ergowatch/scoring"
)

// ErrEmptyHistory is returned when there are no audits to report on.
var ErrEmptyHistory = errors.New("empty wellness history")

// Report points per audit on the 0-10 category scale.
const (
	idealPoints     = 10
	secondaryPoints = 5
)

// PraiseThreshold is the category score at or above which praise applies.
const PraiseThreshold = 8.0

// Renderer displays a finished report.
type Renderer interface {
	Render(r types.SessionReport) error
}

// RenderFunc adapts a function to Renderer.
type RenderFunc func(r types.SessionReport) error

func (f RenderFunc) Render(r types.SessionReport) error { return f(r) }

// Window is the wall-clock span of a session.
type Window struct {
	Start time.Time
	End   time.Time
}

// TotalMinutes returns the whole minutes between first and now, at least one.
func TotalMinutes(first, now time.Time) int {
	m := int(math.Round(float64(now.Sub(first)) / float64(time.Minute)))
	return max(1, m)
}

// Synthesize builds the report for a finished session. audits must be
// non-empty; metrics may be empty.
func Synthesize(audits []types.WellnessAudit, metrics []types.WorkspaceMetric, totalMinutes int, window Window) (types.SessionReport, error) {
	if len(audits) == 0 {
		return types.SessionReport{}, ErrEmptyHistory
	}

	categories := make([]types.CategoryReport, 0, len(types.Categories))
	for _, c := range types.Categories {
		categories = append(categories, categoryReport(c, audits))
	}

	return types.SessionReport{
		ID:                  uuid.New().String(),
		StartedAt:           window.Start,
		EndedAt:             window.End,
		TotalMinutes:        max(1, totalMinutes),
		AuditCount:          len(audits),
		MetricCount:         len(metrics),
		Categories:          categories,
		OverallScorePercent: scoring.Average(audits),
		Metrics:             Summarize(metrics),
	}, nil
}

// CategoryScore returns round((10*ideal + 5*secondary) / n, 1).
func CategoryScore(ideal, secondary, n int) float64 {
	if n == 0 {
		return 0
	}
	return round1(float64(idealPoints*ideal+secondaryPoints*secondary) / float64(n))
}

func categoryReport(c types.Category, audits []types.WellnessAudit) types.CategoryReport {
	var ideal, secondary int
	for _, a := range audits {
		s := a.Assessment(c).Status
		switch {
		case scoring.IsIdeal(c, s):
			ideal++
		case scoring.IsSecondary(c, s):
			secondary++
		}
	}
	score := CategoryScore(ideal, secondary, len(audits))
	return types.CategoryReport{
		Category:       c,
		Label:          c.Label(),
		Score:          score,
		IdealCount:     ideal,
		SecondaryCount: secondary,
		Guidance:       GuidanceFor(c, score),
	}
}

// Summarize aggregates routine metrics.
func Summarize(metrics []types.WorkspaceMetric) types.MetricSummary {
	sum := types.MetricSummary{Samples: len(metrics)}
	if len(metrics) == 0 {
		return sum
	}

	var distance, blinks float64
	var focused, tired int
	sum.Postures = make(map[types.Posture]int)
	for _, m := range metrics {
		distance += m.Distance
		blinks += m.BlinksPerMinute
		if m.IsFocused {
			focused++
		}
		if m.IsTired {
			tired++
		}
		sum.Postures[m.Posture]++
	}

	n := float64(len(metrics))
	sum.AvgDistance = round1(distance / n)
	sum.AvgBlinksPerMinute = round1(blinks / n)
	sum.FocusedRatio = round2(float64(focused) / n)
	sum.TiredRatio = round2(float64(tired) / n)
	return sum
}

func round1(x float64) float64 { return math.Round(x*10) / 10 }
func round2(x float64) float64 { return math.Round(x*100) / 100 }
