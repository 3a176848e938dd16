package report

import (
	"bytes"
	"errors"
	"math"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"go.aimuz.me/ergowatch/internal/types"
	"go.aimuz.me/ergowatch/scoring"
)

func audit(neck, distance, blinking, focus types.Status) types.WellnessAudit {
	return types.WellnessAudit{
		NeckAngle: types.Assessment{Status: neck},
		Distance:  types.Assessment{Status: distance},
		Blinking:  types.Assessment{Status: blinking},
		Focus:     types.Assessment{Status: focus},
	}
}

var (
	ideal = audit(types.StatusNeutral, types.StatusOptimal, types.StatusNormal, types.StatusFocused)
	mixed = audit(types.StatusSlightlyForward, types.StatusTooClose, types.StatusNormal, types.StatusDrowsy)
	worst = audit(types.StatusSlouching, types.StatusTooClose, types.StatusHeavy, types.StatusDrowsy)
)

func TestSynthesize_Empty(t *testing.T) {
	if _, err := Synthesize(nil, nil, 1, Window{}); !errors.Is(err, ErrEmptyHistory) {
		t.Errorf("Synthesize(nil) error = %v, want ErrEmptyHistory", err)
	}
}

func TestSynthesize(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	window := Window{Start: start, End: start.Add(12 * time.Minute)}
	audits := []types.WellnessAudit{ideal, ideal, mixed}

	r, err := Synthesize(audits, nil, 12, window)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if r.ID == "" {
		t.Error("ID is empty")
	}
	if r.TotalMinutes != 12 || r.AuditCount != 3 || r.MetricCount != 0 {
		t.Errorf("report = %+v", r)
	}
	if !r.StartedAt.Equal(window.Start) || !r.EndedAt.Equal(window.End) {
		t.Errorf("window = %v..%v", r.StartedAt, r.EndedAt)
	}

	// Scores: 100, 100, 35 -> mean 78.33
	if r.OverallScorePercent != 78 {
		t.Errorf("OverallScorePercent = %d, want 78", r.OverallScorePercent)
	}

	want := []struct {
		category types.Category
		score    float64
		variant  types.GuidanceVariant
	}{
		{types.CategoryNeck, 8.3, types.GuidancePraise},         // (20+5)/3
		{types.CategoryDistance, 6.7, types.GuidanceCorrective}, // 20/3
		{types.CategoryBlinking, 10, types.GuidancePraise},
		{types.CategoryFocus, 6.7, types.GuidanceCorrective},
	}
	if len(r.Categories) != len(want) {
		t.Fatalf("categories = %d, want %d", len(r.Categories), len(want))
	}
	for i, w := range want {
		got := r.Categories[i]
		if got.Category != w.category || got.Score != w.score || got.Guidance.Variant != w.variant {
			t.Errorf("categories[%d] = {%s %v %s}, want {%s %v %s}",
				i, got.Category, got.Score, got.Guidance.Variant, w.category, w.score, w.variant)
		}
	}
	if n := len(r.Categories[1].Guidance.Rationale); n == 0 {
		t.Error("corrective guidance has no rationale")
	}
}

func TestSynthesize_MinutesFloor(t *testing.T) {
	r, err := Synthesize([]types.WellnessAudit{worst}, nil, 0, Window{})
	if err != nil {
		t.Fatal(err)
	}
	if r.TotalMinutes != 1 {
		t.Errorf("TotalMinutes = %d, want 1", r.TotalMinutes)
	}
	if r.OverallScorePercent != 0 {
		t.Errorf("OverallScorePercent = %d, want 0", r.OverallScorePercent)
	}
	for _, c := range r.Categories {
		if c.Score != 0 {
			t.Errorf("%s score = %v, want 0", c.Category, c.Score)
		}
	}
}

func TestCategoryScore_Property(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	pool := map[types.Category][]types.Status{}
	for _, c := range types.Categories {
		pool[c] = append(types.AllowedStatuses(c), "")
	}
	pick := func(c types.Category) types.Status {
		p := pool[c]
		return p[rng.IntN(len(p))]
	}

	for range 200 {
		n := 1 + rng.IntN(40)
		audits := make([]types.WellnessAudit, n)
		for i := range audits {
			audits[i] = audit(pick(types.CategoryNeck), pick(types.CategoryDistance),
				pick(types.CategoryBlinking), pick(types.CategoryFocus))
		}

		r, err := Synthesize(audits, nil, 1, Window{})
		if err != nil {
			t.Fatal(err)
		}
		for _, cr := range r.Categories {
			var ideal, secondary int
			for _, a := range audits {
				s := a.Assessment(cr.Category).Status
				if scoring.IsIdeal(cr.Category, s) {
					ideal++
				} else if scoring.IsSecondary(cr.Category, s) {
					secondary++
				}
			}
			want := math.Round(float64(10*ideal+5*secondary)/float64(n)*10) / 10
			if cr.Score != want {
				t.Fatalf("%s score = %v, want %v (ideal=%d secondary=%d n=%d)",
					cr.Category, cr.Score, want, ideal, secondary, n)
			}
			if cr.Score < 0 || cr.Score > 10 {
				t.Fatalf("%s score %v out of range", cr.Category, cr.Score)
			}
		}
		if r.OverallScorePercent != scoring.Average(audits) {
			t.Fatalf("OverallScorePercent = %d, want %d", r.OverallScorePercent, scoring.Average(audits))
		}
	}
}

func TestGuidanceFor(t *testing.T) {
	tests := []struct {
		score float64
		want  types.GuidanceVariant
	}{
		{10, types.GuidancePraise},
		{8.0, types.GuidancePraise},
		{7.9, types.GuidanceCorrective},
		{0, types.GuidanceCorrective},
	}
	for _, tt := range tests {
		for _, c := range types.Categories {
			g := GuidanceFor(c, tt.score)
			if g.Variant != tt.want {
				t.Errorf("GuidanceFor(%s, %v) = %s, want %s", c, tt.score, g.Variant, tt.want)
			}
			if g.Title == "" || g.Body == "" {
				t.Errorf("GuidanceFor(%s, %v) has empty text", c, tt.score)
			}
			if (g.Variant == types.GuidanceCorrective) != (len(g.Rationale) > 0) {
				t.Errorf("GuidanceFor(%s, %v) rationale = %v", c, tt.score, g.Rationale)
			}
		}
	}
}

func TestGuidanceFor_DoesNotShareRationale(t *testing.T) {
	g := GuidanceFor(types.CategoryNeck, 0)
	g.Rationale[0] = "changed"
	if GuidanceFor(types.CategoryNeck, 0).Rationale[0] == "changed" {
		t.Error("rationale slice is shared between calls")
	}
}

func TestTotalMinutes(t *testing.T) {
	first := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		elapsed time.Duration
		want    int
	}{
		{0, 1},
		{20 * time.Second, 1},
		{89 * time.Second, 1},
		{90 * time.Second, 2},
		{125000 * time.Millisecond, 2},
		{30 * time.Minute, 30},
	}
	for _, tt := range tests {
		if got := TotalMinutes(first, first.Add(tt.elapsed)); got != tt.want {
			t.Errorf("TotalMinutes(%v) = %d, want %d", tt.elapsed, got, tt.want)
		}
	}
}

func TestSummarize(t *testing.T) {
	if s := Summarize(nil); s.Samples != 0 || s.Postures != nil {
		t.Errorf("Summarize(nil) = %+v", s)
	}

	metrics := []types.WorkspaceMetric{
		{Posture: types.PostureGood, Distance: 60, BlinksPerMinute: 15, IsFocused: true},
		{Posture: types.PostureGood, Distance: 50, BlinksPerMinute: 10, IsFocused: true, IsTired: true},
		{Posture: types.PostureSlouching, Distance: 45, BlinksPerMinute: 8},
	}
	s := Summarize(metrics)

	if s.Samples != 3 {
		t.Errorf("Samples = %d", s.Samples)
	}
	if s.AvgDistance != 51.7 {
		t.Errorf("AvgDistance = %v, want 51.7", s.AvgDistance)
	}
	if s.AvgBlinksPerMinute != 11 {
		t.Errorf("AvgBlinksPerMinute = %v, want 11", s.AvgBlinksPerMinute)
	}
	if s.FocusedRatio != 0.67 || s.TiredRatio != 0.33 {
		t.Errorf("ratios = %v/%v, want 0.67/0.33", s.FocusedRatio, s.TiredRatio)
	}
	if s.Postures[types.PostureGood] != 2 || s.Postures[types.PostureSlouching] != 1 {
		t.Errorf("Postures = %v", s.Postures)
	}
}

func TestRenderFunc(t *testing.T) {
	var got types.SessionReport
	var r Renderer = RenderFunc(func(rep types.SessionReport) error {
		got = rep
		return nil
	})
	if err := r.Render(types.SessionReport{ID: "x"}); err != nil || got.ID != "x" {
		t.Errorf("Render() = %v, got %+v", err, got)
	}
}

func TestYAMLRenderer(t *testing.T) {
	rep, err := Synthesize([]types.WellnessAudit{ideal, mixed}, nil, 3, Window{})
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := (YAMLRenderer{W: &buf}).Render(rep); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"id: " + rep.ID,
		"total_minutes: 3",
		"audit_count: 2",
		"category: neckAngle",
		"variant: praise",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
