package history

import (
	"testing"
	"time"

	"go.aimuz.me/ergowatch/internal/types"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()

	b, err := NewBadger()
	if err != nil {
		t.Fatalf("NewBadger: %v", err)
	}
	t.Cleanup(func() { b.Close() })

	return map[string]Store{
		BackendMemory: NewMemory(),
		BackendBadger: b,
	}
}

func TestStore_AppendOrder(t *testing.T) {
	base := time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			// Timestamps deliberately out of order: arrival order wins.
			for i, off := range []int{3, 1, 2, 300} {
				m := types.WorkspaceMetric{
					Posture:   types.PostureGood,
					Distance:  float64(50 + i),
					Timestamp: base.Add(time.Duration(off) * time.Second),
				}
				if err := s.AppendMetric(m); err != nil {
					t.Fatalf("AppendMetric: %v", err)
				}
			}

			metrics, err := s.Metrics()
			if err != nil {
				t.Fatalf("Metrics: %v", err)
			}
			if len(metrics) != 4 {
				t.Fatalf("len(Metrics) = %d, want 4", len(metrics))
			}
			for i, m := range metrics {
				if m.Distance != float64(50+i) {
					t.Errorf("metrics[%d].Distance = %v, want %v", i, m.Distance, 50+i)
				}
			}

			first, ok, err := s.FirstMetric()
			if err != nil || !ok {
				t.Fatalf("FirstMetric = %v, %v", ok, err)
			}
			if !first.Timestamp.Equal(base.Add(3 * time.Second)) {
				t.Errorf("FirstMetric.Timestamp = %v, want first appended", first.Timestamp)
			}
		})
	}
}

func TestStore_AuditsAndReset(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			summaries := []string{"one", "two", "three"}
			for _, sum := range summaries {
				if err := s.AppendAudit(types.WellnessAudit{Summary: sum}); err != nil {
					t.Fatalf("AppendAudit: %v", err)
				}
			}
			if err := s.AppendMetric(types.WorkspaceMetric{Feedback: "x"}); err != nil {
				t.Fatalf("AppendMetric: %v", err)
			}

			audits, err := s.Audits()
			if err != nil {
				t.Fatalf("Audits: %v", err)
			}
			for i, a := range audits {
				if a.Summary != summaries[i] {
					t.Errorf("audits[%d].Summary = %q, want %q", i, a.Summary, summaries[i])
				}
			}
			if m, a := s.Counts(); m != 1 || a != 3 {
				t.Errorf("Counts() = %d, %d, want 1, 3", m, a)
			}

			if err := s.Reset(); err != nil {
				t.Fatalf("Reset: %v", err)
			}
			if m, a := s.Counts(); m != 0 || a != 0 {
				t.Errorf("Counts() after Reset = %d, %d, want 0, 0", m, a)
			}
			if _, ok, _ := s.FirstMetric(); ok {
				t.Error("FirstMetric found a metric after Reset")
			}
			audits, _ = s.Audits()
			if len(audits) != 0 {
				t.Errorf("len(Audits) after Reset = %d, want 0", len(audits))
			}

			// Sequence restarts cleanly after a reset.
			if err := s.AppendAudit(types.WellnessAudit{Summary: "again"}); err != nil {
				t.Fatalf("AppendAudit after Reset: %v", err)
			}
			audits, _ = s.Audits()
			if len(audits) != 1 || audits[0].Summary != "again" {
				t.Errorf("Audits after Reset = %+v", audits)
			}
		})
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		backend string
		wantErr bool
	}{
		{"", false},
		{BackendMemory, false},
		{BackendBadger, false},
		{"postgres", true},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			s, err := New(tt.backend)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New(%q) error = %v, wantErr %v", tt.backend, err, tt.wantErr)
			}
			if s != nil {
				s.Close()
			}
		})
	}
}
