package history

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"go.aimuz.me/ergowatch/internal/types"
)

var (
	metricPrefix = []byte("m/")
	auditPrefix  = []byte("a/")
)

// Badger is a Store backed by an in-memory badger instance. Nothing is
// written to disk; the data lives only as long as the process.
type Badger struct {
	mu        sync.Mutex
	db        *badger.DB
	metricSeq uint64
	auditSeq  uint64
}

// NewBadger opens an in-memory badger store.
func NewBadger() (*Badger, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(slogLogger{})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Badger{db: db}, nil
}

func (s *Badger) AppendMetric(m types.WorkspaceMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.put(metricPrefix, s.metricSeq, m); err != nil {
		return fmt.Errorf("append metric: %w", err)
	}
	s.metricSeq++
	return nil
}

func (s *Badger) AppendAudit(a types.WellnessAudit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.put(auditPrefix, s.auditSeq, a); err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	s.auditSeq++
	return nil
}

func (s *Badger) Metrics() ([]types.WorkspaceMetric, error) {
	var out []types.WorkspaceMetric
	err := s.scan(metricPrefix, 0, func(val []byte) error {
		var m types.WorkspaceMetric
		if err := json.Unmarshal(val, &m); err != nil {
			return err
		}
		out = append(out, m)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read metrics: %w", err)
	}
	return out, nil
}

func (s *Badger) Audits() ([]types.WellnessAudit, error) {
	var out []types.WellnessAudit
	err := s.scan(auditPrefix, 0, func(val []byte) error {
		var a types.WellnessAudit
		if err := json.Unmarshal(val, &a); err != nil {
			return err
		}
		out = append(out, a)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read audits: %w", err)
	}
	return out, nil
}

func (s *Badger) FirstMetric() (types.WorkspaceMetric, bool, error) {
	var (
		m     types.WorkspaceMetric
		found bool
	)
	err := s.scan(metricPrefix, 1, func(val []byte) error {
		found = true
		return json.Unmarshal(val, &m)
	})
	if err != nil {
		return types.WorkspaceMetric{}, false, fmt.Errorf("read first metric: %w", err)
	}
	return m, found, nil
}

func (s *Badger) Counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.metricSeq), int(s.auditSeq)
}

// Reset drops both logs.
func (s *Badger) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.DropAll(); err != nil {
		return fmt.Errorf("drop history: %w", err)
	}
	s.metricSeq = 0
	s.auditSeq = 0
	return nil
}

func (s *Badger) Close() error {
	return s.db.Close()
}

func (s *Badger) put(prefix []byte, seq uint64, v any) error {
	val, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(prefix, seq), val)
	})
}

// scan visits values under prefix in sequence order. limit <= 0 visits all.
func (s *Badger) scan(prefix []byte, limit int, fn func(val []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		n := 0
		for it.Rewind(); it.Valid(); it.Next() {
			if err := it.Item().Value(fn); err != nil {
				return err
			}
			n++
			if limit > 0 && n >= limit {
				break
			}
		}
		return nil
	})
}

// key encodes seq big-endian so lexical order matches append order.
func key(prefix []byte, seq uint64) []byte {
	k := make([]byte, len(prefix)+8)
	copy(k, prefix)
	binary.BigEndian.PutUint64(k[len(prefix):], seq)
	return k
}

// slogLogger routes badger's internal logging to slog.
type slogLogger struct{}

func (slogLogger) Errorf(format string, args ...any) {
	slog.Error(fmt.Sprintf(format, args...), "component", "badger")
}

func (slogLogger) Warningf(format string, args ...any) {
	slog.Warn(fmt.Sprintf(format, args...), "component", "badger")
}

func (slogLogger) Infof(format string, args ...any) {
	slog.Debug(fmt.Sprintf(format, args...), "component", "badger")
}

func (slogLogger) Debugf(format string, args ...any) {
	slog.Debug(fmt.Sprintf(format, args...), "component", "badger")
}
