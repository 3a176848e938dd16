package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.aimuz.me/ergowatch/livesession"
)

// DefaultOutboxSize bounds the chunks waiting to be sent.
const DefaultOutboxSize = 64

// sendTimeout bounds a single outbound send.
const sendTimeout = 5 * time.Second

// Sender is the outbound half of a streaming session.
type Sender interface {
	SendRealtimeInput(ctx context.Context, chunk livesession.Chunk) error
}

// OutboxStats counts what happened to pushed chunks.
type OutboxStats struct {
	Sent    int64
	Dropped int64 // Queue full
	Failed  int64 // Send returned an error
}

// Outbox is a bounded queue drained by a single goroutine. Producers never
// block: a full queue drops the new chunk.
type Outbox struct {
	queue  chan livesession.Chunk
	sender Sender
	cancel context.CancelFunc
	wg     sync.WaitGroup

	sent, dropped, failed atomic.Int64
}

// StartOutbox starts draining into sender until Close or ctx is done.
func StartOutbox(ctx context.Context, sender Sender, size int) *Outbox {
	if size <= 0 {
		size = DefaultOutboxSize
	}
	ctx, cancel := context.WithCancel(ctx)
	o := &Outbox{
		queue:  make(chan livesession.Chunk, size),
		sender: sender,
		cancel: cancel,
	}
	o.wg.Add(1)
	go o.run(ctx)
	return o
}

// Push enqueues chunk and reports whether it was accepted.
func (o *Outbox) Push(chunk livesession.Chunk) bool {
	select {
	case o.queue <- chunk:
		return true
	default:
		if n := o.dropped.Add(1); n == 1 || n%100 == 0 {
			slog.Warn("outbox full, dropping chunk", "mime", chunk.MIMEType, "dropped", n)
		}
		return false
	}
}

// Stats returns a snapshot of the counters.
func (o *Outbox) Stats() OutboxStats {
	return OutboxStats{
		Sent:    o.sent.Load(),
		Dropped: o.dropped.Load(),
		Failed:  o.failed.Load(),
	}
}

// Close stops the drain goroutine and waits for it. Queued chunks are
// discarded.
func (o *Outbox) Close() {
	o.cancel()
	o.wg.Wait()
}

func (o *Outbox) run(ctx context.Context) {
	defer o.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case chunk := <-o.queue:
			if err := o.send(ctx, chunk); err != nil {
				o.failed.Add(1)
				slog.Debug("send chunk", "mime", chunk.MIMEType, "error", err)
				continue
			}
			o.sent.Add(1)
		}
	}
}

func (o *Outbox) send(ctx context.Context, chunk livesession.Chunk) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sender panic: %v", r)
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	return o.sender.SendRealtimeInput(ctx, chunk)
}
