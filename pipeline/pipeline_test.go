package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.aimuz.me/ergowatch/internal/types"
	"go.aimuz.me/ergowatch/livesession"
)

func TestEncodePCM16(t *testing.T) {
	tests := []struct {
		name string
		in   float32
		want int16
	}{
		{"silence", 0, 0},
		{"half", 0.5, 16384},
		{"negative half", -0.5, -16384},
		{"minus one", -1, -32768},
		{"truncates", 0.99999, 32767},
		{"one wraps", 1, -32768},
		{"over range wraps", 1.5, -16384},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := EncodePCM16([]float32{tt.in})
			if len(out) != 2 {
				t.Fatalf("len = %d, want 2", len(out))
			}
			if got := int16(binary.LittleEndian.Uint16(out)); got != tt.want {
				t.Errorf("EncodePCM16(%v) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestAudioChunk(t *testing.T) {
	samples := make([]float32, 4096)
	samples[0] = 0.5

	chunk := AudioChunk(samples)
	if chunk.MIMEType != "audio/pcm;rate=16000" {
		t.Errorf("MIMEType = %q", chunk.MIMEType)
	}
	raw, err := base64.StdEncoding.DecodeString(chunk.Data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(raw) != 8192 {
		t.Errorf("len = %d, want 8192", len(raw))
	}
	if !bytes.Equal(raw[:2], []byte{0x00, 0x40}) {
		t.Errorf("first sample bytes = %x, want 0040", raw[:2])
	}
}

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := range 48 {
		for x := range 64 {
			img.Set(x, y, color.RGBA{uint8(x * 4), uint8(y * 5), 128, 255})
		}
	}
	return img
}

func TestEncodeJPEG(t *testing.T) {
	img := testImage()

	low, err := EncodeJPEG(img, 0.1)
	if err != nil {
		t.Fatalf("EncodeJPEG() error = %v", err)
	}
	high, err := EncodeJPEG(img, DeepQuality)
	if err != nil {
		t.Fatalf("EncodeJPEG() error = %v", err)
	}
	if len(low) >= len(high) {
		t.Errorf("low quality size %d >= high quality size %d", len(low), len(high))
	}

	decoded, err := jpeg.Decode(bytes.NewReader(high))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Bounds() != img.Bounds() {
		t.Errorf("bounds = %v, want %v", decoded.Bounds(), img.Bounds())
	}
}

func TestFrameChunk(t *testing.T) {
	chunk, err := FrameChunk(testImage(), FrameQuality)
	if err != nil {
		t.Fatalf("FrameChunk() error = %v", err)
	}
	if chunk.MIMEType != "image/jpeg" {
		t.Errorf("MIMEType = %q", chunk.MIMEType)
	}
	raw, err := base64.StdEncoding.DecodeString(chunk.Data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.HasPrefix(raw, []byte{0xff, 0xd8}) {
		t.Error("payload is not a JPEG")
	}
}

type fakeSender struct {
	mu      sync.Mutex
	got     []livesession.Chunk
	err     error
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeSender) SendRealtimeInput(ctx context.Context, c livesession.Chunk) error {
	if f.entered != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.MIMEType == "panic" {
		panic("boom")
	}
	f.got = append(f.got, c)
	return f.err
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestOutbox_SendsInOrder(t *testing.T) {
	sender := &fakeSender{}
	o := StartOutbox(context.Background(), sender, 8)
	defer o.Close()

	for _, d := range []string{"a", "b", "c"} {
		if !o.Push(livesession.Chunk{MIMEType: ImageMIMEType, Data: d}) {
			t.Fatalf("Push(%s) rejected", d)
		}
	}
	waitFor(t, func() bool { return o.Stats().Sent == 3 })

	sender.mu.Lock()
	defer sender.mu.Unlock()
	for i, want := range []string{"a", "b", "c"} {
		if sender.got[i].Data != want {
			t.Errorf("got[%d] = %q, want %q", i, sender.got[i].Data, want)
		}
	}
}

func TestOutbox_DropsWhenFull(t *testing.T) {
	sender := &fakeSender{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	o := StartOutbox(context.Background(), sender, 2)

	// First chunk occupies the sender; two more fill the queue.
	o.Push(livesession.Chunk{Data: "1"})
	<-sender.entered
	o.Push(livesession.Chunk{Data: "2"})
	o.Push(livesession.Chunk{Data: "3"})

	if o.Push(livesession.Chunk{Data: "4"}) {
		t.Error("Push into full queue accepted")
	}
	if got := o.Stats().Dropped; got != 1 {
		t.Errorf("Dropped = %d, want 1", got)
	}

	close(sender.block)
	waitFor(t, func() bool { return o.Stats().Sent == 3 })
	o.Close()
}

func TestOutbox_CountsFailures(t *testing.T) {
	sender := &fakeSender{err: errors.New("closed")}
	o := StartOutbox(context.Background(), sender, 4)
	defer o.Close()

	o.Push(livesession.Chunk{Data: "x"})
	o.Push(livesession.Chunk{MIMEType: "panic"})
	waitFor(t, func() bool { return o.Stats().Failed == 2 })

	if got := o.Stats().Sent; got != 0 {
		t.Errorf("Sent = %d, want 0", got)
	}
}

func TestOutbox_CloseStopsWorker(t *testing.T) {
	sender := &fakeSender{block: make(chan struct{})}
	o := StartOutbox(context.Background(), sender, 4)
	o.Push(livesession.Chunk{})

	done := make(chan struct{})
	go func() {
		o.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return while a send was blocked")
	}
}

func TestSampler(t *testing.T) {
	var ticks atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		Sampler{Interval: 5 * time.Millisecond, Tick: func(context.Context) { ticks.Add(1) }}.Run(ctx)
		close(done)
	}()

	waitFor(t, func() bool { return ticks.Load() >= 3 })
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	n := ticks.Load()
	time.Sleep(20 * time.Millisecond)
	if ticks.Load() != n {
		t.Error("ticks after cancel")
	}
}

func TestGuard(t *testing.T) {
	var g Guard

	if !g.TryAcquire() {
		t.Fatal("first TryAcquire = false")
	}
	if !g.Busy() {
		t.Error("Busy() = false while held")
	}
	if g.TryAcquire() {
		t.Error("second TryAcquire = true while held")
	}
	if g.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", g.Dropped())
	}

	g.Release()
	if !g.TryAcquire() {
		t.Error("TryAcquire after Release = false")
	}
}

func TestGuard_Concurrent(t *testing.T) {
	var g Guard
	var holders, peak atomic.Int32
	var wg sync.WaitGroup

	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !g.TryAcquire() {
				return
			}
			n := holders.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			holders.Add(-1)
			g.Release()
		}()
	}
	wg.Wait()

	if peak.Load() != 1 {
		t.Errorf("peak concurrent holders = %d, want 1", peak.Load())
	}
}

func TestDeepInstruction(t *testing.T) {
	for _, c := range types.Categories {
		if !strings.Contains(DeepInstruction, string(c)) {
			t.Errorf("instruction missing category %s", c)
		}
		for _, s := range types.AllowedStatuses(c) {
			if !strings.Contains(DeepInstruction, `"`+string(s)+`"`) {
				t.Errorf("instruction missing status %q", s)
			}
		}
	}
}
