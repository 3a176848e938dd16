// Package replay provides a capture device that serves still images from a
// directory and synthetic microphone audio at real-time pace.
package replay

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"go.aimuz.me/ergowatch/capture"
)

// Acquirer opens replay devices.
type Acquirer struct {
	// Dir holds .jpg/.jpeg/.png frames served in name order. Empty serves a
	// plain grey frame.
	Dir string
	// ToneHz is the frequency of the synthetic audio; zero is silence.
	ToneHz float64
}

// Acquire loads the frames and returns a device.
func (a *Acquirer) Acquire(ctx context.Context, c capture.Constraints) (capture.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.SampleRate <= 0 || c.BlockSize <= 0 {
		return nil, fmt.Errorf("invalid audio constraints: rate=%d block=%d", c.SampleRate, c.BlockSize)
	}

	var frames []image.Image
	if a.Dir == "" {
		frames = []image.Image{greyFrame(c.Width, c.Height)}
	} else {
		var err error
		if frames, err = loadFrames(a.Dir); err != nil {
			return nil, err
		}
	}

	slog.Info("replay device acquired", "frames", len(frames), "dir", a.Dir)
	return &Device{
		frames:      frames,
		constraints: c,
		toneHz:      a.ToneHz,
		stop:        make(chan struct{}),
	}, nil
}

func greyFrame(w, h int) image.Image {
	if w <= 0 || h <= 0 {
		w, h = 1280, 720
	}
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	return img
}

func loadFrames(dir string) ([]image.Image, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frame dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			if !e.IsDir() {
				names = append(names, e.Name())
			}
		}
	}
	slices.Sort(names)
	if len(names) == 0 {
		return nil, fmt.Errorf("no frames in %s", dir)
	}

	frames := make([]image.Image, 0, len(names))
	for _, name := range names {
		img, err := decodeFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		frames = append(frames, img)
	}
	return frames, nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// Device serves frames round-robin and paces audio blocks by a ticker.
type Device struct {
	frames      []image.Image
	constraints capture.Constraints
	toneHz      float64

	mu      sync.Mutex
	next    int
	running bool
	closed  bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// Frame returns the next frame in order, wrapping around.
func (d *Device) Frame() (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, capture.ErrClosed
	}
	img := d.frames[d.next%len(d.frames)]
	d.next++
	return img, nil
}

// StartAudio delivers one block every BlockSize/SampleRate seconds.
func (d *Device) StartAudio(h capture.AudioHandler) error {
	if h == nil {
		return fmt.Errorf("nil audio handler")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return capture.ErrClosed
	}
	if d.running {
		return capture.ErrRunning
	}
	d.running = true

	d.wg.Add(1)
	go d.audioLoop(h)
	return nil
}

func (d *Device) audioLoop(h capture.AudioHandler) {
	defer d.wg.Done()

	c := d.constraints
	interval := time.Duration(c.BlockSize) * time.Second / time.Duration(c.SampleRate)
	t := time.NewTicker(interval)
	defer t.Stop()

	block := make([]float32, c.BlockSize)
	var pos int
	for {
		select {
		case <-d.stop:
			return
		case <-t.C:
			for i := range block {
				block[i] = d.sample(pos + i)
			}
			pos += len(block)
			h(block)
		}
	}
}

func (d *Device) sample(n int) float32 {
	if d.toneHz == 0 {
		return 0
	}
	t := float64(n) / float64(d.constraints.SampleRate)
	return float32(0.1 * math.Sin(2*math.Pi*d.toneHz*t))
}

// Close stops audio delivery and waits for the audio goroutine.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.stop)
	d.mu.Unlock()

	d.wg.Wait()
	return nil
}

var (
	_ capture.Acquirer = (*Acquirer)(nil)
	_ capture.Device   = (*Device)(nil)
)
