// Package capture defines the media capture collaborator: a camera frame
// source plus a microphone sample callback.
package capture

import (
	"context"
	"errors"
	"image"
)

var (
	// ErrUnsupported is returned when no capture backend exists on this platform.
	ErrUnsupported = errors.New("media capture not supported")
	// ErrRunning is returned when audio capture is already started.
	ErrRunning = errors.New("audio capture already running")
	// ErrClosed is returned by a device after Close.
	ErrClosed = errors.New("device closed")
)

// Constraints are the fixed capture parameters.
type Constraints struct {
	Width      int
	Height     int
	SampleRate int // Hz, mono
	BlockSize  int // Samples per audio callback
}

// DefaultConstraints returns 1280x720 video and 16 kHz mono audio delivered
// in blocks of 4096 samples.
func DefaultConstraints() Constraints {
	return Constraints{
		Width:      1280,
		Height:     720,
		SampleRate: 16000,
		BlockSize:  4096,
	}
}

// AudioHandler receives float32 samples in the range [-1, 1]. The slice is
// only valid for the duration of the call.
type AudioHandler func(samples []float32)

// Device is an acquired camera and microphone pair.
type Device interface {
	// Frame returns the current video frame.
	Frame() (image.Image, error)
	// StartAudio begins delivering sample blocks to h.
	StartAudio(h AudioHandler) error
	// Close releases the device. It is safe to call more than once.
	Close() error
}

// Acquirer obtains capture devices.
type Acquirer interface {
	Acquire(ctx context.Context, c Constraints) (Device, error)
}

// AcquirerFunc adapts a function to Acquirer.
type AcquirerFunc func(ctx context.Context, c Constraints) (Device, error)

func (f AcquirerFunc) Acquire(ctx context.Context, c Constraints) (Device, error) {
	return f(ctx, c)
}

// Unsupported is an Acquirer for platforms without a capture backend.
var Unsupported Acquirer = AcquirerFunc(func(context.Context, Constraints) (Device, error) {
	return nil, ErrUnsupported
})
