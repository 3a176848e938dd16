package openai

import (
	"encoding/binary"
	"time"
)

// The capture side produces 16 kHz mono PCM16; the Opus track runs at 48 kHz
// stereo in 20 ms frames.
const (
	inputRate   = 16000
	outputRate  = 48000
	channels    = 2
	upsample    = outputRate / inputRate
	frameLength = 20 * time.Millisecond

	// Interleaved samples in one Opus frame.
	frameSamples  = outputRate / 1000 * int(frameLength/time.Millisecond) * channels
	maxOpusPacket = 1275
)

// decodePCM16 converts little-endian signed 16-bit samples to floats in [-1, 1).
func decodePCM16(b []byte) []float32 {
	out := make([]float32, len(b)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(b[i*2:]))) / 32768
	}
	return out
}

// framer upsamples mono input to interleaved 48 kHz stereo and cuts it into
// whole Opus frames, carrying the remainder to the next push.
type framer struct {
	pending []float32
	last    float32
}

// push appends mono samples and returns the complete frames now available.
func (f *framer) push(mono []float32) [][]float32 {
	for _, s := range mono {
		// Linear interpolation from the previous sample.
		for k := 1; k <= upsample; k++ {
			v := f.last + (s-f.last)*float32(k)/upsample
			f.pending = append(f.pending, v, v)
		}
		f.last = s
	}

	n := len(f.pending) / frameSamples
	if n == 0 {
		return nil
	}
	frames := make([][]float32, n)
	for i := range frames {
		frame := make([]float32, frameSamples)
		copy(frame, f.pending[i*frameSamples:])
		frames[i] = frame
	}
	rest := copy(f.pending, f.pending[n*frameSamples:])
	f.pending = f.pending[:rest]
	return frames
}
