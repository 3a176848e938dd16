// Package pipeline turns captured media into chunks for the streaming
// collaborator and paces the periodic producers.
package pipeline

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"image"
	"image/jpeg"
	"math"
	"time"

	"go.aimuz.me/ergowatch/livesession"
)

// Producer cadences and encodings.
const (
	FrameInterval = 500 * time.Millisecond
	DeepInterval  = 10 * time.Second

	FrameQuality = 0.6
	DeepQuality  = 0.8

	AudioSampleRate = 16000
	AudioMIMEType   = "audio/pcm;rate=16000"
	ImageMIMEType   = "image/jpeg"
)

// EncodePCM16 converts float samples to little-endian signed 16-bit PCM by
// scaling with 32768. Samples are not clamped: 1.0 and anything outside
// [-1, 1) wraps around.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int16(int64(float64(s) * 32768))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// AudioChunk encodes one capture block as a 16 kHz PCM media chunk.
func AudioChunk(samples []float32) livesession.Chunk {
	return livesession.Chunk{
		MIMEType: AudioMIMEType,
		Data:     base64.StdEncoding.EncodeToString(EncodePCM16(samples)),
	}
}

// EncodeJPEG compresses img at quality in [0, 1].
func EncodeJPEG(img image.Image, quality float64) ([]byte, error) {
	q := int(math.Round(quality * 100))
	q = max(1, min(q, 100))

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// FrameChunk compresses img into an image media chunk.
func FrameChunk(img image.Image, quality float64) (livesession.Chunk, error) {
	data, err := EncodeJPEG(img, quality)
	if err != nil {
		return livesession.Chunk{}, err
	}
	return livesession.Chunk{
		MIMEType: ImageMIMEType,
		Data:     base64.StdEncoding.EncodeToString(data),
	}, nil
}
