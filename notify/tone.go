package notify

import (
	"math"
	"time"
)

// Alert tone parameters: a short rising sine sweep with a fast attack and an
// exponential decay.
const (
	ToneSampleRate = 44100
	toneStartHz    = 440.0
	toneEndHz      = 880.0
	toneDuration   = 300 * time.Millisecond
	toneAttack     = 10 * time.Millisecond
	tonePeakGain   = 0.2
	toneFloorGain  = 0.001
)

// AlertTone synthesizes the alert tone at sampleRate.
func AlertTone(sampleRate int) []float32 {
	n := int(toneDuration.Seconds() * float64(sampleRate))
	out := make([]float32, n)

	total := toneDuration.Seconds()
	attack := toneAttack.Seconds()
	ratio := toneEndHz / toneStartHz

	var phase float64
	for i := range out {
		t := float64(i) / float64(sampleRate)

		// Exponential frequency ramp, integrated sample by sample.
		freq := toneStartHz * math.Pow(ratio, t/total)
		phase += 2 * math.Pi * freq / float64(sampleRate)

		var gain float64
		if t < attack {
			gain = tonePeakGain * t / attack
		} else {
			gain = tonePeakGain * math.Pow(toneFloorGain/tonePeakGain, (t-attack)/(total-attack))
		}
		out[i] = float32(gain * math.Sin(phase))
	}
	return out
}
