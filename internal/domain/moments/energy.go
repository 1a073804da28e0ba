package moments

import (
	"encoding/binary"
	"math"
	"time"
)

const (
	pcmSampleRate = 16000
	// 20ms frames give enough resolution to catch laughter bursts and
	// emphasis without drowning in per-sample noise.
	energyFrameSamples = pcmSampleRate / 50
)

// EnergyScores rates each window by the variance of its short-frame RMS
// loudness, normalized to [0,1] across the windows. Flat audio (silence,
// steady tone) scores near zero; bursts and swings score high. pcm is mono
// 16 kHz s16le starting at pcmStart on the source timeline.
func EnergyScores(pcm []byte, pcmStart time.Duration, windows []Window) []float64 {
	samples := decodeS16LE(pcm)
	raw := make([]float64, len(windows))
	for i, w := range windows {
		lo := sampleIndex(w.Start - pcmStart)
		hi := sampleIndex(w.End - pcmStart)
		if lo < 0 {
			lo = 0
		}
		if hi > len(samples) {
			hi = len(samples)
		}
		if hi-lo < energyFrameSamples {
			continue
		}
		raw[i] = rmsVariance(samples[lo:hi])
	}

	max := 0.0
	for _, v := range raw {
		if v > max {
			max = v
		}
	}
	if max == 0 {
		return raw
	}
	for i := range raw {
		raw[i] /= max
	}
	return raw
}

func sampleIndex(offset time.Duration) int {
	return int(offset.Seconds() * pcmSampleRate)
}

func decodeS16LE(pcm []byte) []float64 {
	n := len(pcm) / 2
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(pcm[2*i:]))
		out[i] = float64(s) / 32768.0
	}
	return out
}

func rmsVariance(samples []float64) float64 {
	var frames []float64
	for off := 0; off+energyFrameSamples <= len(samples); off += energyFrameSamples {
		var sum float64
		for _, s := range samples[off : off+energyFrameSamples] {
			sum += s * s
		}
		frames = append(frames, math.Sqrt(sum/float64(energyFrameSamples)))
	}
	if len(frames) < 2 {
		return 0
	}
	var mean float64
	for _, f := range frames {
		mean += f
	}
	mean /= float64(len(frames))
	var variance float64
	for _, f := range frames {
		d := f - mean
		variance += d * d
	}
	return variance / float64(len(frames))
}
