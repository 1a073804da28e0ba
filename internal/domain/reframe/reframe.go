// Package reframe locates the dominant subject in sampled frames and turns
// its horizontal position into a smoothed crop plan for the 9:16 render.
package reframe

import (
	"time"

	"github.com/ovoronkov/reelcut/internal/ports"
)

// Smoother is an exponential moving average with explicit priming: the first
// observation becomes the value as-is, later ones blend in at alpha.
type Smoother struct {
	alpha  float64
	value  float64
	primed bool
}

func NewSmoother(alpha float64) *Smoother {
	return &Smoother{alpha: alpha}
}

func (s *Smoother) Update(x float64) float64 {
	if !s.primed {
		s.value = x
		s.primed = true
		return s.value
	}
	s.value = s.alpha*x + (1-s.alpha)*s.value
	return s.value
}

// Value returns the current smoothed estimate and whether any observation has
// primed it yet.
func (s *Smoother) Value() (float64, bool) {
	return s.value, s.primed
}

// Config holds the tracking tunables.
type Config struct {
	// Alpha is the EMA blend factor for new observations.
	Alpha float64
	// MotionWeight scales the frame-to-frame difference term against static
	// contrast when locating the subject column.
	MotionWeight float64
}

// Track derives a smoothed subject center (0..1, fraction of frame width)
// for every sampled grayscale frame. Frames are w*h bytes, row-major. A frame
// with no detectable subject reuses the last smoothed center; if nothing was
// ever detected the frame center is assumed.
func Track(frames [][]byte, w, h int, cfg Config) []float64 {
	out := make([]float64, len(frames))
	sm := NewSmoother(cfg.Alpha)
	var prev []byte
	for i, frame := range frames {
		center, ok := locate(frame, prev, w, h, cfg.MotionWeight)
		if ok {
			out[i] = sm.Update(center)
		} else if v, primed := sm.Value(); primed {
			out[i] = v
		} else {
			out[i] = 0.5
		}
		prev = frame
	}
	return out
}

// locate finds the energy centroid across columns. Column energy combines
// squared deviation from the frame mean (contrast) with the squared temporal
// difference against the previous frame (motion). Squaring keeps the uniform
// background from outweighing a compact subject.
func locate(frame, prev []byte, w, h int, motionWeight float64) (float64, bool) {
	if len(frame) < w*h || w < 2 {
		return 0, false
	}

	var mean float64
	for _, p := range frame[:w*h] {
		mean += float64(p)
	}
	mean /= float64(w * h)

	energy := make([]float64, w)
	for y := 0; y < h; y++ {
		row := y * w
		for x := 0; x < w; x++ {
			px := float64(frame[row+x])
			d := px - mean
			e := d * d
			if prev != nil && len(prev) >= w*h {
				m := px - float64(prev[row+x])
				e += motionWeight * m * m
			}
			energy[x] += e
		}
	}

	var sum, weighted float64
	for x, e := range energy {
		sum += e
		weighted += float64(x) * e
	}
	if sum <= 1e-9 {
		return 0, false
	}
	return weighted / sum / float64(w-1), true
}

// Plan converts per-sample centers into crop keyframes for a source scaled
// to the target height. It reports the scaled width and whether a horizontal
// crop is possible at all; sources narrower than the target after scaling
// need the static cover fallback instead.
func Plan(centers []float64, srcW, srcH int, interval time.Duration, targetW, targetH int) ([]ports.CropKeyframe, int, bool) {
	if srcW <= 0 || srcH <= 0 || len(centers) == 0 {
		return nil, 0, false
	}
	scaledW := evenRound(float64(srcW) * float64(targetH) / float64(srcH))
	if scaledW <= targetW {
		return nil, scaledW, false
	}
	maxX := scaledW - targetW
	out := make([]ports.CropKeyframe, len(centers))
	for i, c := range centers {
		x := int(c*float64(scaledW)) - targetW/2
		if x < 0 {
			x = 0
		}
		if x > maxX {
			x = maxX
		}
		out[i] = ports.CropKeyframe{At: time.Duration(i) * interval, X: x}
	}
	return out, scaledW, true
}

// evenRound rounds to the nearest even integer; encoders want even frame
// dimensions.
func evenRound(v float64) int {
	n := int(v + 0.5)
	if n%2 != 0 {
		n++
	}
	return n
}
