package moments

import (
	"strings"
	"time"

	"github.com/ovoronkov/reelcut/internal/types"
)

// SubRange restricts candidate generation to a slice of the source timeline.
type SubRange struct {
	Start time.Duration
	End   time.Duration
}

// Window is a fixed-length candidate slice of the timeline plus the
// transcript text spoken inside it.
type Window struct {
	Start time.Duration
	End   time.Duration
	Text  string
	Words int
}

// DurationBounds derives the acceptable clip length range from the requested
// preset: half the preset up to a quarter over it.
func DurationBounds(preset time.Duration) (min, max time.Duration) {
	return preset / 2, preset + preset/4
}

// BuildWindows slides fixed-size windows of length preset across the
// transcript with the given stride fraction. A sub-range shorter than one
// preset collapses to a single window spanning it. A trailing window is
// appended when the stride would otherwise leave the tail uncovered.
func BuildWindows(tr types.Transcript, sourceDur, preset time.Duration, strideFrac float64, sub *SubRange) []Window {
	lo, hi := effectiveRange(sourceDur, sub)
	if hi <= lo || preset <= 0 {
		return nil
	}
	if hi-lo <= preset {
		return []Window{windowOver(tr, lo, hi)}
	}

	stride := time.Duration(float64(preset) * strideFrac)
	if stride <= 0 {
		stride = preset
	}
	var out []Window
	for start := lo; start+preset <= hi; start += stride {
		out = append(out, windowOver(tr, start, start+preset))
	}
	// Late parts of the timeline still deserve a candidate even when the
	// stride does not land exactly on the tail.
	if last := out[len(out)-1]; last.End < hi {
		out = append(out, windowOver(tr, hi-preset, hi))
	}
	return out
}

func effectiveRange(sourceDur time.Duration, sub *SubRange) (time.Duration, time.Duration) {
	lo, hi := time.Duration(0), sourceDur
	if sub != nil {
		if sub.Start > lo {
			lo = sub.Start
		}
		if sub.End > 0 && sub.End < hi {
			hi = sub.End
		}
	}
	return lo, hi
}

func windowOver(tr types.Transcript, start, end time.Duration) Window {
	w := Window{Start: start, End: end}
	var parts []string
	for _, tok := range tr.Tokens {
		ts := dur(tok.Start)
		te := dur(tok.End)
		if te <= start || ts >= end {
			continue
		}
		text := strings.TrimSpace(tok.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)
		w.Words++
	}
	w.Text = strings.Join(parts, " ")
	return w
}

func dur(sec float64) time.Duration { return time.Duration(sec * float64(time.Second)) }
