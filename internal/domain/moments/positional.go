package moments

import (
	"fmt"
	"time"

	"github.com/ovoronkov/reelcut/internal/types"
)

// PositionalWindows spreads count windows of length preset evenly across the
// source. It is the last-resort selection when neither transcript nor audio
// is usable, and the pool the backfill draws from. The very start is skipped
// since it tends to be intro material.
func PositionalWindows(sourceDur, preset time.Duration, count int) []types.CandidateMoment {
	if sourceDur <= 0 || count <= 0 {
		return nil
	}
	if sourceDur <= preset {
		return []types.CandidateMoment{{
			Start: 0, End: sourceDur, Score: 1.0, Reason: "Full video (short)",
		}}
	}

	available := sourceDur - preset
	step := available / time.Duration(count+1)
	out := make([]types.CandidateMoment, 0, count)
	for i := 0; i < count; i++ {
		start := step * time.Duration(i+1)
		if start+preset > sourceDur {
			start = sourceDur - preset
		}
		out = append(out, types.CandidateMoment{
			Start:  start,
			End:    start + preset,
			Score:  0.8,
			Reason: fmt.Sprintf("Heuristic segment %d (fallback)", i+1),
		})
	}
	return out
}
