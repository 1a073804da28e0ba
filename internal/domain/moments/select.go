package moments

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/ovoronkov/reelcut/internal/ports"
	"github.com/ovoronkov/reelcut/internal/types"
)

// Mode picks the scoring strategy.
type Mode string

const (
	// ModeAuto uses text scoring when a transcript exists, degrading to audio
	// energy and then to positional spacing.
	ModeAuto Mode = "auto"
	// ModeText requires a transcript and fails with ErrNoTranscript without one.
	ModeText Mode = "text"
	// ModeEnergy skips text scoring entirely.
	ModeEnergy Mode = "energy"
)

// PCMFunc lazily pulls mono 16 kHz s16le audio covering [start, start+dur)
// of the source timeline. The selector only calls it when the energy path
// actually runs.
type PCMFunc func(ctx context.Context, start, dur time.Duration) ([]byte, error)

// Config carries the selection tunables. All of them have documented
// defaults in the top level configuration.
type Config struct {
	StrideFraction      float64
	OverlapTolerance    time.Duration
	BackfillMinStartGap time.Duration
	HeuristicWeight     float64
	RelevanceWeight     float64
	Weights             ScoreWeights
}

// Request is one selection call.
type Request struct {
	Transcript     types.Transcript
	SourceDuration time.Duration
	Count          int
	Preset         time.Duration
	Mode           Mode
	Sub            *SubRange
	PCM            PCMFunc
}

type Selector struct {
	cfg    Config
	scorer ports.RelevanceScorer
	log    zerolog.Logger
}

// NewSelector builds a selector. scorer may be nil; selection then rests on
// the lexical heuristic alone.
func NewSelector(cfg Config, scorer ports.RelevanceScorer, log zerolog.Logger) *Selector {
	return &Selector{cfg: cfg, scorer: scorer, log: log}
}

// Select returns at most req.Count candidate moments. Candidates never
// overlap beyond the configured tolerance and never get padded with
// duplicates: when fewer survive, fewer come back. Result order is score
// descending (earlier start wins ties) unless synthetic backfill windows were
// mixed in, in which case the accepted set is re-sorted by start.
func (s *Selector) Select(ctx context.Context, req Request) ([]types.CandidateMoment, error) {
	if req.Count <= 0 {
		return nil, nil
	}
	mode := req.Mode
	if mode == "" {
		mode = ModeAuto
	}

	lo, hi := effectiveRange(req.SourceDuration, req.Sub)
	if hi <= lo {
		return nil, nil
	}
	if hi-lo <= req.Preset {
		reason := "Full video (short)"
		if req.Sub != nil {
			reason = "Requested range"
		}
		return []types.CandidateMoment{{Start: lo, End: hi, Score: 1.0, Reason: reason}}, nil
	}

	if mode == ModeText && req.Transcript.Empty() {
		return nil, types.ErrNoTranscript
	}

	var cands []types.CandidateMoment
	var err error
	switch {
	case mode != ModeEnergy && !req.Transcript.Empty():
		cands, err = s.textCandidates(ctx, req)
	default:
		cands, err = s.energyCandidates(ctx, req, lo, hi)
	}
	if err != nil {
		return nil, err
	}

	backfilled := false
	if len(cands) == 0 {
		s.log.Warn().Msg("no scored candidates, spacing windows positionally")
		cands = shiftMoments(PositionalWindows(hi-lo, req.Preset, req.Count), lo)
		backfilled = true
	}

	picked, err := s.pick(ctx, cands, req.Count)
	if err != nil {
		return nil, err
	}

	if len(picked) < req.Count {
		picked = s.backfill(picked, req.Count, req.Preset, lo, hi)
		backfilled = true
	}
	if backfilled {
		sort.Slice(picked, func(i, j int) bool { return picked[i].Start < picked[j].Start })
	}
	return picked, nil
}

func (s *Selector) textCandidates(ctx context.Context, req Request) ([]types.CandidateMoment, error) {
	windows := BuildWindows(req.Transcript, req.SourceDuration, req.Preset, s.cfg.StrideFraction, req.Sub)
	heur := make([]float64, len(windows))
	for i, w := range windows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		heur[i] = ScoreText(w.Text, s.cfg.Weights)
	}

	rel := s.relevance(ctx, windows)

	out := make([]types.CandidateMoment, 0, len(windows))
	for i, w := range windows {
		cm := types.CandidateMoment{Start: w.Start, End: w.End}
		if rel != nil {
			cm.Score = s.cfg.HeuristicWeight*(heur[i]/10) + s.cfg.RelevanceWeight*rel[i].Score
			cm.Reason = rel[i].Reason
		} else {
			cm.Score = heur[i] / 10
		}
		if cm.Reason == "" {
			cm.Reason = "Heuristic text signals"
		}
		out = append(out, cm)
	}
	return out, nil
}

// relevance asks the external scorer for its take on every window. Any
// failure degrades to heuristic-only scoring, never to a failed selection.
func (s *Selector) relevance(ctx context.Context, windows []Window) []ports.WindowRelevance {
	if s.scorer == nil || len(windows) == 0 {
		return nil
	}
	sw := make([]ports.ScoredWindow, len(windows))
	for i, w := range windows {
		sw[i] = ports.ScoredWindow{Start: w.Start, End: w.End, Text: w.Text}
	}
	rel, err := s.scorer.ScoreWindows(ctx, sw)
	if err != nil {
		s.log.Warn().Err(err).Msg("relevance scorer failed, falling back to heuristic")
		return nil
	}
	if len(rel) != len(windows) {
		s.log.Warn().Int("want", len(windows)).Int("got", len(rel)).
			Msg("relevance scorer returned wrong window count, ignoring")
		return nil
	}
	return rel
}

func (s *Selector) energyCandidates(ctx context.Context, req Request, lo, hi time.Duration) ([]types.CandidateMoment, error) {
	if req.PCM == nil {
		return nil, nil
	}
	pcm, err := req.PCM(ctx, lo, hi-lo)
	if err != nil {
		s.log.Warn().Err(err).Msg("audio extraction for energy scoring failed")
		return nil, nil
	}
	windows := BuildWindows(req.Transcript, req.SourceDuration, req.Preset, s.cfg.StrideFraction, req.Sub)
	scores := EnergyScores(pcm, lo, windows)
	out := make([]types.CandidateMoment, len(windows))
	for i, w := range windows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = types.CandidateMoment{Start: w.Start, End: w.End, Score: scores[i], Reason: "High audio energy"}
	}
	return out, nil
}

// pick sorts by score (earlier start wins ties) and greedily accepts windows
// that stay within the overlap tolerance of everything already accepted.
func (s *Selector) pick(ctx context.Context, cands []types.CandidateMoment, count int) ([]types.CandidateMoment, error) {
	sorted := make([]types.CandidateMoment, len(cands))
	copy(sorted, cands)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].Start < sorted[j].Start
	})

	var picked []types.CandidateMoment
	for _, c := range sorted {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(picked) >= count {
			break
		}
		if s.fits(c, picked) {
			picked = append(picked, c)
		}
	}
	return picked, nil
}

func (s *Selector) fits(c types.CandidateMoment, accepted []types.CandidateMoment) bool {
	for _, a := range accepted {
		if overlap(c, a) > s.cfg.OverlapTolerance {
			return false
		}
	}
	return true
}

func overlap(a, b types.CandidateMoment) time.Duration {
	lo := a.Start
	if b.Start > lo {
		lo = b.Start
	}
	hi := a.End
	if b.End < hi {
		hi = b.End
	}
	if hi <= lo {
		return 0
	}
	return hi - lo
}

// backfill tops up a short result from evenly spaced windows. A synthetic
// window must start at least BackfillMinStartGap away from every accepted
// start and still respect the overlap tolerance.
func (s *Selector) backfill(picked []types.CandidateMoment, count int, preset, lo, hi time.Duration) []types.CandidateMoment {
	pool := shiftMoments(PositionalWindows(hi-lo, preset, 2*count), lo)
	for _, pm := range pool {
		if len(picked) >= count {
			break
		}
		if !s.startsApart(pm, picked) || !s.fits(pm, picked) {
			continue
		}
		pm.Reason = "Heuristic backfill"
		picked = append(picked, pm)
	}
	return picked
}

func (s *Selector) startsApart(c types.CandidateMoment, accepted []types.CandidateMoment) bool {
	for _, a := range accepted {
		gap := c.Start - a.Start
		if gap < 0 {
			gap = -gap
		}
		if gap < s.cfg.BackfillMinStartGap {
			return false
		}
	}
	return true
}

func shiftMoments(ms []types.CandidateMoment, by time.Duration) []types.CandidateMoment {
	for i := range ms {
		ms[i].Start += by
		ms[i].End += by
	}
	return ms
}
