package usecase

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ovoronkov/reelcut/internal/domain/moments"
	"github.com/ovoronkov/reelcut/internal/domain/translit"
	"github.com/ovoronkov/reelcut/internal/metrics"
	"github.com/ovoronkov/reelcut/internal/types"
)

// Run executes one processing job end to end and returns a partial-success
// result: every selected range either shows up as a rendered clip or as a
// failure entry. Run itself errors only when the job cannot produce anything
// at all (bad style, unreachable source, failed selection).
func (u *Usecase) Run(ctx context.Context, in Input) (types.JobResult, error) {
	// Style resolution happens before any file is touched so an invalid
	// style never leaves partial state behind.
	style, err := u.d.Styles.Resolve(in.Style)
	if err != nil {
		return types.JobResult{}, err
	}

	u.active.Add(1)
	defer u.active.Add(-1)

	count := in.Count
	if count <= 0 {
		count = defaultClipCount
	}
	preset := in.Preset
	if preset <= 0 {
		preset = u.d.Config.ClipPreset
	}
	watermark := in.Watermark
	if watermark == "" {
		watermark = u.d.Config.WatermarkText
	}

	sourceID := newSourceID()
	log := u.log.With().Str("source_id", sourceID).Logger()
	log.Info().Str("input", in.Source).Int("count", count).Dur("preset", preset).Msg("job started")

	workDir := filepath.Join(u.d.Config.WorkDir, sourceID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return types.JobResult{}, fmt.Errorf("creating work dir: %w", err)
	}

	src, err := u.acquire(ctx, in.Source, workDir, sourceID)
	if err != nil {
		metrics.JobsTotal.WithLabelValues("failed").Inc()
		return types.JobResult{}, err
	}
	log.Info().
		Dur("duration", src.Duration).
		Int("width", src.Width).Int("height", src.Height).
		Msg("source ready")

	if err := u.d.Registry.RegisterSource(ctx, src, in.Source); err != nil {
		metrics.JobsTotal.WithLabelValues("failed").Inc()
		return types.JobResult{}, fmt.Errorf("recording source: %w", err)
	}

	tr, trErr := u.transcribe(ctx, src, workDir, in, log)
	if trErr == nil {
		if err := u.d.Registry.SaveTranscript(ctx, src.ID, tr); err != nil {
			metrics.JobsTotal.WithLabelValues("failed").Inc()
			return types.JobResult{}, fmt.Errorf("saving transcript: %w", err)
		}
	} else if in.Mode == moments.ModeText {
		metrics.JobsTotal.WithLabelValues("failed").Inc()
		return types.JobResult{}, trErr
	}

	ranges, err := u.selectRanges(ctx, src, tr, in, count, preset)
	if err != nil {
		metrics.JobsTotal.WithLabelValues("failed").Inc()
		return types.JobResult{}, fmt.Errorf("selecting moments: %w", err)
	}
	log.Info().Int("selected", len(ranges)).Msg("moments selected")

	jb := &job{
		src:       src,
		tr:        tr,
		workDir:   workDir,
		style:     style,
		styleSpec: in.Style,
		watermark: watermark,
		log:       log,
	}
	res := u.renderAll(ctx, jb, ranges)

	if err := u.d.Registry.RecordJob(ctx, in.Source, res); err != nil {
		log.Warn().Err(err).Msg("recording job result failed")
	}

	outcome := jobOutcome(res)
	metrics.JobsTotal.WithLabelValues(outcome).Inc()
	log.Info().
		Int("clips", len(res.Clips)).
		Int("failures", len(res.Failures)).
		Str("outcome", outcome).
		Msg("job finished")
	return res, nil
}

// newSourceID returns a short random identifier. Eight hex chars keep clip
// keys and file names readable; the registry upserts on collision anyway.
func newSourceID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// acquire resolves the input into a probed local file inside workDir. The
// original upload or download is never mutated afterwards.
func (u *Usecase) acquire(ctx context.Context, input, workDir, id string) (types.MediaSource, error) {
	done := stageTimer("acquire")
	defer done()

	var local string
	switch {
	case strings.HasPrefix(input, "http://"), strings.HasPrefix(input, "https://"):
		if u.d.Downloader == nil {
			return types.MediaSource{}, fmt.Errorf("%w: %q is a URL and no downloader is configured", types.ErrSourceUnavailable, input)
		}
		path, err := u.d.Downloader.Fetch(ctx, input, workDir, id)
		if err != nil {
			return types.MediaSource{}, fmt.Errorf("%w: fetching %q: %v", types.ErrSourceUnavailable, input, err)
		}
		local = path
	default:
		st, err := os.Stat(input)
		if err != nil {
			return types.MediaSource{}, fmt.Errorf("%w: %v", types.ErrSourceUnavailable, err)
		}
		if st.IsDir() || st.Size() == 0 {
			return types.MediaSource{}, fmt.Errorf("%w: %q is not a usable video file", types.ErrSourceUnavailable, input)
		}
		dst := filepath.Join(workDir, "source"+filepath.Ext(input))
		if err := copyFile(input, dst); err != nil {
			return types.MediaSource{}, fmt.Errorf("staging source: %w", err)
		}
		local = dst
	}

	info, err := u.d.Video.Probe(ctx, local)
	if err != nil {
		return types.MediaSource{}, fmt.Errorf("%w: probing %q: %v", types.ErrSourceUnavailable, local, err)
	}
	if info.Duration <= 0 {
		return types.MediaSource{}, fmt.Errorf("%w: %q reports zero duration", types.ErrSourceUnavailable, local)
	}
	return types.MediaSource{
		ID:       id,
		Path:     local,
		Duration: info.Duration,
		Width:    info.Width,
		Height:   info.Height,
		FPS:      info.FPS,
	}, nil
}

// transcribe extracts audio and runs the transcriber. A failure is reported
// as ErrTranscriptionUnavailable and the job keeps going on the energy path;
// captions are simply absent then.
func (u *Usecase) transcribe(ctx context.Context, src types.MediaSource, workDir string, in Input, log zerolog.Logger) (types.Transcript, error) {
	if u.d.Transcriber == nil {
		return types.Transcript{}, fmt.Errorf("%w: no transcriber configured", types.ErrTranscriptionUnavailable)
	}

	done := stageTimer("transcribe")
	defer done()

	wav := filepath.Join(workDir, "audio.wav")
	if err := u.d.Video.ExtractAudioMono16k(ctx, src.Path, wav); err != nil {
		log.Warn().Err(err).Msg("audio extraction failed, selection falls back to audio energy")
		return types.Transcript{}, fmt.Errorf("%w: extracting audio: %v", types.ErrTranscriptionUnavailable, err)
	}

	tr, err := u.d.Transcriber.Transcribe(ctx, wav, in.Language)
	if err != nil {
		log.Warn().Err(err).Msg("transcription failed, selection falls back to audio energy")
		return types.Transcript{}, fmt.Errorf("%w: %v", types.ErrTranscriptionUnavailable, err)
	}
	log.Info().Str("language", tr.Language).Int("tokens", len(tr.Tokens)).Msg("transcription done")

	if in.Romanize || teluguLanguage(tr.Language) {
		tr = translit.TranscriptToRoman(tr)
	}
	return tr, nil
}

func (u *Usecase) selectRanges(ctx context.Context, src types.MediaSource, tr types.Transcript, in Input, count int, preset time.Duration) ([]types.SelectedRange, error) {
	done := stageTimer("select")
	defer done()

	var sub *moments.SubRange
	if in.SubStart > 0 || in.SubEnd > 0 {
		sub = &moments.SubRange{Start: in.SubStart, End: in.SubEnd}
	}

	sel := moments.NewSelector(selectorConfig(u.d.Config), u.d.Scorer, u.log)
	cands, err := sel.Select(ctx, moments.Request{
		Transcript:     tr,
		SourceDuration: src.Duration,
		Count:          count,
		Preset:         preset,
		Mode:           in.Mode,
		Sub:            sub,
		PCM: func(ctx context.Context, start, dur time.Duration) ([]byte, error) {
			return u.d.Video.ExtractPCM(ctx, src.Path, start, dur)
		},
	})
	if err != nil {
		return nil, err
	}

	ranges := make([]types.SelectedRange, len(cands))
	for i, c := range cands {
		ranges[i] = types.SelectedRange{
			Index:  i + 1,
			Start:  c.Start,
			End:    c.End,
			Score:  c.Score,
			Reason: c.Reason,
		}
	}
	return ranges, nil
}

// renderAll fans the ranges out over a bounded worker pool. Results land in
// a slice indexed by selection position, so output order always follows
// selection order no matter which worker finishes first.
func (u *Usecase) renderAll(ctx context.Context, jb *job, ranges []types.SelectedRange) types.JobResult {
	conc := u.d.Config.RenderConcurrency
	if conc <= 0 {
		conc = 1
	}

	type outcome struct {
		clip types.Clip
		err  error
	}
	outcomes := make([]outcome, len(ranges))

	sem := make(chan struct{}, conc)
	var wg sync.WaitGroup
	for i, rng := range ranges {
		wg.Add(1)
		go func(i int, rng types.SelectedRange) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			clip, err := u.renderClip(ctx, jb, rng)
			outcomes[i] = outcome{clip: clip, err: err}
		}(i, rng)
	}
	wg.Wait()

	res := types.JobResult{SourceID: jb.src.ID}
	for i, oc := range outcomes {
		if oc.err != nil {
			rng := ranges[i]
			jb.log.Error().Err(oc.err).Int("index", rng.Index).Msg("clip render failed")
			res.Failures = append(res.Failures, types.ClipFailure{
				Index:    rng.Index,
				StartSec: rng.Start.Seconds(),
				EndSec:   rng.End.Seconds(),
				Reason:   oc.err.Error(),
			})
			continue
		}
		res.Clips = append(res.Clips, oc.clip)
	}
	return res
}

func jobOutcome(res types.JobResult) string {
	switch {
	case len(res.Clips) == 0:
		return "failed"
	case len(res.Failures) > 0:
		return "partial"
	default:
		return "completed"
	}
}

func stageTimer(name string) func() {
	start := time.Now()
	return func() {
		metrics.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".source-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
