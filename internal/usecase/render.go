package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/ovoronkov/reelcut/internal/domain/captions"
	"github.com/ovoronkov/reelcut/internal/domain/reframe"
	"github.com/ovoronkov/reelcut/internal/metrics"
	"github.com/ovoronkov/reelcut/internal/ports"
	"github.com/ovoronkov/reelcut/internal/types"
)

// Output geometry and the sampling raster for subject tracking. Tracking
// runs on tiny grayscale frames; column resolution matters, pixel fidelity
// does not.
const (
	targetWidth  = 1080
	targetHeight = 1920

	sampleWidth  = 160
	sampleHeight = 90
)

// renderClip produces one clip end to end and records render metrics. The
// error, if any, fails only this clip.
func (u *Usecase) renderClip(ctx context.Context, jb *job, rng types.SelectedRange) (types.Clip, error) {
	start := time.Now()
	clip, err := u.renderOne(ctx, jb, rng)
	if err != nil {
		metrics.RendersTotal.WithLabelValues("failed").Inc()
		return types.Clip{}, err
	}
	metrics.RendersTotal.WithLabelValues("ok").Inc()
	metrics.RenderDuration.Observe(time.Since(start).Seconds())
	return clip, nil
}

func (u *Usecase) renderOne(ctx context.Context, jb *job, rng types.SelectedRange) (types.Clip, error) {
	key := ClipKey(jb.src.ID, rng.Index)
	log := jb.log.With().Str("clip_key", key).Logger()

	// One render or regenerate per key at a time. Sibling keys proceed in
	// parallel.
	lock := u.d.Registry.KeyLock(key)
	lock.Lock()
	defer lock.Unlock()

	cutPath := filepath.Join(jb.workDir, key+"_cut.mp4")
	if err := u.d.Video.CutClip(ctx, jb.src.Path, rng.Start, rng.End, cutPath); err != nil {
		return types.Clip{}, fmt.Errorf("cut %s: %w: %v", key, types.ErrRenderFailed, err)
	}

	outPath, err := u.burnVertical(ctx, burnInput{
		workDir:   jb.workDir,
		key:       key,
		cutPath:   cutPath,
		srcWidth:  jb.src.Width,
		srcHeight: jb.src.Height,
		tr:        jb.tr,
		rng:       rng,
		style:     jb.style,
		watermark: jb.watermark,
		log:       log,
	})
	if err != nil {
		return types.Clip{}, err
	}

	filename := key + ".mp4"
	archiveURL, err := u.d.Store.Archive(ctx, filename)
	if err != nil {
		log.Warn().Err(err).Msg("archiving clip failed, keeping local copy only")
		archiveURL = ""
	}

	now := time.Now().UTC()
	clip := types.Clip{
		Key:        key,
		SourceID:   jb.src.ID,
		Range:      rng,
		Style:      jb.styleSpec,
		OutputPath: outPath,
		CutPath:    cutPath,
		ArchiveURL: archiveURL,
		Metadata:   u.clipMetadata(ctx, jb.tr, rng, log),
		CreatedAt:  now,
		RenderedAt: now,
	}
	if err := u.d.Registry.Register(ctx, clip); err != nil {
		return types.Clip{}, fmt.Errorf("registering clip %s: %w", key, err)
	}
	log.Info().Str("output", outPath).Msg("clip rendered")
	return clip, nil
}

// burnInput is everything burnVertical needs. Regeneration reuses it with a
// retained or re-made cut.
type burnInput struct {
	workDir   string
	key       string
	cutPath   string
	srcWidth  int
	srcHeight int
	tr        types.Transcript
	rng       types.SelectedRange
	style     captions.Style
	watermark string
	log       zerolog.Logger
}

// burnVertical turns a cut intermediate into the finished vertical clip:
// subject tracking, caption burn-in, watermark, then promotion into the
// store. Returns the canonical local output path.
func (u *Usecase) burnVertical(ctx context.Context, in burnInput) (string, error) {
	spec := ports.RenderSpec{
		WatermarkText:     in.watermark,
		WatermarkFontSize: u.d.Config.WatermarkFontSize,
		WatermarkOpacity:  u.d.Config.WatermarkOpacity,
	}

	frames, err := u.d.Video.SampleFrames(ctx, in.cutPath, u.d.Config.SampleInterval, sampleWidth, sampleHeight)
	if err != nil {
		in.log.Warn().Err(err).Msg("frame sampling failed, using center crop")
	} else {
		centers := reframe.Track(frames, sampleWidth, sampleHeight, reframe.Config{
			Alpha:        u.d.Config.SmoothingAlpha,
			MotionWeight: u.d.Config.MotionWeight,
		})
		if kfs, scaledW, ok := reframe.Plan(centers, in.srcWidth, in.srcHeight, u.d.Config.SampleInterval, targetWidth, targetHeight); ok {
			spec.CropXByTime = kfs
			spec.ScaledWidth = scaledW
		}
	}

	toks := captions.LocalizeTokens(in.tr, in.rng.Start, in.rng.End)
	if content := captions.Build(toks, in.style); content != "" {
		assPath := filepath.Join(in.workDir, in.key+".ass")
		if err := os.WriteFile(assPath, []byte(content), 0o644); err != nil {
			return "", fmt.Errorf("writing subtitles for %s: %w: %v", in.key, types.ErrRenderFailed, err)
		}
		spec.SubtitlePath = assPath
	}

	rendered := filepath.Join(in.workDir, in.key+"_vertical.mp4")
	if err := u.d.Video.RenderVertical(ctx, in.cutPath, rendered, spec); err != nil {
		return "", fmt.Errorf("render %s: %w: %v", in.key, types.ErrRenderFailed, err)
	}

	outPath, err := u.d.Store.Promote(ctx, rendered, in.key+".mp4")
	if err != nil {
		return "", fmt.Errorf("promote %s: %w: %v", in.key, types.ErrRenderFailed, err)
	}
	return outPath, nil
}

// clipMetadata asks the generator for social copy and degrades to a plain
// numbered title. Metadata never fails a render.
func (u *Usecase) clipMetadata(ctx context.Context, tr types.Transcript, rng types.SelectedRange, log zerolog.Logger) types.ClipMetadata {
	fallback := types.ClipMetadata{
		Title:       fmt.Sprintf("Clip %d", rng.Index),
		Description: rng.Reason,
	}
	if u.d.Metadata == nil {
		return fallback
	}
	md, err := u.d.Metadata.GenerateMetadata(ctx, clipText(tr, rng), rng.Reason)
	if err != nil {
		log.Warn().Err(err).Msg("metadata generation failed, using placeholder")
		return fallback
	}
	if md.Title == "" {
		md.Title = fallback.Title
	}
	return md
}
