package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ovoronkov/reelcut/internal/domain/captions"
	"github.com/ovoronkov/reelcut/internal/metrics"
	"github.com/ovoronkov/reelcut/internal/ports"
	"github.com/ovoronkov/reelcut/internal/types"
)

// Regenerate re-renders one existing clip with a new caption style. It never
// re-acquires, re-transcribes or re-selects: captions and burn-in re-run on
// the retained cut intermediate, and only when that file is gone is the cut
// re-made from the registered source with the exact same range. Metadata and
// the clip key survive unchanged.
func (u *Usecase) Regenerate(ctx context.Context, key string, spec types.CaptionStyleSpec) (types.Clip, error) {
	// Same contract as Run: an invalid style is rejected before any file or
	// registry row is touched.
	style, err := u.d.Styles.Resolve(spec)
	if err != nil {
		return types.Clip{}, err
	}

	lock := u.d.Registry.KeyLock(key)
	lock.Lock()
	defer lock.Unlock()

	clip, err := u.d.Registry.Get(ctx, key)
	if err != nil {
		return types.Clip{}, err
	}
	log := u.log.With().Str("clip_key", key).Logger()

	tr, err := u.d.Registry.Transcript(ctx, clip.SourceID)
	if err != nil {
		if !errors.Is(err, types.ErrNoTranscript) {
			return types.Clip{}, fmt.Errorf("loading transcript: %w", err)
		}
		log.Debug().Msg("no stored transcript, regenerating without captions")
		tr = types.Transcript{}
	}

	workDir := filepath.Join(u.d.Config.WorkDir, clip.SourceID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return types.Clip{}, fmt.Errorf("creating work dir: %w", err)
	}

	start := time.Now()
	updated, err := u.reburn(ctx, clip, tr, style, spec, workDir, log)
	if err != nil {
		metrics.RendersTotal.WithLabelValues("failed").Inc()
		return types.Clip{}, err
	}
	metrics.RendersTotal.WithLabelValues("ok").Inc()
	metrics.RenderDuration.Observe(time.Since(start).Seconds())

	if err := u.d.Registry.Update(ctx, key, updated); err != nil {
		return types.Clip{}, fmt.Errorf("updating clip %s: %w", key, err)
	}
	log.Info().Str("style", spec.StyleID).Str("output", updated.OutputPath).Msg("clip regenerated")
	return updated, nil
}

func (u *Usecase) reburn(ctx context.Context, clip types.Clip, tr types.Transcript, style captions.Style, spec types.CaptionStyleSpec, workDir string, log zerolog.Logger) (types.Clip, error) {
	cutPath := clip.CutPath
	if !fileExists(cutPath) {
		recut, err := u.recut(ctx, clip, workDir, log)
		if err != nil {
			return types.Clip{}, err
		}
		cutPath = recut
		clip.CutPath = recut
	}

	// The cut keeps the source frame geometry, so the crop plan comes from
	// probing it rather than from the sources table.
	info, err := u.d.Video.Probe(ctx, cutPath)
	if err != nil {
		return types.Clip{}, fmt.Errorf("probe cut %s: %w: %v", clip.Key, types.ErrRenderFailed, err)
	}

	filename := clip.Key + ".mp4"
	if u.d.Config.KeepReplaced {
		u.retireReplaced(filename, log)
	}

	outPath, err := u.burnVertical(ctx, burnInput{
		workDir:   workDir,
		key:       clip.Key,
		cutPath:   cutPath,
		srcWidth:  info.Width,
		srcHeight: info.Height,
		tr:        tr,
		rng:       clip.Range,
		style:     style,
		watermark: u.d.Config.WatermarkText,
		log:       log,
	})
	if err != nil {
		return types.Clip{}, err
	}

	clip.Style = spec
	clip.OutputPath = outPath
	clip.RenderedAt = time.Now().UTC()
	return clip, nil
}

// recut re-makes the cut intermediate from the registered source, same range
// as the original render.
func (u *Usecase) recut(ctx context.Context, clip types.Clip, workDir string, log zerolog.Logger) (string, error) {
	src, _, err := u.d.Registry.Source(ctx, clip.SourceID)
	if err != nil {
		return "", fmt.Errorf("cut intermediate for %s is gone and its source is unknown: %w", clip.Key, err)
	}
	if !fileExists(src.Path) {
		return "", fmt.Errorf("%w: source file %q no longer exists", types.ErrSourceUnavailable, src.Path)
	}
	log.Info().Str("source", src.Path).Msg("cut intermediate gone, re-cutting from source")

	cutPath := filepath.Join(workDir, clip.Key+"_cut.mp4")
	if err := u.d.Video.CutClip(ctx, src.Path, clip.Range.Start, clip.Range.End, cutPath); err != nil {
		return "", fmt.Errorf("re-cut %s: %w: %v", clip.Key, types.ErrRenderFailed, err)
	}
	return cutPath, nil
}

// retireReplaced moves the current output aside instead of overwriting it.
func (u *Usecase) retireReplaced(filename string, log zerolog.Logger) {
	old := u.d.Store.LocalPath(filename)
	if old == "" {
		return
	}
	backup := strings.TrimSuffix(old, filepath.Ext(old)) +
		fmt.Sprintf("_replaced_%d", time.Now().Unix()) + filepath.Ext(old)
	if err := os.Rename(old, backup); err != nil {
		log.Warn().Err(err).Msg("keeping replaced output failed")
		return
	}
	log.Debug().Str("backup", backup).Msg("previous output kept")
}

// Share publishes one clip through the configured publisher and returns the
// remote media id. Credentials pass through untouched; the caption is
// assembled from the stored metadata.
func (u *Usecase) Share(ctx context.Context, key, accessToken, accountID string) (string, error) {
	if u.d.Publisher == nil {
		return "", errors.New("publishing is not configured")
	}

	clip, err := u.d.Registry.Get(ctx, key)
	if err != nil {
		return "", err
	}

	filename := filepath.Base(clip.OutputPath)
	videoURL, err := u.d.Store.ShareURL(ctx, filename)
	if err != nil {
		return "", fmt.Errorf("building share URL: %w", err)
	}
	if videoURL == "" {
		base := strings.TrimRight(u.d.Config.PublicBaseURL, "/")
		if base == "" {
			return "", fmt.Errorf("clip %s is only stored locally and PUBLIC_BASE_URL is not set", key)
		}
		videoURL = base + "/static/clips/" + filename
	}

	mediaID, err := u.d.Publisher.Publish(ctx, ports.PublishRequest{
		VideoURL:    videoURL,
		Caption:     buildCaption(clip.Metadata),
		AccessToken: accessToken,
		AccountID:   accountID,
	})
	if err != nil {
		return "", fmt.Errorf("publishing clip %s: %w", key, err)
	}
	u.log.Info().Str("clip_key", key).Str("media_id", mediaID).Msg("clip published")
	return mediaID, nil
}

// buildCaption joins title, description and hashtags into the post caption,
// skipping whatever is empty.
func buildCaption(md types.ClipMetadata) string {
	var parts []string
	if md.Title != "" {
		parts = append(parts, md.Title)
	}
	if md.Description != "" {
		parts = append(parts, md.Description)
	}
	if len(md.Hashtags) > 0 {
		parts = append(parts, strings.Join(md.Hashtags, " "))
	}
	return strings.Join(parts, "\n\n")
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
