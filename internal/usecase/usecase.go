// Package usecase wires the ports together into the end-to-end clip flow:
// acquire, transcribe, select, render, persist. It owns job orchestration and
// error classification; everything with an external surface lives behind a
// port.
package usecase

import (
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ovoronkov/reelcut/internal/config"
	"github.com/ovoronkov/reelcut/internal/domain/captions"
	"github.com/ovoronkov/reelcut/internal/domain/moments"
	"github.com/ovoronkov/reelcut/internal/ports"
	"github.com/ovoronkov/reelcut/internal/registry"
	"github.com/ovoronkov/reelcut/internal/storage"
	"github.com/ovoronkov/reelcut/internal/types"
)

// Deps are the collaborators of the usecase. Video, Registry, Store, Styles
// and Config are required; the rest are optional and the flow degrades
// without them (no Downloader means local files only, no Transcriber means
// energy-based selection and no captions, no Scorer means lexical scoring
// only, no Metadata means placeholder titles, no Publisher means Share
// fails).
type Deps struct {
	Video       ports.VideoToolkit
	Downloader  ports.Downloader
	Transcriber ports.Transcriber
	Scorer      ports.RelevanceScorer
	Metadata    ports.MetadataGenerator
	Publisher   ports.Publisher

	Registry *registry.Registry
	Store    storage.ClipStore
	Styles   *captions.Catalog
	Config   *config.Config
	Log      zerolog.Logger
}

type Usecase struct {
	d   Deps
	log zerolog.Logger

	active atomic.Int64
}

func New(d Deps) *Usecase {
	return &Usecase{d: d, log: d.Log.With().Str("component", "usecase").Logger()}
}

// ActiveJobs reports how many Run calls are in flight right now.
func (u *Usecase) ActiveJobs() int { return int(u.active.Load()) }

// Input is one processing job.
type Input struct {
	// Source is a local file path or an http(s) URL.
	Source string

	// Count is the number of clips to produce. Zero means the default.
	Count int

	// Preset is the target clip length. Zero means the configured default.
	Preset time.Duration

	Style types.CaptionStyleSpec
	Mode  moments.Mode

	// Language hints the transcriber; empty means auto-detect.
	Language string

	// Romanize forces Latin-script captions regardless of the detected
	// language. Telugu transcripts are romanized either way.
	Romanize bool

	// Watermark overrides the configured watermark text. Empty keeps the
	// configured one.
	Watermark string

	// SubStart/SubEnd restrict selection to a source sub-range. Zero SubEnd
	// means the source end.
	SubStart time.Duration
	SubEnd   time.Duration
}

const defaultClipCount = 3

// job carries the per-run state handed to render workers. Nothing in here is
// shared mutable state: workers only read it.
type job struct {
	src       types.MediaSource
	tr        types.Transcript
	workDir   string
	style     captions.Style
	styleSpec types.CaptionStyleSpec
	watermark string
	log       zerolog.Logger
}

// ClipKey is the stable handle for one rendered clip. Regeneration and
// sharing address clips only through it, never through file names.
func ClipKey(sourceID string, index int) string {
	return sourceID + "-" + strconv.Itoa(index)
}

// Manifest flattens a job result into the serializable manifest callers
// write next to the outputs.
func Manifest(input string, res types.JobResult) types.Manifest {
	m := types.Manifest{
		SourceID: res.SourceID,
		Input:    input,
		Clips:    make([]types.ManifestClip, 0, len(res.Clips)),
	}
	for _, c := range res.Clips {
		m.Clips = append(m.Clips, types.ManifestClip{
			Key:         c.Key,
			StartSec:    c.Range.Start.Seconds(),
			EndSec:      c.Range.End.Seconds(),
			Score:       c.Range.Score,
			Reason:      c.Range.Reason,
			File:        filepath.Base(c.OutputPath),
			Title:       c.Metadata.Title,
			Description: c.Metadata.Description,
			Hashtags:    c.Metadata.Hashtags,
		})
	}
	for _, f := range res.Failures {
		m.Failures = append(m.Failures, types.ManifestFailure{
			Index:    f.Index,
			StartSec: f.StartSec,
			EndSec:   f.EndSec,
			Reason:   f.Reason,
		})
	}
	return m
}

func selectorConfig(cfg *config.Config) moments.Config {
	return moments.Config{
		StrideFraction:      cfg.StrideFraction,
		OverlapTolerance:    cfg.OverlapTolerance,
		BackfillMinStartGap: cfg.BackfillMinStartGap,
		HeuristicWeight:     cfg.HeuristicWeight,
		RelevanceWeight:     cfg.RelevanceWeight,
		Weights:             moments.DefaultScoreWeights(),
	}
}

// clipText joins the transcript words covered by the range, for metadata
// prompting.
func clipText(tr types.Transcript, rng types.SelectedRange) string {
	toks := captions.LocalizeTokens(tr, rng.Start, rng.End)
	parts := make([]string, 0, len(toks))
	for _, t := range toks {
		parts = append(parts, t.Text)
	}
	return strings.Join(parts, " ")
}

func teluguLanguage(lang string) bool {
	switch strings.ToLower(strings.TrimSpace(lang)) {
	case "te", "tel", "telugu":
		return true
	}
	return false
}
