package ports

import (
	"context"
	"time"

	"github.com/ovoronkov/reelcut/internal/types"
)

// ProbeInfo is what ffprobe reports about a container.
type ProbeInfo struct {
	Duration time.Duration
	Width    int
	Height   int
	FPS      float64
}

// RenderSpec drives the vertical render pass over an already cut,
// clip-local-timestamped intermediate.
type RenderSpec struct {
	// CropXByTime maps sample offsets to crop x positions (pixels in the
	// scaled-to-target-height frame). Empty means center crop.
	CropXByTime []CropKeyframe
	ScaledWidth int

	SubtitlePath  string
	WatermarkText string

	WatermarkFontSize int
	WatermarkOpacity  float64
}

type CropKeyframe struct {
	At time.Duration
	X  int
}

// VideoToolkit is everything the pipeline needs from ffmpeg/ffprobe.
type VideoToolkit interface {
	Probe(ctx context.Context, path string) (ProbeInfo, error)
	ExtractAudioMono16k(ctx context.Context, inPath, outWav string) error

	// ExtractPCM returns mono 16 kHz s16le samples for [start, start+dur).
	ExtractPCM(ctx context.Context, inPath string, start, dur time.Duration) ([]byte, error)

	// SampleFrames returns grayscale frames (w*h bytes each) taken every
	// interval across the whole input.
	SampleFrames(ctx context.Context, inPath string, interval time.Duration, w, h int) ([][]byte, error)

	// CutClip re-encodes [start, end) into outPath with timestamps reset to
	// zero, so clip-local subtitles line up.
	CutClip(ctx context.Context, inPath string, start, end time.Duration, outPath string) error

	// RenderVertical reframes the cut to 1080x1920 and burns subtitles and the
	// optional watermark in one encode.
	RenderVertical(ctx context.Context, inPath, outPath string, spec RenderSpec) error
}

// Downloader resolves a remote URL into a local file inside destDir.
type Downloader interface {
	Fetch(ctx context.Context, url, destDir, id string) (string, error)
}

// Transcriber turns an audio file into a word-level transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, language string) (types.Transcript, error)
}

// ScoredWindow pairs a candidate window with its transcript slice for
// relevance scoring.
type ScoredWindow struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// WindowRelevance is an externally supplied judgment for one window.
type WindowRelevance struct {
	Score  float64 // 0..1
	Reason string
}

// RelevanceScorer is the optional LLM-backed half of moment selection.
// Implementations must degrade to an error rather than block selection.
type RelevanceScorer interface {
	ScoreWindows(ctx context.Context, windows []ScoredWindow) ([]WindowRelevance, error)
}

// MetadataGenerator produces social copy for one clip.
type MetadataGenerator interface {
	GenerateMetadata(ctx context.Context, clipText, reason string) (types.ClipMetadata, error)
}

// PublishRequest is the handoff to an external publishing service. The core
// assembles the caption and passes credentials through untouched.
type PublishRequest struct {
	VideoURL    string
	Caption     string
	AccessToken string
	AccountID   string
}

type Publisher interface {
	Publish(ctx context.Context, req PublishRequest) (string, error)
}
