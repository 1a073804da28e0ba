package types

import "time"

// MediaSource is a resolved local video file. Immutable once probed.
type MediaSource struct {
	ID       string        `json:"id"`
	Path     string        `json:"path"`
	Duration time.Duration `json:"-"`
	Width    int           `json:"width"`
	Height   int           `json:"height"`
	FPS      float64       `json:"fps"`
}

// Token is one transcript word with absolute timestamps in seconds.
type Token struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type Transcript struct {
	Language string  `json:"language,omitempty"`
	Tokens   []Token `json:"tokens"`
}

func (t Transcript) Empty() bool { return len(t.Tokens) == 0 }

// Text joins all token texts, mostly for prompting and logging.
func (t Transcript) Text() string {
	n := 0
	for _, tok := range t.Tokens {
		n += len(tok.Text) + 1
	}
	b := make([]byte, 0, n)
	for i, tok := range t.Tokens {
		if i > 0 {
			b = append(b, ' ')
		}
		b = append(b, tok.Text...)
	}
	return string(b)
}

// CandidateMoment is a scored window proposed by the selector.
type CandidateMoment struct {
	Start  time.Duration
	End    time.Duration
	Score  float64
	Reason string
}

// SelectedRange is a candidate promoted to production. Index is the 1-based
// position in the selector's output order.
type SelectedRange struct {
	Index  int
	Start  time.Duration
	End    time.Duration
	Score  float64
	Reason string
}

// CaptionStyleSpec picks a named style and optional overrides. Colors are
// "#RRGGBB"; zero values mean "keep the style's own setting".
type CaptionStyleSpec struct {
	StyleID         string `json:"style_id"`
	TextColor       string `json:"text_color,omitempty"`
	BackgroundColor string `json:"background_color,omitempty"`
	FontSize        int    `json:"font_size,omitempty"`
}

type ClipMetadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Hashtags    []string `json:"hashtags"`
}

// Clip is one rendered short. Key is stable ("<sourceID>-<index>") and is the
// only handle callers use for regeneration and sharing.
type Clip struct {
	Key        string           `json:"key"`
	SourceID   string           `json:"source_id"`
	Range      SelectedRange    `json:"-"`
	Style      CaptionStyleSpec `json:"style"`
	OutputPath string           `json:"output_path"`
	CutPath    string           `json:"-"`
	ArchiveURL string           `json:"archive_url,omitempty"`
	Metadata   ClipMetadata     `json:"metadata"`
	CreatedAt  time.Time        `json:"created_at"`
	RenderedAt time.Time        `json:"rendered_at"`
}

// ClipFailure reports one range that did not render. The job keeps going.
type ClipFailure struct {
	Index    int     `json:"index"`
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
	Reason   string  `json:"reason"`
}

type JobResult struct {
	SourceID string        `json:"source_id"`
	Clips    []Clip        `json:"clips"`
	Failures []ClipFailure `json:"failures,omitempty"`
}

type Manifest struct {
	SourceID string            `json:"source_id"`
	Input    string            `json:"input"`
	Clips    []ManifestClip    `json:"clips"`
	Failures []ManifestFailure `json:"failures,omitempty"`
}

type ManifestClip struct {
	Key         string   `json:"key"`
	StartSec    float64  `json:"start_sec"`
	EndSec      float64  `json:"end_sec"`
	Score       float64  `json:"score"`
	Reason      string   `json:"reason"`
	File        string   `json:"file"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Hashtags    []string `json:"hashtags"`
}

type ManifestFailure struct {
	Index    int     `json:"index"`
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
	Reason   string  `json:"reason"`
}
