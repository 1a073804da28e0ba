package types

import "errors"

// Error taxonomy. Wrap with fmt.Errorf("...: %w", Err...) and match with
// errors.Is at decision points.
var (
	// ErrSourceUnavailable aborts the whole job.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrTranscriptionUnavailable switches selection to the energy fallback.
	ErrTranscriptionUnavailable = errors.New("transcription unavailable")

	// ErrNoTranscript means the transcript came back empty. Same fallback.
	ErrNoTranscript = errors.New("no transcript")

	// ErrInvalidStyle fails a single render/regeneration call before any I/O.
	ErrInvalidStyle = errors.New("invalid caption style")

	// ErrRenderFailed fails one clip; sibling renders keep going.
	ErrRenderFailed = errors.New("render failed")

	// ErrClipNotFound fails a regeneration or share call.
	ErrClipNotFound = errors.New("clip not found")
)
