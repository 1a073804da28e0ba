package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/ovoronkov/reelcut/internal/types"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorResponse{Error: msg})
}

// DecodeJSON reads and decodes a JSON request body into v.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return fmt.Errorf("missing request body")
	}
	return json.NewDecoder(r.Body).Decode(v)
}

func errorIsNotFound(err error) bool {
	return errors.Is(err, types.ErrClipNotFound)
}

// writeDomainError maps the error taxonomy onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrClipNotFound):
		status = http.StatusNotFound
	case errors.Is(err, types.ErrInvalidStyle),
		errors.Is(err, types.ErrSourceUnavailable):
		status = http.StatusBadRequest
	case errors.Is(err, types.ErrTranscriptionUnavailable),
		errors.Is(err, types.ErrNoTranscript):
		status = http.StatusUnprocessableEntity
	}
	WriteError(w, status, err.Error())
}

// clipResponse is the wire shape of a clip. The range lives in derived
// second fields so clients never deal with Go duration encoding.
type clipResponse struct {
	Key        string             `json:"key"`
	SourceID   string             `json:"source_id"`
	Index      int                `json:"index"`
	StartSec   float64            `json:"start_sec"`
	EndSec     float64            `json:"end_sec"`
	Score      float64            `json:"score"`
	Reason     string             `json:"reason,omitempty"`
	Style      types.CaptionStyleSpec `json:"style"`
	File       string             `json:"file"`
	URL        string             `json:"url"`
	ArchiveURL string             `json:"archive_url,omitempty"`
	Metadata   types.ClipMetadata `json:"metadata"`
	CreatedAt  string             `json:"created_at"`
	RenderedAt string             `json:"rendered_at"`
}

func toClipResponse(c types.Clip) clipResponse {
	file := filepath.Base(c.OutputPath)
	return clipResponse{
		Key:        c.Key,
		SourceID:   c.SourceID,
		Index:      c.Range.Index,
		StartSec:   c.Range.Start.Seconds(),
		EndSec:     c.Range.End.Seconds(),
		Score:      c.Range.Score,
		Reason:     c.Range.Reason,
		Style:      c.Style,
		File:       file,
		URL:        "/static/clips/" + file,
		ArchiveURL: c.ArchiveURL,
		Metadata:   c.Metadata,
		CreatedAt:  c.CreatedAt.Format(time.RFC3339),
		RenderedAt: c.RenderedAt.Format(time.RFC3339),
	}
}

type jobResponse struct {
	SourceID string              `json:"source_id"`
	Clips    []clipResponse      `json:"clips"`
	Failures []types.ClipFailure `json:"failures,omitempty"`
}

func toJobResponse(res types.JobResult) jobResponse {
	out := jobResponse{SourceID: res.SourceID, Clips: make([]clipResponse, 0, len(res.Clips)), Failures: res.Failures}
	for _, c := range res.Clips {
		out.Clips = append(out.Clips, toClipResponse(c))
	}
	return out
}
