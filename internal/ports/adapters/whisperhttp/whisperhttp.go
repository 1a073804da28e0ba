// Package whisperhttp calls an OpenAI-compatible /v1/audio/transcriptions
// endpoint for word-level transcripts.
package whisperhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ovoronkov/reelcut/internal/ports"
	"github.com/ovoronkov/reelcut/internal/types"
)

type Adapter struct {
	url    string
	model  string
	apiKey string
	client *http.Client
}

var _ ports.Transcriber = (*Adapter)(nil)

func New(url, model, apiKey string, timeout time.Duration) *Adapter {
	return &Adapter{
		url:    url,
		model:  model,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

type whisperWord struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type whisperSegment struct {
	Start float64       `json:"start"`
	End   float64       `json:"end"`
	Text  string        `json:"text"`
	Words []whisperWord `json:"words"`
}

type whisperResponse struct {
	Text     string           `json:"text"`
	Language string           `json:"language"`
	Words    []whisperWord    `json:"words"`
	Segments []whisperSegment `json:"segments"`
}

// Transcribe uploads the audio as multipart form data and requests
// verbose_json with word timestamps. An empty language leaves detection to
// the server, which matters for non-English sources.
func (a *Adapter) Transcribe(ctx context.Context, audioPath, language string) (types.Transcript, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return types.Transcript{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return types.Transcript{}, fmt.Errorf("copy audio data: %w", err)
	}
	if a.model != "" {
		w.WriteField("model", a.model)
	}
	if language != "" {
		w.WriteField("language", language)
	}
	w.WriteField("response_format", "verbose_json")
	w.WriteField("timestamp_granularities[]", "segment")
	w.WriteField("timestamp_granularities[]", "word")
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, &buf)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return types.Transcript{}, fmt.Errorf("whisper API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result whisperResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return types.Transcript{}, fmt.Errorf("decode response: %w", err)
	}
	return toTranscript(result), nil
}

// toTranscript prefers top-level words, falls back to per-segment words, and
// finally treats whole segments as single tokens so captioning still has
// something to sync against.
func toTranscript(r whisperResponse) types.Transcript {
	tr := types.Transcript{Language: r.Language}
	appendWord := func(w whisperWord) {
		text := strings.TrimSpace(w.Word)
		if text == "" {
			return
		}
		tr.Tokens = append(tr.Tokens, types.Token{Text: text, Start: w.Start, End: w.End})
	}

	if len(r.Words) > 0 {
		for _, w := range r.Words {
			appendWord(w)
		}
		return tr
	}
	for _, s := range r.Segments {
		if len(s.Words) > 0 {
			for _, w := range s.Words {
				appendWord(w)
			}
			continue
		}
		appendWord(whisperWord{Word: s.Text, Start: s.Start, End: s.End})
	}
	return tr
}
