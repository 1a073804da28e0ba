// Package openrouter talks to the OpenRouter chat completions API. It backs
// the optional relevance half of moment selection and clip metadata writing.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/ovoronkov/reelcut/internal/ports"
	"github.com/ovoronkov/reelcut/internal/types"
)

type Adapter struct {
	key     string
	model   string
	baseURL string
	client  *http.Client
}

var (
	_ ports.RelevanceScorer   = (*Adapter)(nil)
	_ ports.MetadataGenerator = (*Adapter)(nil)
)

const (
	requestTimeout = 90 * time.Second

	// Window text beyond this adds cost without changing the judgment.
	maxWindowTextRunes = 500
)

func New(apiKey, model, baseURL string) *Adapter {
	if model == "" {
		model = "z-ai/glm-4.5-air:free"
	}
	baseURL = normalizeBaseURL(baseURL)
	return &Adapter{key: apiKey, model: model, baseURL: baseURL, client: &http.Client{Timeout: 5 * time.Minute}}
}

// ScoreWindows asks the model to rate each candidate window 0..1 for
// standalone clip potential. The result aligns 1:1 with the input. Malformed
// model output is an error; the selector then falls back to heuristics.
func (a *Adapter) ScoreWindows(ctx context.Context, windows []ports.ScoredWindow) ([]ports.WindowRelevance, error) {
	if len(windows) == 0 {
		return nil, nil
	}

	type cand struct {
		Idx      int     `json:"idx"`
		StartSec float64 `json:"start_sec"`
		EndSec   float64 `json:"end_sec"`
		Text     string  `json:"text"`
	}
	arr := make([]cand, 0, len(windows))
	for i, w := range windows {
		arr = append(arr, cand{
			Idx:      i,
			StartSec: w.Start.Seconds(),
			EndSec:   w.End.Seconds(),
			Text:     truncate(w.Text, maxWindowTextRunes),
		})
	}
	pb, err := json.Marshal(arr)
	if err != nil {
		return nil, fmt.Errorf("marshal candidates: %w", err)
	}

	prompt := "Rate each candidate window for how well it would work as a standalone short vertical clip. " +
		"Return strictly valid JSON (no markdown, no code fences) matching the provided schema. " +
		"score is a number from 0 to 1: 1 means a self-contained moment that hooks a viewer within the first seconds, " +
		"0 means filler with no payoff. " +
		"reason is one short sentence naming the hook. " +
		"Score every candidate exactly once, keyed by idx." +
		"\n\nCandidates JSON:\n" + string(pb)

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"scores": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"idx":    map[string]any{"type": "integer"},
						"score":  map[string]any{"type": "number"},
						"reason": map[string]any{"type": "string"},
					},
					"required": []string{"idx", "score", "reason"},
				},
			},
		},
		"required": []string{"scores"},
	}

	clean, err := a.chat(ctx, prompt, "reelcut_relevance", schema)
	if err != nil {
		return nil, err
	}

	var out struct {
		Scores []struct {
			Idx    int     `json:"idx"`
			Score  float64 `json:"score"`
			Reason string  `json:"reason"`
		} `json:"scores"`
	}
	if err := json.Unmarshal([]byte(clean), &out); err != nil {
		return nil, fmt.Errorf("decode scores: %w", err)
	}
	if len(out.Scores) == 0 {
		return nil, errors.New("openrouter: no scores returned")
	}

	res := make([]ports.WindowRelevance, len(windows))
	seen := 0
	for _, s := range out.Scores {
		if s.Idx < 0 || s.Idx >= len(windows) {
			continue
		}
		res[s.Idx] = ports.WindowRelevance{Score: clamp01(s.Score), Reason: strings.TrimSpace(s.Reason)}
		seen++
	}
	if seen == 0 {
		return nil, errors.New("openrouter: scores did not match any candidate idx")
	}
	return res, nil
}

// GenerateMetadata writes a title, description and hashtags for one clip.
// Content-shape failures degrade to deterministic copy so rendering never
// waits on the model.
func (a *Adapter) GenerateMetadata(ctx context.Context, clipText, reason string) (types.ClipMetadata, error) {
	prompt := "Write social media metadata for a short vertical video clip. " +
		"Return strictly valid JSON (no markdown, no code fences) matching the provided schema. " +
		"title: catchy, at most 60 characters, no hashtags. " +
		"description: one or two sentences that tease the clip without spoiling it. " +
		"hashtags: 5 to 10 tags, each starting with '#'." +
		"\n\nClip transcript:\n" + truncate(clipText, 2000)
	if strings.TrimSpace(reason) != "" {
		prompt += "\n\nWhy this moment was picked:\n" + truncate(reason, 200)
	}

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title":       map[string]any{"type": "string"},
			"description": map[string]any{"type": "string"},
			"hashtags":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required": []string{"title", "description", "hashtags"},
	}

	clean, err := a.chat(ctx, prompt, "reelcut_metadata", schema)
	if err != nil {
		var ce *contentError
		if errors.As(err, &ce) {
			return fallbackMetadata(clipText, reason), nil
		}
		return types.ClipMetadata{}, err
	}

	var out struct {
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Hashtags    []string `json:"hashtags"`
	}
	if err := json.Unmarshal([]byte(clean), &out); err != nil {
		return fallbackMetadata(clipText, reason), nil
	}

	md := types.ClipMetadata{
		Title:       truncate(strings.TrimSpace(out.Title), 60),
		Description: strings.TrimSpace(out.Description),
		Hashtags:    normalizeHashtags(out.Hashtags),
	}
	if md.Title == "" || len(md.Hashtags) == 0 {
		fb := fallbackMetadata(clipText, reason)
		if md.Title == "" {
			md.Title = fb.Title
		}
		if md.Description == "" {
			md.Description = fb.Description
		}
		if len(md.Hashtags) == 0 {
			md.Hashtags = fb.Hashtags
		}
	}
	return md, nil
}

// contentError marks responses that arrived but could not be used, as opposed
// to transport or HTTP failures.
type contentError struct {
	msg string
}

func (e *contentError) Error() string { return e.msg }

// chat posts one schema-constrained completion and returns the extracted
// JSON object from the reply.
func (a *Adapter) chat(ctx context.Context, prompt, schemaName string, schema map[string]any) (string, error) {
	payload := map[string]any{
		"model":  a.model,
		"stream": false,
		"messages": []map[string]any{
			{"role": "user", "content": prompt},
		},
		"response_format": map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   schemaName,
				"schema": schema,
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	url := a.baseURL + "/api/v1/chat/completions"

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+a.key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("openrouter timeout after %s (model=%s)", requestTimeout, a.model)
		}
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return "", fmt.Errorf("openrouter status %d and read body failed: %v", resp.StatusCode, readErr)
		}
		return "", fmt.Errorf("openrouter status %d: %s", resp.StatusCode, truncate(redactSecrets(string(rb), a.key), 400))
	}

	var raw struct {
		Choices []struct {
			Message struct {
				Content any `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", err
	}
	if len(raw.Choices) == 0 {
		return "", &contentError{msg: "openrouter: no choices in response"}
	}

	content, err := messageContentToString(raw.Choices[0].Message.Content)
	if err != nil {
		return "", &contentError{msg: err.Error()}
	}
	clean, err := extractJSONObject(content)
	if err != nil {
		return "", &contentError{msg: err.Error()}
	}
	return clean, nil
}

func messageContentToString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []any:
		// Some providers return an array of {type,text} parts.
		var b strings.Builder
		for _, it := range x {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			if t, ok := m["text"].(string); ok {
				b.WriteString(t)
			}
		}
		s := b.String()
		if strings.TrimSpace(s) == "" {
			return "", errors.New("openrouter: empty content")
		}
		return s, nil
	default:
		return "", fmt.Errorf("openrouter: unexpected content type %T", v)
	}
}

func extractJSONObject(s string) (string, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return "", errors.New("openrouter: empty content")
	}

	// Strip markdown code fences.
	if strings.HasPrefix(t, "```") {
		// Remove opening fence line.
		if i := strings.Index(t, "\n"); i >= 0 {
			t = t[i+1:]
		}
		// Remove trailing fence.
		if j := strings.LastIndex(t, "```"); j >= 0 {
			t = t[:j]
		}
		t = strings.TrimSpace(t)
	}

	// Best-effort: take the first JSON object found.
	start := strings.Index(t, "{")
	end := strings.LastIndex(t, "}")
	if start >= 0 && end > start {
		return t[start : end+1], nil
	}

	return "", fmt.Errorf("openrouter: could not locate JSON object in: %q", truncate(t, 200))
}

func fallbackMetadata(clipText, reason string) types.ClipMetadata {
	title := "Video highlight"
	if words := strings.Fields(clipText); len(words) > 0 {
		n := len(words)
		if n > 6 {
			n = 6
		}
		title = truncate(strings.Join(words[:n], " "), 60)
	}
	desc := truncate(strings.TrimSpace(clipText), 160)
	if desc == "" {
		desc = strings.TrimSpace(reason)
	}
	return types.ClipMetadata{
		Title:       title,
		Description: desc,
		Hashtags:    []string{"#shorts", "#viral", "#clips"},
	}
}

func normalizeHashtags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || t == "#" {
			continue
		}
		if !strings.HasPrefix(t, "#") {
			t = "#" + t
		}
		out = append(out, t)
		if len(out) >= 10 {
			break
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var (
	bearerTokenRE = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._-]+\b`)
	authHeaderRE  = regexp.MustCompile(`(?i)(authorization\s*[:=]\s*)([^\n\r,;]+)`)
	apiKeyFieldRE = regexp.MustCompile(`(?i)(api[_-]?key\s*[:=]\s*)([^\n\r,;]+)`)
)

func redactSecrets(s, apiKey string) string {
	if s == "" {
		return s
	}
	out := s
	if apiKey != "" {
		out = strings.ReplaceAll(out, apiKey, "[REDACTED]")
	}
	out = bearerTokenRE.ReplaceAllString(out, "Bearer [REDACTED]")
	out = authHeaderRE.ReplaceAllString(out, "${1}[REDACTED]")
	out = apiKeyFieldRE.ReplaceAllString(out, "${1}[REDACTED]")
	return out
}
