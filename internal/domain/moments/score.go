package moments

import (
	"regexp"
	"strings"
)

var (
	reNum  = regexp.MustCompile(`\b\d+(?:[\.,]\d+)?\b`)
	reHook = regexp.MustCompile(`(?i)\b(secret|mistake|never|always|insane|crazy|unbelievable|shocking|incredible|hilarious|imagine|listen|wait|important|remember|here\s+is\s+why)\b`)
	reHow  = regexp.MustCompile(`(?i)\b(how\s+to|step\s+\d+|first|second|third|do\s+this)\b`)
)

// ScoreWeights are the knobs of the lexical heuristic. Zero value is useless;
// start from DefaultScoreWeights.
type ScoreWeights struct {
	Hook          float64 // per hook/energy keyword hit
	HowTo         float64 // procedural phrasing bonus
	Number        float64 // per numeric mention
	Question      float64 // per '?'
	Exclamation   float64 // per '!'
	LengthPenalty float64 // per rune, pulls down rambling windows
}

func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{
		Hook:          0.9,
		HowTo:         1.2,
		Number:        0.4,
		Question:      0.7,
		Exclamation:   0.3,
		LengthPenalty: 0.0006,
	}
}

// ScoreText rates a window's transcript text 0..10. Deterministic and cheap
// on purpose: it pre-ranks windows before any external relevance signal gets
// blended in.
func ScoreText(text string, w ScoreWeights) float64 {
	t := strings.TrimSpace(text)
	if t == "" {
		return 0
	}
	lower := strings.ToLower(t)

	score := float64(len(reHook.FindAllStringIndex(lower, -1))) * w.Hook
	if reHow.MatchString(lower) {
		score += w.HowTo
	}
	score += float64(len(reNum.FindAllStringIndex(t, -1))) * w.Number
	score += float64(strings.Count(t, "?")) * w.Question
	score += float64(strings.Count(t, "!")) * w.Exclamation
	score -= w.LengthPenalty * float64(len([]rune(t)))

	return clamp(score, 0, 10)
}

func clamp(x, a, b float64) float64 {
	if x < a {
		return a
	}
	if x > b {
		return b
	}
	return x
}
