// Package translit converts Telugu script into Roman letters so burned-in
// captions stay readable with latin-only fonts.
package translit

import (
	"strings"

	"github.com/ovoronkov/reelcut/internal/types"
)

var vowels = map[rune]string{
	'అ': "a", 'ఆ': "aa", 'ఇ': "i", 'ఈ': "ee", 'ఉ': "u", 'ఊ': "oo",
	'ఎ': "e", 'ఏ': "e", 'ఐ': "ai", 'ఒ': "o", 'ఓ': "o", 'ఔ': "au",
	'ృ': "ru", 'ౄ': "roo",
}

// vowelMarks are the matras. The virama maps to the empty string: it strips
// the consonant's inherent vowel instead of replacing it.
var vowelMarks = map[rune]string{
	'ా': "aa", 'ి': "i", 'ీ': "ee", 'ు': "u", 'ూ': "oo",
	'ె': "e", 'ే': "e", 'ై': "ai", 'ొ': "o", 'ో': "o", 'ౌ': "au",
	'ృ': "ru", '్': "",
}

var consonants = map[rune]string{
	'క': "ka", 'ఖ': "kha", 'గ': "ga", 'ఘ': "gha", 'ఙ': "nga",
	'చ': "cha", 'ఛ': "chha", 'జ': "ja", 'ఝ': "jha", 'ఞ': "nya",
	'ట': "ta", 'ఠ': "tha", 'డ': "da", 'ఢ': "dha", 'ణ': "na",
	'త': "tha", 'థ': "tha", 'ద': "da", 'ధ': "dha", 'న': "na",
	'ప': "pa", 'ఫ': "pha", 'బ': "ba", 'భ': "bha", 'మ': "ma",
	'య': "ya", 'ర': "ra", 'ల': "la", 'వ': "va", 'శ': "sha",
	'ష': "sha", 'స': "sa", 'హ': "ha", 'ళ': "la",
	'ఱ': "rra", 'ం': "n", 'ః': "h", 'ఁ': "n",
}

// commonWords overrides the mechanical mapping for frequent words whose
// conventional Roman spellings differ from letter-by-letter output.
var commonWords = map[string]string{
	"ఏమి":          "emi",
	"ఏమైంది":       "emaindi",
	"ఎం":           "em",
	"నువ్వు":       "nuvvu",
	"నేను":         "nenu",
	"మీరు":         "meeru",
	"ఎక్కడ":        "ekkada",
	"ఉన్నావ్":      "unnav",
	"ఉన్నాడు":      "unnadu",
	"ఉన్నది":       "unnadi",
	"చేస్తున్నావ్": "chestunnav",
	"చేస్తున్నాను": "chestunnanu",
	"వీడియో":       "video",
	"చూసావా":       "choosava",
	"చూడు":         "choodu",
	"రా":           "ra",
	"రండి":         "randi",
	"అవును":        "avunu",
	"కాదు":         "kaadu",
	"ఎందుకు":       "enduku",
	"ఇక్కడ":        "ikkada",
	"అక్కడ":        "akkada",
	"ఇప్పుడు":      "ippudu",
	"అప్పుడు":      "appudu",
	"బాగుంది":      "bagundi",
	"బాగోలేదు":     "bagoledu",
	"తెలుసు":       "telusu",
	"తెలియదు":      "teliyadu",
	"వచ్చాను":      "vacchanu",
	"వెళ్ళాను":     "vellanu",
	"పోదాం":        "podam",
	"తినాలి":       "tinali",
	"చెప్పు":       "cheppu",
	"వినండి":       "vinandi",
}

func isTelugu(r rune) bool { return r >= 0x0C00 && r <= 0x0C7F }

// ToRoman converts Telugu script to Roman letters, preserving phonetics.
// Text without Telugu characters comes back unchanged.
func ToRoman(text string) string {
	if text == "" {
		return ""
	}
	if !strings.ContainsFunc(text, isTelugu) {
		return text
	}

	words := strings.Fields(text)
	out := make([]string, 0, len(words))
	for _, w := range words {
		if r, ok := commonWords[w]; ok {
			out = append(out, r)
			continue
		}
		if r, ok := commonWords[strings.TrimRight(w, "?!.,")]; ok {
			out = append(out, r)
			continue
		}
		out = append(out, romanizeWord([]rune(w)))
	}
	return strings.Join(out, " ")
}

func romanizeWord(runes []rune) string {
	var b strings.Builder
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if !isTelugu(r) {
			b.WriteRune(r)
			continue
		}
		if v, ok := vowels[r]; ok {
			b.WriteString(v)
			continue
		}
		if base, ok := consonants[r]; ok {
			// A following matra replaces the consonant's inherent 'a'.
			if i+1 < len(runes) {
				if mark, ok := vowelMarks[runes[i+1]]; ok {
					b.WriteString(base[:len(base)-1])
					b.WriteString(mark)
					i++
					continue
				}
			}
			b.WriteString(base)
			continue
		}
		if mark, ok := vowelMarks[r]; ok {
			b.WriteString(mark)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// TranscriptToRoman returns a copy of tr with every token romanized.
func TranscriptToRoman(tr types.Transcript) types.Transcript {
	out := types.Transcript{Language: tr.Language, Tokens: make([]types.Token, len(tr.Tokens))}
	for i, tok := range tr.Tokens {
		tok.Text = ToRoman(tok.Text)
		out.Tokens[i] = tok
	}
	return out
}
