package captions

import (
	"fmt"
	"strings"
	"time"

	"github.com/ovoronkov/reelcut/internal/types"
)

// LocalizeTokens shifts absolute-timeline tokens into clip-local time for the
// [start, end) cut. Tokens ending before the cut are dropped; tokens
// straddling a boundary are clamped so events never run past the clip.
func LocalizeTokens(tr types.Transcript, start, end time.Duration) []types.Token {
	clipDur := end - start
	var out []types.Token
	for _, tok := range tr.Tokens {
		ts := dur(tok.Start) - start
		te := dur(tok.End) - start
		if te <= 0 || ts >= clipDur {
			continue
		}
		text := strings.TrimSpace(tok.Text)
		if text == "" {
			continue
		}
		if ts < 0 {
			ts = 0
		}
		if te > clipDur {
			te = clipDur
		}
		out = append(out, types.Token{
			Text:  text,
			Start: ts.Seconds(),
			End:   te.Seconds(),
		})
	}
	return out
}

// Build renders clip-local tokens into a complete ASS document. Karaoke
// styles pack several words per line and reveal them with \k timing; every
// other style shows one word at a time, matching its spoken interval. An
// empty token list yields an empty string, which callers treat as
// "no captions".
func Build(tokens []types.Token, st Style) string {
	words := collectWords(tokens)
	if len(words) == 0 {
		return ""
	}
	var b strings.Builder
	writeHeader(&b, st)
	b.WriteString("\n[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
	if st.Karaoke {
		writeKaraokeEvents(&b, st.Name, packWords(words))
	} else {
		writeWordEvents(&b, st.Name, words)
	}
	return b.String()
}

type word struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

type line struct {
	Start time.Duration
	End   time.Duration
	Words []word
}

func collectWords(tokens []types.Token) []word {
	out := make([]word, 0, len(tokens))
	for _, t := range tokens {
		text := sanitizeASS(t.Text)
		if text == "" {
			continue
		}
		out = append(out, word{Start: dur(t.Start), End: dur(t.End), Text: text})
	}
	return out
}

// packWords groups words into karaoke lines. Budgets are tuned for the
// 384-wide script space: longer lines overflow the frame once libass scales
// Fontsize 30 up to the 1080x1920 output.
func packWords(words []word) []line {
	var out []line
	cur := line{Start: words[0].Start}
	charBudget := 18
	wordBudget := 4
	curLen := 0
	for i, w := range words {
		wl := len([]rune(w.Text))
		nextLen := curLen
		if curLen > 0 {
			nextLen++
		}
		nextLen += wl
		if len(cur.Words) >= wordBudget || (len(cur.Words) > 0 && nextLen > charBudget) {
			cur.End = cur.Words[len(cur.Words)-1].End
			out = append(out, cur)
			cur = line{Start: w.Start}
			curLen = 0
		}
		cur.Words = append(cur.Words, w)
		if curLen > 0 {
			curLen++
		}
		curLen += wl
		if i == len(words)-1 {
			cur.End = w.End
			out = append(out, cur)
		}
	}
	return out
}

func writeKaraokeEvents(b *strings.Builder, styleName string, lines []line) {
	for _, ln := range lines {
		b.WriteString("Dialogue: 0,")
		b.WriteString(assTime(ln.Start))
		b.WriteString(",")
		b.WriteString(assTime(ln.End))
		b.WriteString(",")
		b.WriteString(styleName)
		b.WriteString(",,0,0,0,,")
		for _, w := range ln.Words {
			durCS := int((w.End - w.Start) / (10 * time.Millisecond))
			if durCS < 1 {
				durCS = 1
			}
			fmt.Fprintf(b, "{\\k%d}%s ", durCS, w.Text)
		}
		b.WriteString("\n")
	}
}

func writeWordEvents(b *strings.Builder, styleName string, words []word) {
	for _, w := range words {
		b.WriteString("Dialogue: 0,")
		b.WriteString(assTime(w.Start))
		b.WriteString(",")
		b.WriteString(assTime(w.End))
		b.WriteString(",")
		b.WriteString(styleName)
		b.WriteString(",,0,0,0,,")
		b.WriteString(w.Text)
		b.WriteString("\n")
	}
}

// writeHeader emits the script info and the single style row. PlayRes is
// pinned to libass's 384x288 default so Fontsize and margins keep the scale
// they had as bare force_style values without a script resolution.
func writeHeader(b *strings.Builder, st Style) {
	b.WriteString("[Script Info]\n")
	b.WriteString("ScriptType: v4.00+\n")
	b.WriteString("PlayResX: 384\n")
	b.WriteString("PlayResY: 288\n")
	b.WriteString("ScaledBorderAndShadow: yes\n")
	b.WriteString("\n[V4+ Styles]\n")
	b.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n")
	bold := 0
	if st.Bold {
		bold = -1
	}
	fmt.Fprintf(b, "Style: %s,%s,%d,%s,%s,%s,%s,%d,0,0,0,100,100,0,0,%d,%d,%d,%d,10,10,%d,1\n",
		st.Name, st.FontName, st.FontSize,
		styleColor(st.PrimaryColour), styleColor(st.SecondColour),
		styleColor(st.OutlineColour), styleColor(st.BackColour),
		bold, st.BorderStyle, st.Outline, st.Shadow, st.Alignment, st.MarginV)
}

func assTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hs := int(d / time.Hour)
	d -= time.Duration(hs) * time.Hour
	ms := int(d / time.Minute)
	d -= time.Duration(ms) * time.Minute
	s := int(d / time.Second)
	d -= time.Duration(s) * time.Second
	cs := int(d / (10 * time.Millisecond))
	return fmt.Sprintf("%d:%02d:%02d.%02d", hs, ms, s, cs)
}

func sanitizeASS(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "{", "(")
	s = strings.ReplaceAll(s, "}", ")")
	return strings.TrimSpace(s)
}

func dur(sec float64) time.Duration { return time.Duration(sec * float64(time.Second)) }
