// Package whispercpp shells out to a local whisper.cpp binary. It is the
// offline alternative to the HTTP transcriber.
package whispercpp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ovoronkov/reelcut/internal/ports"
	"github.com/ovoronkov/reelcut/internal/types"
)

type Adapter struct {
	bin   string
	model string
}

var _ ports.Transcriber = (*Adapter)(nil)

func New(binPath, modelPath string) *Adapter {
	return &Adapter{bin: binPath, model: modelPath}
}

type cppWord struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Word  string  `json:"word"`
}

type cppSegment struct {
	Start float64   `json:"start"`
	End   float64   `json:"end"`
	Text  string    `json:"text"`
	Words []cppWord `json:"words,omitempty"`
}

type cppOutput struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Segments []cppSegment `json:"segments"`
}

func (a *Adapter) Transcribe(ctx context.Context, audioPath, language string) (types.Transcript, error) {
	workDir, err := os.MkdirTemp("", "whispercpp-*")
	if err != nil {
		return types.Transcript{}, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	outPrefix := filepath.Join(workDir, "whisper")
	args := []string{
		"-m", a.model,
		"-f", audioPath,
		"-oj",
		"-of", outPrefix,
		"-owts",
	}
	if language != "" {
		args = append(args, "-l", language)
	}
	cmd := exec.CommandContext(ctx, a.bin, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper.cpp failed: %w\n%s", err, string(b))
	}

	jb, err := os.ReadFile(outPrefix + ".json")
	if err != nil {
		return types.Transcript{}, fmt.Errorf("read whisper.cpp output: %w", err)
	}
	var out cppOutput
	if err := json.Unmarshal(jb, &out); err != nil {
		return types.Transcript{}, fmt.Errorf("decode whisper.cpp output: %w", err)
	}
	return toTranscript(out), nil
}

// toTranscript flattens per-segment words into the flat token stream the rest
// of the pipeline works with. Segments without word timing become one token.
func toTranscript(out cppOutput) types.Transcript {
	tr := types.Transcript{Language: out.Result.Language}
	for _, seg := range out.Segments {
		if len(seg.Words) == 0 {
			text := strings.TrimSpace(seg.Text)
			if text == "" {
				continue
			}
			tr.Tokens = append(tr.Tokens, types.Token{Text: text, Start: seg.Start, End: seg.End})
			continue
		}
		for _, w := range seg.Words {
			text := strings.TrimSpace(w.Word)
			if text == "" {
				continue
			}
			tr.Tokens = append(tr.Tokens, types.Token{Text: text, Start: w.Start, End: w.End})
		}
	}
	return tr
}
