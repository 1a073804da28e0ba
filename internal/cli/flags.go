package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ovoronkov/reelcut/internal/domain/moments"
	"github.com/ovoronkov/reelcut/internal/types"
	"github.com/ovoronkov/reelcut/internal/usecase"
)

// jobFlags holds the per-job tuning shared by process and watch.
type jobFlags struct {
	clips     int
	preset    time.Duration
	style     string
	textColor string
	bgColor   string
	fontSize  int
	mode      string
	language  string
	romanize  bool
	watermark string
	from      time.Duration
	to        time.Duration
}

func (f *jobFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.IntVar(&f.clips, "clips", 0, "Number of clips to cut (default 3)")
	fl.DurationVar(&f.preset, "preset", 0, "Target clip length, e.g. 45s (default CLIP_PRESET)")
	fl.StringVar(&f.style, "style", "", "Caption style id (see the styles command)")
	fl.StringVar(&f.textColor, "text-color", "", "Caption text color override, #RRGGBB")
	fl.StringVar(&f.bgColor, "bg-color", "", "Caption background color override, #RRGGBB")
	fl.IntVar(&f.fontSize, "font-size", 0, "Caption font size override")
	fl.StringVar(&f.mode, "mode", "", "Moment selection: auto, text or energy")
	fl.StringVar(&f.language, "language", "", "Spoken language hint for transcription")
	fl.BoolVar(&f.romanize, "romanize", false, "Transliterate captions to Roman script")
	fl.StringVar(&f.watermark, "watermark", "", "Watermark text (default WATERMARK_TEXT)")
}

// registerRange adds the trim window flags. Only process gets these; a fixed
// window makes no sense applied to every file in a watched inbox.
func (f *jobFlags) registerRange(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.DurationVar(&f.from, "from", 0, "Only consider source material after this offset")
	fl.DurationVar(&f.to, "to", 0, "Only consider source material before this offset")
}

func (f *jobFlags) input(source string) (usecase.Input, error) {
	mode, err := parseMode(f.mode)
	if err != nil {
		return usecase.Input{}, err
	}
	if f.to > 0 && f.from >= f.to {
		return usecase.Input{}, fmt.Errorf("--from (%s) must be before --to (%s)", f.from, f.to)
	}
	return usecase.Input{
		Source:    source,
		Count:     f.clips,
		Preset:    f.preset,
		Style:     f.styleSpec(),
		Mode:      mode,
		Language:  f.language,
		Romanize:  f.romanize,
		Watermark: f.watermark,
		SubStart:  f.from,
		SubEnd:    f.to,
	}, nil
}

func (f *jobFlags) styleSpec() types.CaptionStyleSpec {
	return types.CaptionStyleSpec{
		StyleID:         f.style,
		TextColor:       f.textColor,
		BackgroundColor: f.bgColor,
		FontSize:        f.fontSize,
	}
}

func parseMode(s string) (moments.Mode, error) {
	switch s {
	case "", "auto":
		return moments.ModeAuto, nil
	case "text":
		return moments.ModeText, nil
	case "energy":
		return moments.ModeEnergy, nil
	default:
		return "", fmt.Errorf("unknown mode %q, want auto, text or energy", s)
	}
}
