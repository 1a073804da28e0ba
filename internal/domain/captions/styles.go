package captions

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/ovoronkov/reelcut/internal/types"
)

// Style is a fully resolved caption look. Colors are inline ASS values
// (&HBBGGRR&) because that is how the style table is ultimately written.
type Style struct {
	Name          string
	FontName      string
	FontSize      int
	PrimaryColour string
	SecondColour  string
	OutlineColour string
	BackColour    string
	Bold          bool
	BorderStyle   int // 1 outline+shadow, 3 opaque box
	Outline       int
	Shadow        int
	Alignment     int // ASS numpad, 5 = mid-center
	MarginV       int

	// Karaoke switches the writer into word-by-word \k highlighting.
	Karaoke bool
}

// Builtin style identifiers.
const (
	StyleKaraoke   = "karaoke"
	StyleDeepDiver = "deep_diver"
	StyleMozi      = "mozi"
	StyleGlitch    = "glitch"
	StyleClassic   = "classic"

	DefaultStyleID = StyleKaraoke
)

func baseStyle(name string) Style {
	return Style{
		Name:          name,
		FontName:      "Nirmala UI",
		FontSize:      30,
		PrimaryColour: "&HFFFFFF&",
		SecondColour:  "&HFFFFFF&",
		OutlineColour: "&H000000&",
		BackColour:    "&H000000&",
		Bold:          true,
		BorderStyle:   1,
		Outline:       1,
		Shadow:        0,
		Alignment:     5,
		MarginV:       20,
	}
}

func builtinStyles() map[string]Style {
	karaoke := baseStyle("Karaoke")
	karaoke.PrimaryColour = "&H00FF00&"
	karaoke.Karaoke = true

	deep := baseStyle("DeepDiver")
	deep.BorderStyle = 3

	mozi := baseStyle("Mozi")
	mozi.PrimaryColour = "&HFF00FF&"
	mozi.OutlineColour = "&HFFFF00&"
	mozi.Outline = 2

	glitch := baseStyle("Glitch")
	glitch.PrimaryColour = "&H0000FF&"
	glitch.OutlineColour = "&H00FFFF&"
	glitch.Shadow = 1

	classic := baseStyle("Classic")

	return map[string]Style{
		StyleKaraoke:   karaoke,
		StyleDeepDiver: deep,
		StyleMozi:      mozi,
		StyleGlitch:    glitch,
		StyleClassic:   classic,
	}
}

// Catalog holds the resolvable styles: builtins plus anything loaded from a
// styles file. Lookup is by lowercase id.
type Catalog struct {
	styles map[string]Style
}

func NewCatalog() *Catalog {
	return &Catalog{styles: builtinStyles()}
}

// IDs returns the known style ids sorted for stable listings.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.styles))
	for id := range c.styles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func normalizeID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	return strings.ReplaceAll(id, " ", "_")
}

func (c *Catalog) Get(id string) (Style, bool) {
	s, ok := c.styles[normalizeID(id)]
	return s, ok
}

// Resolve validates the requested spec against the catalog and applies its
// overrides. It never touches the filesystem, so callers can reject bad specs
// before any work starts.
func (c *Catalog) Resolve(spec types.CaptionStyleSpec) (Style, error) {
	id := normalizeID(spec.StyleID)
	if id == "" {
		id = DefaultStyleID
	}
	st, ok := c.styles[id]
	if !ok {
		return Style{}, fmt.Errorf("%w: unknown style %q (have %s)",
			types.ErrInvalidStyle, spec.StyleID, strings.Join(c.IDs(), ", "))
	}

	if spec.TextColor != "" {
		col, err := hexToASS(spec.TextColor)
		if err != nil {
			return Style{}, fmt.Errorf("%w: text color: %v", types.ErrInvalidStyle, err)
		}
		st.PrimaryColour = col
	}
	if spec.BackgroundColor != "" {
		col, err := hexToASS(spec.BackgroundColor)
		if err != nil {
			return Style{}, fmt.Errorf("%w: background color: %v", types.ErrInvalidStyle, err)
		}
		// A background turns the style into an opaque box. In BorderStyle=3
		// the box color comes from OutlineColour.
		st.BorderStyle = 3
		st.Shadow = 0
		st.OutlineColour = col
		st.BackColour = col
	}
	if spec.FontSize != 0 {
		if spec.FontSize < 8 || spec.FontSize > 120 {
			return Style{}, fmt.Errorf("%w: font size %d out of range 8..120",
				types.ErrInvalidStyle, spec.FontSize)
		}
		st.FontSize = spec.FontSize
	}
	return st, nil
}

// styleFile is the TOML shape of a user styles file. Every field is optional;
// unset fields inherit from the classic base.
type styleFile struct {
	Styles map[string]styleEntry `toml:"styles"`
}

type styleEntry struct {
	Font        string `toml:"font"`
	FontSize    int    `toml:"font_size"`
	TextColor   string `toml:"text_color"`   // #RRGGBB
	OutlineCol  string `toml:"outline"`      // #RRGGBB
	Background  string `toml:"background"`   // #RRGGBB, forces boxed
	OutlineSize int    `toml:"outline_size"`
	Shadow      int    `toml:"shadow"`
	MarginV     int    `toml:"margin_v"`
	Karaoke     bool   `toml:"karaoke"`
}

// LoadStylesFile merges user-defined styles into the catalog. User ids may
// shadow builtins.
func (c *Catalog) LoadStylesFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read styles file: %w", err)
	}
	var f styleFile
	if err := toml.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("parse styles file %s: %w", path, err)
	}
	for id, e := range f.Styles {
		st := baseStyle(id)
		st.Karaoke = e.Karaoke
		if e.Font != "" {
			st.FontName = e.Font
		}
		if e.FontSize > 0 {
			st.FontSize = e.FontSize
		}
		if e.TextColor != "" {
			col, err := hexToASS(e.TextColor)
			if err != nil {
				return fmt.Errorf("style %q: %w", id, err)
			}
			st.PrimaryColour = col
		}
		if e.OutlineCol != "" {
			col, err := hexToASS(e.OutlineCol)
			if err != nil {
				return fmt.Errorf("style %q: %w", id, err)
			}
			st.OutlineColour = col
		}
		if e.Background != "" {
			col, err := hexToASS(e.Background)
			if err != nil {
				return fmt.Errorf("style %q: %w", id, err)
			}
			st.BorderStyle = 3
			st.Shadow = 0
			st.OutlineColour = col
			st.BackColour = col
		}
		if e.OutlineSize > 0 {
			st.Outline = e.OutlineSize
		}
		if e.Shadow > 0 {
			st.Shadow = e.Shadow
		}
		if e.MarginV > 0 {
			st.MarginV = e.MarginV
		}
		c.styles[normalizeID(id)] = st
	}
	return nil
}
