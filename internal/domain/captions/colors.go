package captions

import (
	"fmt"
	"regexp"
	"strings"
)

var hexRGBRE = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// ValidHexRGB reports whether s is a #RRGGBB color.
func ValidHexRGB(s string) bool {
	return hexRGBRE.MatchString(s)
}

// hexToASS converts #RRGGBB into the inline ASS form &HBBGGRR&. ASS stores
// colors byte-reversed relative to HTML.
func hexToASS(s string) (string, error) {
	if !ValidHexRGB(s) {
		return "", fmt.Errorf("bad color %q, want #RRGGBB", s)
	}
	r := s[1:3]
	g := s[3:5]
	b := s[5:7]
	return "&H" + strings.ToUpper(b+g+r) + "&", nil
}

// styleColor converts an inline &HBBGGRR& value into the 8-digit &HAABBGGRR
// form used in [V4+ Styles] lines, with alpha forced opaque.
func styleColor(inline string) string {
	v := strings.TrimSuffix(strings.TrimPrefix(inline, "&H"), "&")
	for len(v) < 6 {
		v = "0" + v
	}
	if len(v) > 6 {
		v = v[len(v)-6:]
	}
	return "&H00" + strings.ToUpper(v)
}

