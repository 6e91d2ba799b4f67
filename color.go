package remix

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// A Color represents an RGB color triple as used by material parameters,
// with each component expected to range from 0 to 1.
type Color struct {
	R, G, B float64
}

// NewColor returns a new Color with the provided R, G, and B components.
func NewColor(r, g, b float64) Color {
	return Color{r, g, b}
}

// ParseColor parses a canonical "color(r, g, b)" string or a bare
// "(r, g, b)" tuple string into a Color. The second return value reports
// whether the string was a parseable color.
func ParseColor(s string) (Color, bool) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "color(") && strings.HasSuffix(s, ")") {
		s = s[len("color(") : len(s)-1]
	} else if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = s[1 : len(s)-1]
	} else {
		return Color{}, false
	}

	parts := strings.Split(s, ",")
	if len(parts) < 3 {
		return Color{}, false
	}

	comps := [3]float64{}
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return Color{}, false
		}
		comps[i] = v
	}

	return Color{comps[0], comps[1], comps[2]}, true
}

// String formats the Color in the canonical "color(r, g, b)" form used by
// the target material schema.
func (color Color) String() string {
	return fmt.Sprintf("color(%s, %s, %s)", formatFloat(color.R), formatFloat(color.G), formatFloat(color.B))
}

// IsBlack returns true if all three components are (near) zero.
func (color Color) IsBlack() bool {
	const eps = 0.001
	return math.Abs(color.R) < eps && math.Abs(color.G) < eps && math.Abs(color.B) < eps
}

// Equals returns true if the Color is component-wise equal to the other
// Color within a small epsilon.
func (color Color) Equals(other Color) bool {
	const eps = 0.001
	return math.Abs(color.R-other.R) < eps && math.Abs(color.G-other.G) < eps && math.Abs(color.B-other.B) < eps
}

// ToLinear converts the Color from sRGB to linear space.
func (color Color) ToLinear() Color {
	conv := func(c float64) float64 {
		if c <= 0.04045 {
			return c / 12.92
		}
		return math.Pow((c+0.055)/1.055, 2.4)
	}
	return Color{conv(color.R), conv(color.G), conv(color.B)}
}

// ToSRGB converts the Color from linear to sRGB space.
func (color Color) ToSRGB() Color {
	conv := func(c float64) float64 {
		if c <= 0.0031308 {
			return c * 12.92
		}
		return 1.055*math.Pow(c, 1/2.4) - 0.055
	}
	return Color{conv(color.R), conv(color.G), conv(color.B)}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
