package render

import (
	"image/color"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Style controls how overlay geometries are drawn. Colors are "#rrggbb" or
// "#rrggbbaa" hex strings; opacity multiplies the fill alpha.
type Style struct {
	FillColor   string  `yaml:"fill_color"`
	StrokeColor string  `yaml:"stroke_color"`
	FillOpacity float64 `yaml:"fill_opacity"`
	StrokeWidth float64 `yaml:"stroke_width"`
	PointRadius float64 `yaml:"point_radius"`
}

// DefaultStyle is a readable red-on-basemap overlay.
func DefaultStyle() Style {
	return Style{
		FillColor:   "#d43d2a",
		StrokeColor: "#7a1f14",
		FillOpacity: 0.45,
		StrokeWidth: 2,
		PointRadius: 4,
	}
}

// LoadStyle reads a YAML style file; absent fields keep default values.
func LoadStyle(path string) (Style, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Style{}, eris.Wrap(err, "render: read style file")
	}

	s := DefaultStyle()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Style{}, eris.Wrap(err, "render: parse style file")
	}
	if err := s.Validate(); err != nil {
		return Style{}, err
	}
	return s, nil
}

// Validate checks color syntax and numeric ranges.
func (s Style) Validate() error {
	if _, err := parseHexColor(s.FillColor); err != nil {
		return eris.Wrap(err, "render: fill_color")
	}
	if _, err := parseHexColor(s.StrokeColor); err != nil {
		return eris.Wrap(err, "render: stroke_color")
	}
	if s.FillOpacity < 0 || s.FillOpacity > 1 {
		return eris.Errorf("render: fill_opacity %.2f outside [0, 1]", s.FillOpacity)
	}
	if s.StrokeWidth < 0 || s.PointRadius < 0 {
		return eris.New("render: stroke_width and point_radius must be non-negative")
	}
	return nil
}

// fill returns the fill color with opacity applied, premultiplied.
func (s Style) fill() color.Color {
	c, _ := parseHexColor(s.FillColor)
	return scaleAlpha(c, s.FillOpacity)
}

// stroke returns the stroke color at full opacity.
func (s Style) stroke() color.Color {
	c, _ := parseHexColor(s.StrokeColor)
	return c
}

func parseHexColor(s string) (color.NRGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 && len(hex) != 8 {
		return color.NRGBA{}, eris.Errorf("invalid hex color %q", s)
	}

	v, err := strconv.ParseUint(hex, 16, 64)
	if err != nil {
		return color.NRGBA{}, eris.Errorf("invalid hex color %q", s)
	}

	if len(hex) == 6 {
		return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

func scaleAlpha(c color.NRGBA, opacity float64) color.NRGBA {
	if opacity < 0 {
		opacity = 0
	}
	if opacity > 1 {
		opacity = 1
	}
	c.A = uint8(float64(c.A) * opacity)
	return c
}
