package render

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHexColor(t *testing.T) {
	c, err := parseHexColor("#d43d2a")
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 0xd4, G: 0x3d, B: 0x2a, A: 0xff}, c)

	c, err = parseHexColor("#11223380")
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 0x11, G: 0x22, B: 0x33, A: 0x80}, c)

	_, err = parseHexColor("red")
	assert.Error(t, err)

	_, err = parseHexColor("#12")
	assert.Error(t, err)
}

func TestStyle_Validate(t *testing.T) {
	assert.NoError(t, DefaultStyle().Validate())

	s := DefaultStyle()
	s.FillOpacity = 1.5
	assert.Error(t, s.Validate())

	s = DefaultStyle()
	s.StrokeColor = "nope"
	assert.Error(t, s.Validate())

	s = DefaultStyle()
	s.StrokeWidth = -1
	assert.Error(t, s.Validate())
}

func TestStyle_FillAppliesOpacity(t *testing.T) {
	s := Style{FillColor: "#ffffff", StrokeColor: "#000000", FillOpacity: 0.5}
	fill := s.fill().(color.NRGBA)
	assert.Equal(t, uint8(127), fill.A)
}

func TestLoadStyle(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "style.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"fill_color: \"#3366cc\"\nfill_opacity: 0.3\nstroke_width: 1.5\n"), 0o644))

	s, err := LoadStyle(path)
	require.NoError(t, err)
	assert.Equal(t, "#3366cc", s.FillColor)
	assert.InDelta(t, 0.3, s.FillOpacity, 1e-9)
	assert.InDelta(t, 1.5, s.StrokeWidth, 1e-9)

	// Unspecified fields keep defaults.
	assert.Equal(t, DefaultStyle().StrokeColor, s.StrokeColor)
	assert.Equal(t, DefaultStyle().PointRadius, s.PointRadius)
}

func TestLoadStyle_Missing(t *testing.T) {
	_, err := LoadStyle(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadStyle_InvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "style.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fill_opacity: 2.0\n"), 0o644))

	_, err := LoadStyle(path)
	assert.Error(t, err)
}
