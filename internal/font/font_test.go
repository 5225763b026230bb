package font

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"
	"tinygo.org/x/drivers"
	"tinygo.org/x/tinyfont"
)

// boxFont has 5x7 glyphs sitting on the baseline, except 'g' which has a
// two pixel descender.
type boxFont struct {
	yAdvance uint8
	empty    bool
}

type boxGlyph struct{ info tinyfont.GlyphInfo }

func (g boxGlyph) Draw(drivers.Displayer, int16, int16, color.RGBA) {}
func (g boxGlyph) Info() tinyfont.GlyphInfo                         { return g.info }

func (f boxFont) GetYAdvance() uint8 { return f.yAdvance }

func (f boxFont) GetGlyph(r rune) tinyfont.Glypher {
	if f.empty {
		return boxGlyph{tinyfont.GlyphInfo{Rune: r, XAdvance: 6}}
	}
	info := tinyfont.GlyphInfo{Rune: r, Width: 5, Height: 7, XAdvance: 6, YOffset: -7}
	if r == 'g' {
		info.Height = 9
	}
	return boxGlyph{info}
}

func TestLineMetrics(t *testing.T) {
	h, off, err := LineMetrics(boxFont{yAdvance: 10})
	require.NoError(t, err)
	require.Equal(t, int16(9), h)
	require.Equal(t, int16(7), off)

	_, _, err = LineMetrics(boxFont{empty: true})
	require.Error(t, err)
	_, _, err = LineMetrics(nil)
	require.Error(t, err)
}

func TestTerminalMetricsCentersGlyphs(t *testing.T) {
	m, err := TerminalMetrics(boxFont{yAdvance: 11})
	require.NoError(t, err)
	// Glyphs span -7..+2 around the baseline; a baseline at 8 leaves one
	// spare row above and one below.
	require.Equal(t, Metrics{Width: 6, Height: 11, Offset: 8}, m)

	m, err = TerminalMetrics(boxFont{})
	require.NoError(t, err)
	require.Equal(t, int16(9), m.Height, "zero YAdvance falls back to the bounding box")
}

func TestConsoleFontHasUsableMetrics(t *testing.T) {
	m, err := TerminalMetrics(Console)
	require.NoError(t, err)
	require.Positive(t, m.Width)
	require.GreaterOrEqual(t, m.Height, m.Offset)
}
