// Package font selects the console font and derives terminal cell metrics
// for any tinyfont.Fonter.
package font

import (
	"errors"
	"fmt"

	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"
)

// Console is the monospace font used by the on-screen console and the
// panic screen.
//
// Concurrent access is not safe due to internal glyph reuse.
var Console tinyfont.Fonter = &proggy.TinySZ8pt7b

// Metrics are the cell dimensions of a monospace font.
type Metrics struct {
	Width  int16 // advance of one cell
	Height int16 // line height
	Offset int16 // baseline offset from the top of the cell
}

// LineMetrics scans the printable ASCII glyphs of f and returns the height of
// their union bounding box and the baseline offset from its top.
func LineMetrics(f tinyfont.Fonter) (height, offset int16, err error) {
	if f == nil {
		return 0, 0, errors.New("nil font")
	}
	minY, maxY := 0, 0
	first := true
	for r := rune(0x20); r <= 0x7e; r++ {
		info := f.GetGlyph(r).Info()
		if info.Height == 0 {
			continue
		}
		top := int(info.YOffset)
		bottom := top + int(info.Height)
		if first {
			minY, maxY = top, bottom
			first = false
			continue
		}
		minY = min(minY, top)
		maxY = max(maxY, bottom)
	}
	if first {
		return 0, 0, errors.New("no glyphs")
	}

	h := maxY - minY
	off := -minY
	if h <= 0 || off < 0 {
		return 0, 0, fmt.Errorf("invalid metrics: height=%d offset=%d", h, off)
	}
	if h > 127 || off > 127 {
		return 0, 0, fmt.Errorf("metrics too large: height=%d offset=%d", h, off)
	}
	return int16(h), int16(off), nil
}

// TerminalMetrics returns compact per-line metrics for terminal rendering.
//
// The line height is the font's YAdvance. The baseline is placed to balance
// clipping at the top and bottom of the line.
func TerminalMetrics(f tinyfont.Fonter) (Metrics, error) {
	bboxHeight, bboxOffset, err := LineMetrics(f)
	if err != nil {
		return Metrics{}, err
	}
	_, outbox := tinyfont.LineWidth(f, "0")
	if outbox == 0 {
		return Metrics{}, errors.New("zero width font")
	}

	h := int16(f.GetYAdvance())
	if h <= 0 {
		h = bboxHeight
	}
	minY := -bboxOffset
	maxY := bboxHeight - bboxOffset

	// The glyphs extend from minY to maxY around the baseline; center that
	// span in the line.
	off := (h - maxY - minY) / 2
	off = min(max(off, 0), h)
	return Metrics{Width: int16(outbox), Height: h, Offset: off}, nil
}
