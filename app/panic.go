package app

import (
	"fmt"
	"image/color"
	"strings"
	"unicode/utf8"

	"tinygo.org/x/tinyfont"

	"rtk/hal"
	"rtk/internal/font"
	"rtk/kernel"
)

// installPanicHandler reports a kernel panic on the platform logger and on
// the framebuffer. The kernel panics once the handler returns.
func installPanicHandler(h hal.HAL) {
	kernel.SetPanicHandler(func(info kernel.PanicInfo) {
		lines := panicLines(info)
		if l := h.Logger(); l != nil {
			for _, line := range lines {
				l.WriteLineString(line)
			}
		}
		if disp := h.Display(); disp != nil {
			drawPanic(disp.Framebuffer(), lines)
		}
	})
}

func panicLines(info kernel.PanicInfo) []string {
	lines := []string{
		"rtk panic:",
		fmt.Sprintf("task: %d %s", info.TaskID, info.Task),
		fmt.Sprintf("panic: %v", info.Value),
	}
	if len(info.Stack) == 0 {
		return append(lines, "stack: unavailable")
	}
	lines = append(lines, "stack:")
	for _, line := range strings.Split(string(info.Stack), "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// drawPanic paints lines black on white, wrapping long lines and dropping
// whatever does not fit.
func drawPanic(fb hal.Framebuffer, lines []string) {
	if fb == nil {
		return
	}
	m, err := font.TerminalMetrics(font.Console)
	if err != nil {
		return
	}
	fb.ClearRGB(255, 255, 255)

	d := newFBDisplay(fb)
	fg := color.RGBA{A: 255}
	cols := max(int16(fb.Width())/m.Width, 1)
	maxH := int16(fb.Height())

	y := int16(0)
	for _, line := range lines {
		for len(line) > 0 {
			if y+m.Height > maxH {
				_ = fb.Present()
				return
			}
			chunk, rest := takeRunes(line, cols)
			x := int16(0)
			for _, r := range chunk {
				tinyfont.DrawChar(d, font.Console, x, y+m.Offset, r, fg)
				x += m.Width
			}
			y += m.Height
			line = strings.TrimLeft(rest, " ")
		}
	}
	_ = fb.Present()
}

func takeRunes(s string, n int16) (prefix, rest string) {
	if n <= 0 || s == "" {
		return "", s
	}
	i := 0
	for count := int16(0); i < len(s) && count < n; count++ {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return s[:i], s[i:]
}
