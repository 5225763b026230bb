package app

import (
	"image/color"
	"sync"

	"tinygo.org/x/tinyterm"

	"rtk/hal"
	"rtk/internal/font"
)

// console is a scrolling text terminal on the framebuffer. Writes come from
// any task and from interrupt context, so the terminal is locked.
type console struct {
	mu    sync.Mutex
	d     *fbDisplay
	term  *tinyterm.Terminal
	dirty bool
}

// newConsole returns nil when the platform has no usable framebuffer.
func newConsole(disp hal.Display) *console {
	if disp == nil {
		return nil
	}
	fb := disp.Framebuffer()
	if fb == nil || fb.Format() != hal.PixelFormatRGB565 || fb.Buffer() == nil {
		return nil
	}
	m, err := font.TerminalMetrics(font.Console)
	if err != nil {
		return nil
	}

	d := newFBDisplay(fb)
	_ = d.FillRectangle(0, 0, int16(fb.Width()), int16(fb.Height()), color.RGBA{A: 255})
	term := tinyterm.NewTerminal(d)
	term.Configure(&tinyterm.Config{
		Font:              font.Console,
		FontHeight:        m.Height,
		FontOffset:        m.Offset,
		UseSoftwareScroll: true,
	})
	return &console{d: d, term: term}
}

func (c *console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty = true
	return c.term.Write(p)
}

// Flush presents the framebuffer if anything was written since the last
// flush.
func (c *console) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return nil
	}
	c.dirty = false
	return c.d.Display()
}
