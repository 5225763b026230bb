//go:build !tinygo

package hal

import (
	"fmt"
	"os"
	"sync"
)

// Host timers: a 16-bit 32.768 kHz low-power counter (the usual RTC shape)
// and a 32-bit 1 MHz counter.
const (
	hostTimerCount = 2

	hostRTCWidth = 16
	hostRTCHz    = 32768
	hostUsWidth  = 32
	hostUsHz     = 1_000_000
)

type hostHAL struct {
	logger *hostLogger
	led    *hostLED
	fb     *hostFramebuffer
	kbd    *hostKeyboard
	t      *hostTime
	irq    Interrupts
	timers [hostTimerCount]*SoftTimer
}

// New returns a host HAL implementation.
func New() HAL {
	logger := &hostLogger{w: os.Stdout}
	h := &hostHAL{
		logger: logger,
		led:    &hostLED{logger: logger},
		fb:     newHostFramebuffer(320, 240),
		kbd:    newHostKeyboard(),
		t:      newHostTime(),
		irq:    NewInterrupts(),
	}
	h.timers[0] = NewSoftTimer(hostRTCWidth, hostRTCHz)
	h.timers[1] = NewSoftTimer(hostUsWidth, hostUsHz)
	h.t.timers = h.timers[:]
	return h
}

func (h *hostHAL) Logger() Logger         { return h.logger }
func (h *hostHAL) LED() LED               { return h.led }
func (h *hostHAL) Display() Display       { return hostDisplay{fb: h.fb} }
func (h *hostHAL) Input() Input           { return hostInput{kbd: h.kbd} }
func (h *hostHAL) Time() Time             { return h.t }
func (h *hostHAL) Interrupts() Interrupts { return h.irq }

func (h *hostHAL) Timer(id int) TimerPeripheral {
	if id < 0 || id >= len(h.timers) {
		return nil
	}
	return h.timers[id]
}

type hostDisplay struct {
	fb *hostFramebuffer
}

func (d hostDisplay) Framebuffer() Framebuffer { return d.fb }

type hostInput struct {
	kbd *hostKeyboard
}

func (in hostInput) Keyboard() Keyboard { return in.kbd }

type hostLogger struct {
	mu sync.Mutex
	w  *os.File
}

func (l *hostLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, s)
}

func (l *hostLogger) WriteLineBytes(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Write(b)
	l.w.Write([]byte{'\n'})
}

type hostLED struct {
	mu     sync.Mutex
	on     bool
	logger *hostLogger
}

func (l *hostLED) High() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.on {
		l.on = true
		l.logger.WriteLineString("led: HIGH")
	}
}

func (l *hostLED) Low() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.on {
		l.on = false
		l.logger.WriteLineString("led: LOW")
	}
}
