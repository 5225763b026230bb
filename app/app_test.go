package app

import (
	"bytes"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"rtk/hal"
	"rtk/internal/config"
	"rtk/kernel"
)

const waitTimeout = 5 * time.Second

type testLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *testLogger) WriteLineString(s string) {
	l.mu.Lock()
	l.lines = append(l.lines, s)
	l.mu.Unlock()
}

func (l *testLogger) WriteLineBytes(b []byte) { l.WriteLineString(string(b)) }

func (l *testLogger) contains(sub string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, sub) {
			return true
		}
	}
	return false
}

type testLED struct{ toggles atomic.Int32 }

func (l *testLED) High() { l.toggles.Add(1) }
func (l *testLED) Low()  { l.toggles.Add(1) }

type testFB struct {
	w, h int
	buf  []byte
}

func (f *testFB) Width() int              { return f.w }
func (f *testFB) Height() int             { return f.h }
func (f *testFB) Format() hal.PixelFormat { return hal.PixelFormatRGB565 }
func (f *testFB) StrideBytes() int        { return f.w * 2 }
func (f *testFB) Buffer() []byte          { return f.buf }
func (f *testFB) Present() error          { return nil }
func (f *testFB) ClearRGB(r, g, b uint8) {
	p := rgb565FromRGB(r, g, b)
	for i := 0; i+1 < len(f.buf); i += 2 {
		f.buf[i], f.buf[i+1] = byte(p), byte(p>>8)
	}
}

func rgb565FromRGB(r, g, b uint8) uint16 {
	return uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3)
}

func (f *testFB) lit() int {
	n := 0
	for _, b := range f.buf {
		if b != 0 {
			n++
		}
	}
	return n
}

type testKeyboard struct{ ch chan hal.KeyEvent }

func (k testKeyboard) Events() <-chan hal.KeyEvent { return k.ch }

type testHAL struct {
	log   *testLogger
	led   *testLED
	fb    *testFB
	kbd   testKeyboard
	irq   hal.Interrupts
	timer *hal.SoftTimer
}

func newTestHAL() *testHAL {
	return &testHAL{
		log:   &testLogger{},
		led:   &testLED{},
		fb:    &testFB{w: 160, h: 120, buf: make([]byte, 160*120*2)},
		kbd:   testKeyboard{ch: make(chan hal.KeyEvent, 4)},
		irq:   hal.NewInterrupts(),
		timer: hal.NewSoftTimer(32, 1_000_000),
	}
}

func (h *testHAL) Logger() hal.Logger           { return h.log }
func (h *testHAL) LED() hal.LED                 { return h.led }
func (h *testHAL) Display() hal.Display         { return h }
func (h *testHAL) Framebuffer() hal.Framebuffer { return h.fb }
func (h *testHAL) Input() hal.Input             { return h }
func (h *testHAL) Keyboard() hal.Keyboard       { return h.kbd }
func (h *testHAL) Time() hal.Time               { return nil }
func (h *testHAL) Interrupts() hal.Interrupts   { return h.irq }

func (h *testHAL) Timer(id int) hal.TimerPeripheral {
	if id != 0 {
		return nil
	}
	return h.timer
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Timer.FreqHz = 1_000_000
	cfg.LogLevel = "debug"
	return cfg
}

func startSystem(t *testing.T, cfg config.Config) (*System, *testHAL) {
	t.Helper()
	h := newTestHAL()
	s, err := New(h, cfg)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.Start())
	return s, h
}

// advance runs ms milliseconds of timer counts.
func (h *testHAL) advance(ms uint32) { h.timer.Step(ms * 1000) }

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.TicksPerSecond = 0
	_, err := New(newTestHAL(), cfg)
	require.Error(t, err)

	cfg = testConfig()
	cfg.Timer.ID = 3
	_, err = New(newTestHAL(), cfg)
	require.ErrorContains(t, err, "no timer 3")
}

func TestWorkloadMakesProgress(t *testing.T) {
	for _, tickless := range []bool{false, true} {
		name := "periodic"
		if tickless {
			name = "tickless"
		}
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Tickless = tickless
			s, h := startSystem(t, cfg)

			st := s.Stats()
			require.Eventually(t, func() bool {
				h.advance(10)
				return st.Consumed.Load() >= 3 && st.Locked.Load() >= 3 && st.Blinks.Load() >= 3
			}, waitTimeout, time.Millisecond)

			require.Positive(t, h.led.toggles.Load())
			require.LessOrEqual(t, st.Consumed.Load(), st.Produced.Load())
		})
	}
}

func TestHeartbeatLogsAndConsoleDraws(t *testing.T) {
	s, h := startSystem(t, testConfig())
	require.True(t, s.Kernel().WallTimeSet())
	require.True(t, h.log.contains("clock synced"))

	require.Eventually(t, func() bool {
		h.advance(20)
		return h.log.contains(`"message":"heartbeat"`)
	}, waitTimeout, time.Millisecond)

	require.NoError(t, s.Step())
	require.Positive(t, h.fb.lit())
}

func TestKeyPressDumpsTasks(t *testing.T) {
	s, h := startSystem(t, testConfig())

	h.kbd.ch <- hal.KeyEvent{Code: hal.KeySpace, Press: true}
	h.kbd.ch <- hal.KeyEvent{Code: hal.KeySpace, Press: false}
	require.Eventually(t, func() bool {
		h.advance(5)
		return s.Stats().Keys.Load() == 1
	}, waitTimeout, time.Millisecond)
	require.Eventually(t, func() bool {
		return h.log.contains(`"name":"consumer"`) && h.log.contains(`"name":"idle"`)
	}, waitTimeout, time.Millisecond)
}

func TestPanicScreen(t *testing.T) {
	fb := &testFB{w: 120, h: 40, buf: make([]byte, 120*40*2)}
	lines := panicLines(kernel.PanicInfo{TaskID: 3, Task: "worker", Value: "boom"})
	require.Equal(t, []string{"rtk panic:", "task: 3 worker", "panic: boom", "stack: unavailable"}, lines)

	drawPanic(fb, append(lines, strings.Repeat("x", 200)))
	// White background with black text.
	require.Positive(t, fb.lit())
	require.Less(t, fb.lit(), len(fb.buf))
}

func TestTakeRunes(t *testing.T) {
	prefix, rest := takeRunes("héllo", 2)
	require.Equal(t, "hé", prefix)
	require.Equal(t, "llo", rest)

	prefix, rest = takeRunes("ab", 5)
	require.Equal(t, "ab", prefix)
	require.Empty(t, rest)
}

func TestUnlockFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	s := &System{log: zerolog.New(&buf)}

	require.False(t, s.unlock(nil, &taskSpec{name: "locker-a"}))
	require.Contains(t, buf.String(), `"message":"unlock failed"`)
	require.Contains(t, buf.String(), `"task":"locker-a"`)
	require.Contains(t, buf.String(), kernel.ErrInvalid.Error())
}
