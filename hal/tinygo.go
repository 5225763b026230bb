//go:build tinygo && baremetal

package hal

import (
	"machine"
)

type tinyGoHAL struct {
	logger *uartLogger
	led    *pinLED
	fb     Framebuffer
	kbd    Keyboard
	t      *tinyGoTime
	irq    Interrupts
	timers [1]*SoftTimer
}

// New returns a Pico 2 (RP2350) HAL implementation.
//
// UART: UART0 on GP0 (TX) / GP1 (RX), 115200 8N1.
// Timer 0 is a 32-bit 1 MHz counter clocked from the runtime timebase.
func New() HAL {
	uart := machine.UART0
	uart.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       machine.GP0,
		RX:       machine.GP1,
	})

	ledPin := machine.LED
	ledPin.Configure(machine.PinConfig{Mode: machine.PinOutput})

	h := &tinyGoHAL{
		logger: &uartLogger{uart: uart},
		led:    &pinLED{pin: ledPin},
		fb:     &stubFramebuffer{w: 320, h: 240, format: PixelFormatRGB565},
		kbd:    &stubKeyboard{},
		irq:    NewInterrupts(),
	}
	h.timers[0] = NewSoftTimer(32, 1_000_000)
	h.t = newTinyGoTime(h.timers[:])
	return h
}

func (h *tinyGoHAL) Logger() Logger         { return h.logger }
func (h *tinyGoHAL) LED() LED               { return h.led }
func (h *tinyGoHAL) Display() Display       { return tinyGoDisplay{fb: h.fb} }
func (h *tinyGoHAL) Input() Input           { return tinyGoInput{kbd: h.kbd} }
func (h *tinyGoHAL) Time() Time             { return h.t }
func (h *tinyGoHAL) Interrupts() Interrupts { return h.irq }

func (h *tinyGoHAL) Timer(id int) TimerPeripheral {
	if id < 0 || id >= len(h.timers) {
		return nil
	}
	return h.timers[id]
}
