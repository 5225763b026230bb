//go:build !tinygo

package hal

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// HeadlessConfig controls the no-window host runner.
type HeadlessConfig struct {
	Enabled bool
	Hz      int

	// Ticks stops the runner after that many steps (0 = run forever).
	Ticks uint64

	// Simulated advances the timers by exactly one 1/Hz period per step
	// instead of by measured wall time, which makes runs reproducible.
	Simulated bool
}

// RunHeadless runs the system without opening a window.
//
// The timer pump and the application step loop run as one group: the first
// to fail (or ctx ending) stops both.
func RunHeadless(ctx context.Context, newApp func(HAL) func() error, cfg HeadlessConfig) error {
	if cfg.Hz <= 0 {
		cfg.Hz = 60
	}

	h := New().(*hostHAL)
	step := newApp(h)

	d := time.Second / time.Duration(cfg.Hz)
	if d <= 0 {
		return fmt.Errorf("invalid headless hz: %d", cfg.Hz)
	}

	g, ctx := errgroup.WithContext(ctx)
	steps := make(chan struct{}, 1)

	g.Go(func() error {
		defer close(steps)
		t := time.NewTicker(d)
		defer t.Stop()

		var n uint64
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				if cfg.Simulated {
					h.t.advance(d)
				} else {
					h.t.step()
				}
				select {
				case steps <- struct{}{}:
				default:
				}
				n++
				if cfg.Ticks > 0 && n >= cfg.Ticks {
					return nil
				}
			}
		}
	})

	g.Go(func() error {
		for range steps {
			if step == nil {
				continue
			}
			if err := step(); err != nil {
				return err
			}
		}
		return nil
	})

	return g.Wait()
}
