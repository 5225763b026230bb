package app

import (
	"time"

	"rtk/hal"
	"rtk/internal/config"
)

// framePeriod paces Step when there is no host frame loop.
const framePeriod = 50 * time.Millisecond

// NewStep builds and starts a system for the host runners, which call the
// returned step function once per frame. A system that fails to start logs
// the error and turns every step into that error.
func NewStep(cfg config.Config) func(hal.HAL) func() error {
	return func(h hal.HAL) func() error {
		s, err := New(h, cfg)
		if err == nil {
			err = s.Start()
		}
		if err != nil {
			h.Logger().WriteLineString("rtk: " + err.Error())
			return func() error { return err }
		}
		return s.Step
	}
}

// Run starts the system with cfg and blocks forever (TinyGo entrypoint).
func Run(h hal.HAL, cfg config.Config) {
	s, err := New(h, cfg)
	if err == nil {
		err = s.Start()
	}
	if err != nil {
		h.Logger().WriteLineString("rtk: " + err.Error())
		select {}
	}
	for {
		if err := s.Step(); err != nil {
			// The panic screen stays up.
			select {}
		}
		time.Sleep(framePeriod)
	}
}
