//go:build tinygo && baremetal

package main

import (
	"rtk/app"
	"rtk/hal"
	"rtk/internal/config"
)

func main() {
	cfg := config.Default()
	// The board's only timer is the 1 MHz runtime counter.
	cfg.Timer = config.Timer{ID: 0, FreqHz: 1_000_000}
	cfg.Console = false
	app.Run(hal.New(), cfg)
}
