//go:build !tinygo

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"rtk/app"
	"rtk/hal"
	"rtk/internal/buildinfo"
	"rtk/internal/config"
)

func main() {
	var hcfg hal.HeadlessConfig
	var cfgPath string
	var tickless, version bool
	flag.BoolVar(&hcfg.Enabled, "headless", false, "Run without a window.")
	flag.IntVar(&hcfg.Hz, "hz", 60, "Frame rate in headless mode.")
	flag.Uint64Var(&hcfg.Ticks, "ticks", 0, "Stop after N frames in headless mode (0 = run forever).")
	flag.BoolVar(&hcfg.Simulated, "simulated", false, "Advance the timers by exactly one frame per step.")
	flag.StringVar(&cfgPath, "config", "rtk.toml", "Configuration file (defaults apply when missing).")
	flag.BoolVar(&tickless, "tickless", false, "Force tickless mode on.")
	flag.BoolVar(&version, "version", false, "Print the build version and exit.")
	flag.Parse()

	if version {
		fmt.Println("rtk", buildinfo.Short(), buildinfo.Commit, buildinfo.Date)
		return
	}

	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if tickless {
		cfg.Tickless = true
	}

	if hcfg.Enabled {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		if err := hal.RunHeadless(ctx, app.NewStep(cfg), hcfg); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := hal.RunWindow(app.NewStep(cfg)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
