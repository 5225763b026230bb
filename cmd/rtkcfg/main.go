//go:build !tinygo

// Command rtkcfg writes the default simulator configuration or checks an
// existing one.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"rtk/internal/config"
)

const defaultConfigPath = "rtk.toml"

func main() {
	var (
		outPath   string
		checkPath string
		force     bool
	)
	flag.StringVar(&outPath, "out", defaultConfigPath, "Write the default configuration here (- for stdout).")
	flag.StringVar(&checkPath, "check", "", "Validate this configuration file and print the effective settings.")
	flag.BoolVar(&force, "force", false, "Overwrite an existing output file.")
	flag.Parse()

	if checkPath != "" {
		if err := check(checkPath, os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	if outPath == "" {
		fmt.Fprintln(os.Stderr, "error: -out is required")
		os.Exit(2)
	}
	if err := writeDefault(outPath, force); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func check(path string, w io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "# %s: ok, %d counts per tick\n", path, cfg.CountsPerTick())
	return cfg.Write(w)
}

func writeDefault(path string, force bool) error {
	if path == "-" {
		return config.Default().Write(os.Stdout)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return fmt.Errorf("open %q: %w", path, err)
	}
	if err := config.Default().Write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %q: %w", path, err)
	}
	return f.Close()
}
