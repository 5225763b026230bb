// Package config loads the simulator configuration from TOML.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
)

// Task kinds understood by the app.
const (
	KindBlink    = "blink"
	KindProducer = "producer"
	KindConsumer = "consumer"
	KindLocker   = "locker"
)

const (
	maxTasks     = 31 // kernel.MaxTasks minus the idle task
	idlePriority = 255
)

// Timer selects the hardware timer that produces the kernel tick.
type Timer struct {
	ID     int    `toml:"id"`
	FreqHz uint32 `toml:"freq_hz"`
}

// Task is one demo task.
type Task struct {
	Name     string `toml:"name"`
	Kind     string `toml:"kind"`
	Priority uint8  `toml:"priority"`

	// PeriodMs is the task's work period.
	PeriodMs uint32 `toml:"period_ms"`

	// SanityMs, if non-zero, is the task's sanity check-in interval.
	SanityMs uint32 `toml:"sanity_ms,omitempty"`
}

// Config is the simulator configuration.
type Config struct {
	TicksPerSecond uint32 `toml:"ticks_per_second"`
	Tickless       bool   `toml:"tickless"`
	LogLevel       string `toml:"log_level"`

	// Console mirrors the log onto the framebuffer.
	Console bool `toml:"console"`

	Timer Timer  `toml:"timer"`
	Tasks []Task `toml:"task"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		TicksPerSecond: 1000,
		Tickless:       true,
		LogLevel:       "info",
		Console:        true,
		Timer:          Timer{ID: 0, FreqHz: 32768},
		Tasks: []Task{
			{Name: "blink", Kind: KindBlink, Priority: 20, PeriodMs: 500, SanityMs: 2000},
			{Name: "producer", Kind: KindProducer, Priority: 10, PeriodMs: 250},
			{Name: "consumer", Kind: KindConsumer, Priority: 5, PeriodMs: 1000, SanityMs: 3000},
			{Name: "locker-a", Kind: KindLocker, Priority: 12, PeriodMs: 300},
			{Name: "locker-b", Kind: KindLocker, Priority: 14, PeriodMs: 700},
		},
	}
}

// Load reads path over the defaults. Keys the file sets replace the default
// values; a [[task]] list replaces the default task list.
func Load(path string) (Config, error) {
	cfg := Default()
	cfg.Tasks = nil
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("config: decode %q: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return Config{}, fmt.Errorf("config: %q: unknown keys %s", path, strings.Join(keys, ", "))
	}
	if !md.IsDefined("task") {
		cfg.Tasks = Default().Tasks
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %q: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads path, or returns Default when path is empty or the
// file does not exist.
func LoadOrDefault(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return Load(path)
}

// Validate reports every problem with c.
func (c Config) Validate() error {
	var errs []error
	if c.TicksPerSecond == 0 {
		errs = append(errs, errors.New("ticks_per_second must be positive"))
	}
	if c.Timer.ID < 0 {
		errs = append(errs, fmt.Errorf("timer.id %d out of range", c.Timer.ID))
	}
	if c.Timer.FreqHz < c.TicksPerSecond {
		errs = append(errs, fmt.Errorf("timer.freq_hz %d below ticks_per_second %d", c.Timer.FreqHz, c.TicksPerSecond))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if len(c.Tasks) > maxTasks {
		errs = append(errs, fmt.Errorf("%d tasks, at most %d", len(c.Tasks), maxTasks))
	}

	seen := make(map[string]bool, len(c.Tasks))
	for i, t := range c.Tasks {
		switch {
		case t.Name == "":
			errs = append(errs, fmt.Errorf("task %d: missing name", i))
		case seen[t.Name]:
			errs = append(errs, fmt.Errorf("task %q: duplicate name", t.Name))
		}
		seen[t.Name] = true

		switch t.Kind {
		case KindBlink, KindProducer, KindConsumer, KindLocker:
		default:
			errs = append(errs, fmt.Errorf("task %q: unknown kind %q", t.Name, t.Kind))
		}
		if t.Priority == idlePriority {
			errs = append(errs, fmt.Errorf("task %q: priority %d is reserved", t.Name, idlePriority))
		}
		if t.PeriodMs == 0 {
			errs = append(errs, fmt.Errorf("task %q: period_ms must be positive", t.Name))
		}
	}
	return errors.Join(errs...)
}

// Level returns the parsed log level, defaulting to info.
func (c Config) Level() zerolog.Level {
	l, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return l
}

// CountsPerTick returns the timer counts in one kernel tick, rounded down.
func (c Config) CountsPerTick() uint32 {
	if c.TicksPerSecond == 0 {
		return 0
	}
	return c.Timer.FreqHz / c.TicksPerSecond
}

// Write encodes c as TOML.
func (c Config) Write(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}
