// Package app assembles a running system: a kernel ticked by a hardware
// timer, the demo tasks named in the configuration, and a log console.
package app

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"rtk/hal"
	"rtk/hwtimer"
	"rtk/internal/config"
	"rtk/kernel"
	"rtk/ostick"
)

var ErrPanicked = errors.New("app: kernel panicked")

// Stats counts demo task activity.
type Stats struct {
	Blinks   atomic.Uint32
	Produced atomic.Uint32
	Consumed atomic.Uint32
	Dropped  atomic.Uint32
	Locked   atomic.Uint32
	Keys     atomic.Uint32
	Late     atomic.Uint32
}

// System is one assembled kernel instance with its demo workload.
type System struct {
	h   hal.HAL
	cfg config.Config
	log zerolog.Logger
	con *console

	k      *kernel.Kernel
	timers hwtimer.Bank
	tick   *ostick.Source
	hz     uint32 // ticks per second

	work  kernel.EventQueue // producer to consumer
	ctrl  kernel.EventQueue // heartbeat and key presses
	items kernel.Semaphore  // one token per consumed work item
	lock  kernel.Mutex      // guards shared
	// shared is only touched by the owner of lock.
	shared uint32

	heartbeat kernel.Callout
	clock     kernel.TimeChangeListener

	keys    [8]kernel.Event
	keyNext int

	hostMs atomic.Uint64
	stats  Stats
}

// New builds a system on h. Nothing runs until Start.
func New(h hal.HAL, cfg config.Config) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &System{h: h, cfg: cfg, hz: cfg.TicksPerSecond}
	s.log = s.newLogger()

	irq := h.Interrupts()
	s.k = kernel.New(kernel.Config{
		TicksPerSecond: cfg.TicksPerSecond,
		Interrupts:     irq,
		Logger:         s.log.With().Str("component", "kernel").Logger(),
	})

	p := h.Timer(cfg.Timer.ID)
	if p == nil {
		return nil, fmt.Errorf("app: no timer %d on this platform", cfg.Timer.ID)
	}
	if err := s.timers.Init(cfg.Timer.ID, p, irq); err != nil {
		return nil, fmt.Errorf("app: timer %d: %w", cfg.Timer.ID, err)
	}
	if err := s.timers.Config(cfg.Timer.ID, cfg.Timer.FreqHz); err != nil {
		return nil, fmt.Errorf("app: timer %d: %w", cfg.Timer.ID, err)
	}
	s.tick = ostick.New(s.timers.Queue(cfg.Timer.ID), s.k, cfg.CountsPerTick())
	s.tick.SetTickless(cfg.Tickless)
	s.k.SetWakeTimer(s.tick)

	s.work.Init(s.k)
	s.ctrl.Init(s.k)
	if err := s.items.InitOrdered(s.k, 0, kernel.WaitPriority); err != nil {
		return nil, err
	}
	if err := s.lock.Init(s.k); err != nil {
		return nil, err
	}
	s.heartbeat.Init(s.k, &s.ctrl, s.beat, nil)
	s.clock = kernel.TimeChangeListener{Func: s.clockChanged}
	for i := range s.keys {
		s.keys[i].Func = s.onKey
	}

	for _, tc := range cfg.Tasks {
		if err := s.addTask(tc); err != nil {
			return nil, fmt.Errorf("app: task %q: %w", tc.Name, err)
		}
	}

	installPanicHandler(h)
	return s, nil
}

// newLogger writes JSON records to the platform logger and, when the
// console is enabled, human readable lines to the framebuffer.
func (s *System) newLogger() zerolog.Logger {
	var w io.Writer = &hal.LineWriter{L: s.h.Logger()}
	if s.cfg.Console {
		s.con = newConsole(s.h.Display())
	}
	if s.con != nil {
		w = zerolog.MultiLevelWriter(w, zerolog.ConsoleWriter{
			Out:          s.con,
			NoColor:      true,
			PartsExclude: []string{zerolog.TimestampFieldName},
		})
	}
	return zerolog.New(w).Level(s.cfg.Level()).Hook(tickHook{s})
}

// tickHook stamps every record with the kernel tick.
type tickHook struct{ s *System }

func (h tickHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	if k := h.s.k; k != nil {
		e.Uint32("tick", k.Ticks())
	}
}

// Kernel returns the system's kernel.
func (s *System) Kernel() *kernel.Kernel { return s.k }

// Stats returns the live activity counters.
func (s *System) Stats() *Stats { return &s.stats }

// Logger returns the system logger.
func (s *System) Logger() *zerolog.Logger { return &s.log }

// Start syncs the wall clock, starts the tick and the scheduler, and begins
// forwarding platform input.
func (s *System) Start() error {
	if err := s.k.AddTimeChangeListener(&s.clock); err != nil {
		return err
	}
	now := time.Now()
	if err := s.k.SetWallTime(&now, nil); err != nil {
		return err
	}
	if err := s.tick.Start(); err != nil {
		return fmt.Errorf("app: tick: %w", err)
	}
	if err := s.heartbeat.Reset(s.hz); err != nil {
		return err
	}
	if err := s.k.Start(); err != nil {
		return err
	}
	go s.forwardInput()
	go s.countHostTime()

	s.log.Info().
		Int("tasks", len(s.cfg.Tasks)).
		Uint32("hz", s.hz).
		Bool("tickless", s.cfg.Tickless).
		Int("timer", s.cfg.Timer.ID).
		Msg("system started")
	return nil
}

// Step runs once per host frame.
func (s *System) Step() error {
	if kernel.InPanicMode() {
		return ErrPanicked
	}
	if s.con != nil {
		return s.con.Flush()
	}
	return nil
}

// Close stops the tick and every task.
func (s *System) Close() {
	s.tick.Stop()
	s.k.Close()
}

// forwardInput posts key presses to the control queue, the way a keyboard
// interrupt would.
func (s *System) forwardInput() {
	in := s.h.Input()
	if in == nil || in.Keyboard() == nil {
		return
	}
	events := in.Keyboard().Events()
	for {
		select {
		case <-s.k.Done():
			return
		case ke, ok := <-events:
			if !ok {
				return
			}
			if !ke.Press {
				continue
			}
			ev := &s.keys[s.keyNext]
			if ev.Queued() {
				s.stats.Dropped.Add(1)
				continue
			}
			s.keyNext = (s.keyNext + 1) % len(s.keys)
			ev.Arg = ke
			s.ctrl.Put(ev)
		}
	}
}

// countHostTime tracks real milliseconds so the heartbeat can report drift
// between the kernel tick and the platform clock.
func (s *System) countHostTime() {
	t := s.h.Time()
	if t == nil || t.Ticks() == nil {
		return
	}
	ch := t.Ticks()
	for {
		select {
		case <-s.k.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			s.hostMs.Add(1)
		}
	}
}

func (s *System) clockChanged(change *kernel.TimeChange, _ any) {
	s.log.Info().
		Time("wall", change.CurWall).
		Bool("first", change.NewlySynced).
		Msg("clock synced")
}
