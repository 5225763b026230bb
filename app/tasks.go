package app

import (
	"errors"

	"rtk/hal"
	"rtk/internal/config"
	"rtk/kernel"
)

const workRing = 16

type taskSpec struct {
	name   string
	period uint32 // ticks
}

func (s *System) addTask(tc config.Task) error {
	period, err := s.k.MsToTicks(tc.PeriodMs)
	if err != nil {
		return err
	}
	sanity, err := s.k.MsToTicks(tc.SanityMs)
	if err != nil {
		return err
	}
	ts := &taskSpec{name: tc.Name, period: max(period, 1)}

	var fn kernel.TaskFunc
	switch tc.Kind {
	case config.KindBlink:
		fn = s.blink
	case config.KindProducer:
		fn = s.produce
	case config.KindConsumer:
		fn = s.consume
	case config.KindLocker:
		fn = s.lockLoop
	default:
		return kernel.ErrInvalid
	}
	_, err = s.k.CreateTask(kernel.TaskConfig{
		Name:           tc.Name,
		Func:           fn,
		Arg:            ts,
		Priority:       tc.Priority,
		SanityInterval: sanity,
	})
	return err
}

func (s *System) blink(ctx *kernel.Context, arg any) {
	ts := arg.(*taskSpec)
	led := s.h.LED()
	on := false
	for {
		on = !on
		if led != nil {
			setLED(led, on)
		}
		s.stats.Blinks.Add(1)
		ctx.SanityCheckin()
		s.delay(ctx, ts, ts.period)
	}
}

func setLED(led hal.LED, on bool) {
	if on {
		led.High()
	} else {
		led.Low()
	}
}

// produce posts a numbered work item every period. A ring slot still queued
// means the consumer is behind; that item is dropped.
func (s *System) produce(ctx *kernel.Context, arg any) {
	ts := arg.(*taskSpec)
	var ring [workRing]kernel.Event
	for i := range ring {
		ring[i].Func = s.handleWork
	}
	for n := uint32(0); ; n++ {
		ev := &ring[n%workRing]
		if ev.Queued() {
			s.stats.Dropped.Add(1)
		} else {
			ev.Arg = n
			s.work.Put(ev)
			s.stats.Produced.Add(1)
		}
		s.delay(ctx, ts, ts.period)
	}
}

// consume waits on the control and work queues, control first.
func (s *System) consume(ctx *kernel.Context, arg any) {
	ts := arg.(*taskSpec)
	queues := []*kernel.EventQueue{&s.ctrl, &s.work}
	for {
		ev := kernel.Poll(ctx, queues, ts.period)
		if ev == nil {
			s.log.Debug().Str("task", ts.name).Msg("no events")
		} else {
			ev.Run()
		}
		ctx.SanityCheckin()
	}
}

func (s *System) handleWork(ev *kernel.Event) {
	s.stats.Consumed.Add(1)
	if err := s.items.Release(); err != nil {
		s.log.Warn().Err(err).Msg("item release failed")
		s.stats.Dropped.Add(1)
	}
}

// lockLoop turns each consumed item into one increment of the shared counter
// under the mutex. The mutex is held across a one tick delay so lockers
// contend for it.
func (s *System) lockLoop(ctx *kernel.Context, arg any) {
	ts := arg.(*taskSpec)
	for {
		err := s.items.Pend(ctx, ts.period)
		if errors.Is(err, kernel.ErrTimeout) {
			continue
		}
		if err != nil {
			s.log.Error().Err(err).Str("task", ts.name).Msg("item wait failed")
			s.delay(ctx, ts, ts.period)
			continue
		}
		if err := s.lock.Pend(ctx, kernel.WaitForever); err != nil {
			s.log.Error().Err(err).Str("task", ts.name).Msg("lock failed")
			continue
		}
		s.shared++
		s.delay(ctx, ts, 1)
		if !s.unlock(ctx, ts) {
			continue
		}
		s.stats.Locked.Add(1)
	}
}

func (s *System) unlock(ctx *kernel.Context, ts *taskSpec) bool {
	if err := s.lock.Release(ctx); err != nil {
		s.log.Error().Err(err).Str("task", ts.name).Msg("unlock failed")
		return false
	}
	return true
}

func (s *System) delay(ctx *kernel.Context, ts *taskSpec, ticks uint32) {
	if err := ctx.Delay(ticks); err != nil {
		s.log.Error().Err(err).Str("task", ts.name).Msg("delay failed")
	}
}

// beat runs once a second on the consumer: it reports progress, checks task
// sanity and re-arms itself.
func (s *System) beat(ev *kernel.Event) {
	late := s.k.SanityCheck()
	s.stats.Late.Add(uint32(len(late)))

	uptime := s.k.Uptime()
	s.log.Info().
		Dur("uptime", uptime).
		Uint64("host_ms", s.hostMs.Load()).
		Uint32("produced", s.stats.Produced.Load()).
		Uint32("consumed", s.stats.Consumed.Load()).
		Uint32("locked", s.stats.Locked.Load()).
		Uint32("dropped", s.stats.Dropped.Load()).
		Int("late", len(late)).
		Msg("heartbeat")
	if err := s.heartbeat.Reset(s.hz); err != nil {
		s.log.Error().Err(err).Msg("heartbeat stopped")
	}
}

func (s *System) onKey(ev *kernel.Event) {
	s.stats.Keys.Add(1)
	ke, _ := ev.Arg.(hal.KeyEvent)
	s.log.Info().Uint16("code", uint16(ke.Code)).Str("rune", string(ke.Rune)).Msg("key")
	if ke.Code == hal.KeySpace || ke.Rune == 't' {
		s.logTasks()
	}
}

func (s *System) logTasks() {
	for _, ti := range s.k.Tasks() {
		s.log.Info().
			Uint8("id", uint8(ti.ID)).
			Str("name", ti.Name).
			Uint8("prio", ti.Priority).
			Stringer("state", ti.State).
			Uint32("switches", ti.Switches).
			Msg("task")
	}
}
