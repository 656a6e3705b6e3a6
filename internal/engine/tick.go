// Package engine advances a Nile settlement simulation one simulated year at
// a time and drives it in real time for the serve mode.
package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// StartYear is the simulated calendar year of tick 0 (years BCE).
const StartYear = 3500

// Engine drives a step function on a timer.
type Engine struct {
	Tick     uint64        // Completed steps
	Speed    float64       // Multiplier: 1.0 = one step per Interval, 0 = paused
	Interval time.Duration // Base step interval (default 1 second)
	MaxTicks uint64        // Stop after this many steps; 0 = unbounded

	// Step advances the model. A non-nil error stops the engine.
	Step func() error

	// OnTick is called after every successful step.
	OnTick func(tick uint64)

	// OnStop is called once when the loop exits, with the error that ended
	// it (nil on Stop or MaxTicks).
	OnStop func(tick uint64, err error)

	running atomic.Bool
	stop    chan struct{}
	speedMu sync.Mutex
}

// NewEngine creates an engine around step with default settings.
func NewEngine(step func() error) *Engine {
	return &Engine{
		Speed:    1.0,
		Interval: time.Second,
		Step:     step,
		stop:     make(chan struct{}),
	}
}

// SetSpeed changes the speed multiplier of a running loop.
func (e *Engine) SetSpeed(speed float64) {
	e.speedMu.Lock()
	e.Speed = speed
	e.speedMu.Unlock()
}

// CurrentSpeed returns the speed multiplier.
func (e *Engine) CurrentSpeed() float64 {
	e.speedMu.Lock()
	defer e.speedMu.Unlock()
	return e.Speed
}

// Running reports whether the loop is active.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Run starts the loop. Blocks until Stop is called, MaxTicks is reached, or
// a step fails.
func (e *Engine) Run() error {
	if !e.running.CompareAndSwap(false, true) {
		return fmt.Errorf("engine already running")
	}
	defer e.running.Store(false)
	slog.Info("simulation engine started", "tick", e.Tick, "speed", e.CurrentSpeed(), "interval", e.Interval)

	var err error
	for err == nil {
		if e.MaxTicks > 0 && e.Tick >= e.MaxTicks {
			break
		}
		speed := e.CurrentSpeed()
		if speed <= 0 {
			// Paused.
			if e.wait(100 * time.Millisecond) {
				break
			}
			continue
		}

		start := time.Now()
		err = e.step()

		elapsed := time.Since(start)
		target := time.Duration(float64(e.Interval) / speed)
		if err == nil && elapsed < target && e.wait(target-elapsed) {
			break
		}
	}

	if err != nil {
		slog.Error("simulation engine halted", "tick", e.Tick, "error", err)
	} else {
		slog.Info("simulation engine stopped", "tick", e.Tick)
	}
	if e.OnStop != nil {
		e.OnStop(e.Tick, err)
	}
	return err
}

// Stop halts the loop. Safe to call more than once.
func (e *Engine) Stop() {
	select {
	case <-e.stop:
	default:
		close(e.stop)
	}
}

// wait sleeps for d and reports whether Stop was called meanwhile.
func (e *Engine) wait(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-e.stop:
		return true
	case <-t.C:
		return false
	}
}

func (e *Engine) step() error {
	if e.Step != nil {
		if err := e.Step(); err != nil {
			return err
		}
	}
	e.Tick++
	if e.OnTick != nil {
		e.OnTick(e.Tick)
	}
	return nil
}

// SimTime returns a human-readable year for a tick number.
func SimTime(tick uint64) string {
	year := int64(StartYear) - int64(tick)
	if year > 0 {
		return fmt.Sprintf("Year %d (%d BCE)", tick+1, year)
	}
	return fmt.Sprintf("Year %d (%d CE)", tick+1, 1-year)
}
