// Package trigger turns a doorbell button or a PIR motion sensor wired to a
// GPIO input into capture requests, and drives an optional status LED.
package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/cjeanneret/DoorSnap/internal/debug"
	"github.com/cjeanneret/DoorSnap/internal/hw/gpio"
)

// Button polls an active-HIGH input pin and reports rising edges. It serves
// both the doorbell button and the PIR motion sensor.
type Button struct {
	name     string
	gpio     gpio.Driver
	pin      int
	poll     time.Duration
	debounce time.Duration
	now      func() time.Time
	edges    gpio.EdgeDetector // nil: compare successive levels
}

// NewButton configures pin as an input with pull-down (button wired to 3V3).
// poll is the sampling period, debounce the minimum time between two presses.
func NewButton(g gpio.Driver, pin int, poll, debounce time.Duration) (*Button, error) {
	return newInput("button", g, pin, gpio.InputPullDown, poll, debounce)
}

// NewMotionSensor configures pin as a plain input for a PIR sensor, which
// drives its output itself. Each rising edge is a detection.
func NewMotionSensor(g gpio.Driver, pin int, poll, debounce time.Duration) (*Button, error) {
	return newInput("motion", g, pin, gpio.Input, poll, debounce)
}

func newInput(name string, g gpio.Driver, pin int, mode gpio.PinMode, poll, debounce time.Duration) (*Button, error) {
	if err := g.SetupPin(pin, mode); err != nil {
		return nil, fmt.Errorf("setup %s pin %d: %w", name, pin, err)
	}
	b := &Button{
		name:     name,
		gpio:     g,
		pin:      pin,
		poll:     poll,
		debounce: debounce,
		now:      time.Now,
	}
	if ed, ok := g.(gpio.EdgeDetector); ok {
		if err := ed.DetectRising(pin); err != nil {
			debug.Verbose("Trigger %s: edge detection unavailable on pin %d, polling levels: %v", name, pin, err)
		} else {
			b.edges = ed
		}
	}
	return b, nil
}

// Watch samples the pin until ctx is cancelled and calls onPress for every
// accepted press. onPress runs on the watching goroutine, so presses that
// happen while it runs are not queued.
func (b *Button) Watch(ctx context.Context, onPress func(context.Context)) error {
	debug.Info("Watching %s on pin %d (poll %v, debounce %v)", b.name, b.pin, b.poll, b.debounce)

	ticker := time.NewTicker(b.poll)
	defer ticker.Stop()

	prev := gpio.Low
	var last time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		rising, err := b.sample(&prev)
		if err != nil {
			return fmt.Errorf("read %s pin %d: %w", b.name, b.pin, err)
		}
		if !rising {
			continue
		}

		now := b.now()
		if !last.IsZero() && now.Sub(last) < b.debounce {
			debug.Verbose("Trigger %s: ignored (debounce)", b.name)
			continue
		}
		last = now
		debug.Live("Trigger %s fired", b.name)
		onPress(ctx)
	}
}

// sample reports whether a rising edge happened since the previous tick.
func (b *Button) sample(prev *gpio.Level) (bool, error) {
	if b.edges != nil {
		return b.edges.RisingEdge(b.pin)
	}
	lvl, err := b.gpio.ReadPin(b.pin)
	if err != nil {
		return false, err
	}
	rising := lvl == gpio.High && *prev == gpio.Low
	*prev = lvl
	return rising, nil
}

// StatusLED lights a GPIO output while work is in progress.
// A nil *StatusLED is valid and does nothing.
type StatusLED struct {
	gpio gpio.Driver
	pin  int
}

// NewStatusLED returns nil when pin is 0 (no LED wired).
func NewStatusLED(g gpio.Driver, pin int) (*StatusLED, error) {
	if pin == 0 {
		return nil, nil
	}
	if err := g.SetupPin(pin, gpio.Output); err != nil {
		return nil, fmt.Errorf("setup LED pin %d: %w", pin, err)
	}
	if err := g.WritePin(pin, gpio.Low); err != nil {
		return nil, err
	}
	return &StatusLED{gpio: g, pin: pin}, nil
}

// Set turns the LED on or off.
func (l *StatusLED) Set(on bool) {
	if l == nil {
		return
	}
	if err := l.gpio.WritePin(l.pin, gpio.Level(on)); err != nil {
		debug.Errorf("LED pin %d: %v", l.pin, err)
	}
}
