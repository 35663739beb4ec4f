package gpio

import (
	"fmt"

	"github.com/stianeikeland/go-rpio/v4"

	"github.com/cjeanneret/DoorSnap/internal/debug"
)

// RPiDriver drives the Raspberry Pi header through go-rpio (/dev/gpiomem).
// Pins must be set up before they are read or written.
type RPiDriver struct {
	modes map[int]PinMode
	edges map[int]bool
}

// NewRPiRealDriver maps the GPIO registers. It fails off a Raspberry Pi or
// without access to /dev/gpiomem.
func NewRPiRealDriver() (*RPiDriver, error) {
	debug.Info("Initializing real GPIO driver (go-rpio)")
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open GPIO: %w (are you running on a Raspberry Pi?)", err)
	}
	debug.Verbose("GPIO memory mapped successfully")
	return &RPiDriver{
		modes: make(map[int]PinMode),
		edges: make(map[int]bool),
	}, nil
}

func (r *RPiDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)
	p := rpio.Pin(pin)
	switch mode {
	case Input:
		p.Input()
		p.PullOff()
	case InputPullDown:
		p.Input()
		p.PullDown()
	case Output:
		p.Output()
		p.Low()
	default:
		return fmt.Errorf("unknown pin mode: %d", mode)
	}
	r.modes[pin] = mode
	return nil
}

func (r *RPiDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	if mode, ok := r.modes[pin]; !ok || mode != Output {
		return fmt.Errorf("pin %d is not set up as output", pin)
	}
	rpio.Pin(pin).Write(toState(level))
	return nil
}

func (r *RPiDriver) ReadPin(pin int) (Level, error) {
	if _, ok := r.modes[pin]; !ok {
		return Low, fmt.Errorf("pin %d is not set up", pin)
	}
	lvl := Level(rpio.Pin(pin).Read() == rpio.High)
	debug.GPIO("ReadPin", pin, lvl)
	return lvl, nil
}

// DetectRising arms the SoC edge latch on an input pin.
func (r *RPiDriver) DetectRising(pin int) error {
	if mode, ok := r.modes[pin]; !ok || mode == Output {
		return fmt.Errorf("pin %d is not set up as input", pin)
	}
	rpio.Pin(pin).Detect(rpio.RiseEdge)
	r.edges[pin] = true
	return nil
}

// RisingEdge reports whether a rising edge was latched since the last call, and clears it.
func (r *RPiDriver) RisingEdge(pin int) (bool, error) {
	if !r.edges[pin] {
		return false, fmt.Errorf("edge detection not armed on pin %d", pin)
	}
	return rpio.Pin(pin).EdgeDetected(), nil
}

// Close drives outputs LOW, disarms edge detection and leaves every pin a
// plain input before unmapping the registers.
func (r *RPiDriver) Close() error {
	debug.Trace("GPIO Close (real driver)")
	for pin, mode := range r.modes {
		p := rpio.Pin(pin)
		if mode == Output {
			p.Low()
		}
		if r.edges[pin] {
			p.Detect(rpio.NoEdge)
		}
		debug.Verbose("Resetting pin %d to input", pin)
		p.Input()
		p.PullOff()
	}
	return rpio.Close()
}

func toState(l Level) rpio.State {
	if l == High {
		return rpio.High
	}
	return rpio.Low
}
