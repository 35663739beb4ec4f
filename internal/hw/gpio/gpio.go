package gpio

import (
	"sync"

	"github.com/cjeanneret/DoorSnap/internal/debug"
)

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "HIGH"
	}
	return "LOW"
}

// PinMode indicates whether a GPIO is input or output.
type PinMode int

const (
	Input PinMode = iota
	Output
	InputPullDown // input with the internal pull-down enabled (button to 3V3)
)

// Driver defines the abstract interface for controlling GPIOs.
// This allows plugging in a real Raspberry Pi implementation
// or a mock for development on PC.
type Driver interface {
	SetupPin(pin int, mode PinMode) error
	WritePin(pin int, level Level) error
	ReadPin(pin int) (Level, error)
	Close() error
}

// EdgeDetector is implemented by drivers that can latch rising edges, so a
// press shorter than the polling period is still seen.
type EdgeDetector interface {
	DetectRising(pin int) error
	RisingEdge(pin int) (bool, error)
}

// MockDriver is an in-memory implementation: reads return the last level
// written or injected with Set. Used for development on PC or testing.
type MockDriver struct {
	mu      sync.Mutex
	levels  map[int]Level
	armed   map[int]bool
	latched map[int]bool
}

// NewDriver creates a GPIO driver based on the chosen mode.
// If mock is true, returns a MockDriver (for dev/test).
// If mock is false, returns a real RPiDriver (for Raspberry Pi).
func NewDriver(mock bool) (Driver, error) {
	if mock {
		debug.Info("Using MOCK GPIO driver (development mode)")
		return &MockDriver{}, nil
	}
	return NewRPiRealDriver()
}

// Set forces the level seen by ReadPin, e.g. to simulate a button press.
func (m *MockDriver) Set(pin int, level Level) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.levels == nil {
		m.levels = make(map[int]Level)
	}
	if m.armed[pin] && level == High && m.levels[pin] == Low {
		m.latched[pin] = true
	}
	m.levels[pin] = level
}

func (m *MockDriver) DetectRising(pin int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.armed == nil {
		m.armed = make(map[int]bool)
		m.latched = make(map[int]bool)
	}
	m.armed[pin] = true
	return nil
}

func (m *MockDriver) RisingEdge(pin int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	edge := m.latched[pin]
	delete(m.latched, pin)
	return edge, nil
}

func (m *MockDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)
	return nil
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	m.Set(pin, level)
	return nil
}

func (m *MockDriver) ReadPin(pin int) (Level, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	debug.GPIO("ReadPin", pin, m.levels[pin])
	return m.levels[pin], nil
}

func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock)")
	return nil
}
