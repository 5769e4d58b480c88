// Package gpio provides logical digital lines for the repeater's radio interface.
// The real backend uses the Linux GPIO character device.
// The virtual backend keeps line values in memory for tests and simulation.
package gpio

import (
	"errors"
	"fmt"
)

var (
	// ErrHardwareIO is returned when a line cannot be requested, read or written.
	ErrHardwareIO = errors.New("gpio: hardware I/O error")

	// ErrInvalidOperation is returned for writes to input lines and for pins
	// configured with the wrong direction for their role.
	ErrInvalidOperation = errors.New("gpio: invalid operation")
)

// Level is the logical level of a pin. Inversion is already applied.
type Level int

const (
	Low Level = iota
	High
)

func (l Level) String() string {
	if l == High {
		return "HIGH"
	}
	return "LOW"
}

// Direction is the configured direction of a line.
type Direction int

const (
	In Direction = iota
	Out
)

func (d Direction) String() string {
	if d == Out {
		return "out"
	}
	return "in"
}

// Line is a raw line handed out by a Backend. Values are electrical (0 or 1).
type Line interface {
	Value() (int, error)
	SetValue(v int) error

	// Close restores the line to its default state and releases it.
	Close() error
}

// Backend hands out lines by offset.
type Backend interface {
	// Name identifies the backend in logs ("gpiochip0", "virtual").
	Name() string

	// Request claims a line. Output lines start electrically low.
	Request(name string, offset int, dir Direction) (Line, error)

	// Close releases the backend itself. Lines must be closed first.
	Close() error
}

// PinConfig describes a single configured pin.
type PinConfig struct {
	Name      string
	Offset    int
	Direction Direction
	Inverted  bool
}

// Pin is a single line with a fixed direction and optional inversion.
// Callers only ever see logical levels.
type Pin struct {
	cfg  PinConfig
	line Line
}

// NewPin requests the line for cfg from the backend.
func NewPin(b Backend, cfg PinConfig) (*Pin, error) {
	line, err := b.Request(cfg.Name, cfg.Offset, cfg.Direction)
	if err != nil {
		return nil, fmt.Errorf("%w: request %s pin %d: %v", ErrHardwareIO, cfg.Name, cfg.Offset, err)
	}
	return &Pin{cfg: cfg, line: line}, nil
}

// Name returns the configured pin name.
func (p *Pin) Name() string {
	return p.cfg.Name
}

// Direction returns the configured direction.
func (p *Pin) Direction() Direction {
	return p.cfg.Direction
}

// Read returns the logical level of the line.
func (p *Pin) Read() (Level, error) {
	raw, err := p.line.Value()
	if err != nil {
		return Low, fmt.Errorf("%w: read %s: %v", ErrHardwareIO, p.cfg.Name, err)
	}
	return p.toLevel(raw), nil
}

// Write drives the line to the given logical level.
func (p *Pin) Write(l Level) error {
	if p.cfg.Direction != Out {
		return fmt.Errorf("%w: write to input pin %s", ErrInvalidOperation, p.cfg.Name)
	}
	if err := p.line.SetValue(p.toRaw(l)); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrHardwareIO, p.cfg.Name, err)
	}
	return nil
}

// Close releases the underlying line.
func (p *Pin) Close() error {
	if err := p.line.Close(); err != nil {
		return fmt.Errorf("%w: release %s: %v", ErrHardwareIO, p.cfg.Name, err)
	}
	return nil
}

func (p *Pin) toLevel(raw int) Level {
	high := raw != 0
	if p.cfg.Inverted {
		high = !high
	}
	if high {
		return High
	}
	return Low
}

func (p *Pin) toRaw(l Level) int {
	high := l == High
	if p.cfg.Inverted {
		high = !high
	}
	if high {
		return 1
	}
	return 0
}
