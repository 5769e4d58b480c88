//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

const consumer = "repeater"

// ChipBackend requests lines from a Linux GPIO character device.
type ChipBackend struct {
	chip *gpiocdev.Chip
}

// NewChipBackend opens the named chip (e.g. "gpiochip0").
func NewChipBackend(name string) (*ChipBackend, error) {
	chip, err := gpiocdev.NewChip(name, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", name, err)
	}
	return &ChipBackend{chip: chip}, nil
}

// Name returns the chip name.
func (b *ChipBackend) Name() string {
	return b.chip.Name
}

// Request claims a line. Inputs get a pull-down to match Pi boot defaults;
// outputs start low.
func (b *ChipBackend) Request(name string, offset int, dir Direction) (Line, error) {
	var opts []gpiocdev.LineReqOption
	if dir == Out {
		opts = append(opts, gpiocdev.AsOutput(0))
	} else {
		opts = append(opts, gpiocdev.AsInput, gpiocdev.WithPullDown)
	}
	opts = append(opts, gpiocdev.WithConsumer(consumer+":"+name))

	line, err := b.chip.RequestLine(offset, opts...)
	if err != nil {
		return nil, err
	}
	return &chipLine{line: line}, nil
}

// Close releases the chip.
func (b *ChipBackend) Close() error {
	return b.chip.Close()
}

type chipLine struct {
	line *gpiocdev.Line
}

func (l *chipLine) Value() (int, error) {
	return l.line.Value()
}

func (l *chipLine) SetValue(v int) error {
	return l.line.SetValue(v)
}

// Close reconfigures the line to input with pull-down (Pi boot default)
// before releasing it so nothing is left driven after shutdown.
func (l *chipLine) Close() error {
	var errs []error
	if err := l.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure: %w", err))
	}
	if err := l.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
