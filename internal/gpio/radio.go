package gpio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Pin names used in logs and in the virtual backend write log.
const (
	NameCOS    = "cos"
	NamePTT    = "ptt"
	NameLEDPwr = "led_pwr"
	NameLEDRx  = "led_rx"
	NameLEDTx  = "led_tx"
)

// Default BCM pin numbers (Pirrot board layout).
const (
	DefaultPinCOS    = 18
	DefaultPinPTT    = 23
	DefaultPinLEDPwr = 17
	DefaultPinLEDRx  = 27
	DefaultPinLEDTx  = 22
)

// RadioConfig names the five lines the controller needs.
type RadioConfig struct {
	COS    PinConfig
	PTT    PinConfig
	LEDPwr PinConfig
	LEDRx  PinConfig
	LEDTx  PinConfig
}

// Radio owns the carrier-detect input, the push-to-talk output and the three
// status LEDs. A Radio has a single owner; nothing else drives its pins.
type Radio struct {
	COS    *Pin
	PTT    *Pin
	LEDPwr *Pin
	LEDRx  *Pin
	LEDTx  *Pin

	backend Backend
}

// OpenRadio requests every pin in cfg from b. A pin configured with the wrong
// direction for its role is rejected here, before any line is requested.
// On failure every line already requested is released.
func OpenRadio(b Backend, cfg RadioConfig) (*Radio, error) {
	roles := []struct {
		cfg  PinConfig
		name string
		dir  Direction
	}{
		{cfg.COS, NameCOS, In},
		{cfg.PTT, NamePTT, Out},
		{cfg.LEDPwr, NameLEDPwr, Out},
		{cfg.LEDRx, NameLEDRx, Out},
		{cfg.LEDTx, NameLEDTx, Out},
	}
	for _, r := range roles {
		if r.cfg.Direction != r.dir {
			return nil, fmt.Errorf("%w: %s must be an %s pin, configured as %s",
				ErrInvalidOperation, r.name, r.dir, r.cfg.Direction)
		}
	}

	pins := make([]*Pin, 0, len(roles))
	for _, r := range roles {
		c := r.cfg
		c.Name = r.name
		p, err := NewPin(b, c)
		if err != nil {
			for _, opened := range pins {
				opened.Close()
			}
			return nil, err
		}
		pins = append(pins, p)
	}

	return &Radio{
		COS:     pins[0],
		PTT:     pins[1],
		LEDPwr:  pins[2],
		LEDRx:   pins[3],
		LEDTx:   pins[4],
		backend: b,
	}, nil
}

// Backend returns the backend the radio's lines came from.
func (r *Radio) Backend() Backend {
	return r.backend
}

// Carrier reports whether the carrier-detect input is active.
func (r *Radio) Carrier() (bool, error) {
	l, err := r.COS.Read()
	if err != nil {
		return false, err
	}
	return l == High, nil
}

// Reset puts the outputs in their idle state: power LED on, everything else off.
func (r *Radio) Reset() error {
	if err := r.LEDPwr.Write(High); err != nil {
		return err
	}
	for _, p := range []*Pin{r.PTT, r.LEDRx, r.LEDTx} {
		if err := p.Write(Low); err != nil {
			return err
		}
	}
	return nil
}

// Close drives every output low, then releases all lines and the backend.
func (r *Radio) Close() error {
	var errs []error
	for _, p := range []*Pin{r.PTT, r.LEDTx, r.LEDRx, r.LEDPwr} {
		if err := p.Write(Low); err != nil {
			errs = append(errs, err)
		}
	}
	for _, p := range []*Pin{r.COS, r.PTT, r.LEDPwr, r.LEDRx, r.LEDTx} {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("%w: close backend: %v", ErrHardwareIO, err))
	}
	return errors.Join(errs...)
}

// Backend selection values.
const (
	BackendAuto    = "auto"
	BackendChip    = "chip"
	BackendVirtual = "virtual"
)

// devDir is where GPIO character devices live. Tests override it.
var devDir = "/dev"

// Open selects a backend. "auto" uses the chip when its character device
// exists and falls back to the virtual backend otherwise.
func Open(kind, chip string) (Backend, error) {
	switch kind {
	case BackendVirtual:
		return NewVirtualBackend(), nil
	case BackendChip:
		return openChip(chip)
	case BackendAuto, "":
		if !chipPresent(chip) {
			return NewVirtualBackend(), nil
		}
		return openChip(chip)
	default:
		return nil, fmt.Errorf("%w: unknown gpio backend %q", ErrInvalidOperation, kind)
	}
}

func openChip(chip string) (Backend, error) {
	b, err := NewChipBackend(chip)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHardwareIO, err)
	}
	return b, nil
}

func chipPresent(chip string) bool {
	_, err := os.Stat(filepath.Join(devDir, chip))
	return err == nil
}
