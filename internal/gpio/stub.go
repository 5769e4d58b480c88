//go:build !linux

package gpio

import "errors"

// ChipBackend is not available on non-Linux platforms.
type ChipBackend struct{}

// NewChipBackend returns an error on non-Linux platforms.
func NewChipBackend(name string) (*ChipBackend, error) {
	return nil, errors.New("gpio: character device not supported on this platform (requires Linux)")
}

// Name returns an empty name.
func (b *ChipBackend) Name() string {
	return ""
}

// Request is not implemented on non-Linux platforms.
func (b *ChipBackend) Request(name string, offset int, dir Direction) (Line, error) {
	return nil, errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (b *ChipBackend) Close() error {
	return nil
}
