package repeater

import (
	"context"
	"fmt"
	"strings"

	"github.com/sweeney/repeater/internal/config"
)

// Runner is a control loop that runs until its context is cancelled or the
// radio fails.
type Runner interface {
	Run(ctx context.Context) error
}

// ParseMode maps a configured mode name onto a strategy. An unknown name is
// a configuration error.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case config.ModeSimplexVOX:
		return ModeSimplexVOX, nil
	case config.ModeSimplexCOR:
		return ModeSimplexCOR, nil
	case config.ModeDuplexCOR:
		return ModeDuplexCOR, nil
	default:
		return 0, fmt.Errorf("%w: RX/TX mode %q not supported", config.ErrInvalid, s)
	}
}

// Dispatch builds the control loop for mode.
func Dispatch(mode Mode, d Deps, opts Options) (Runner, error) {
	opts.Mode = mode
	switch mode {
	case ModeSimplexVOX:
		return NewVOX(d, opts), nil
	case ModeSimplexCOR, ModeDuplexCOR:
		return NewController(d, opts), nil
	default:
		return nil, fmt.Errorf("%w: RX/TX mode %v not supported", config.ErrInvalid, mode)
	}
}
