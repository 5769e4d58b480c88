package repeater

import "time"

// Debounce tracks a rolling deadline after which an absent carrier counts as
// released. Carrier from analog receivers chatters at the edges; a drop
// shorter than the interval never ends a transmission.
type Debounce struct {
	interval time.Duration
	deadline time.Time
}

// NewDebounce creates a Debounce with the given interval.
func NewDebounce(interval time.Duration) Debounce {
	return Debounce{interval: interval}
}

// Refresh moves the deadline to now + interval.
func (d *Debounce) Refresh(now time.Time) {
	d.deadline = now.Add(d.interval)
}

// Expired reports whether now is past the deadline.
func (d *Debounce) Expired(now time.Time) bool {
	return now.After(d.deadline)
}

// Deadline returns the current deadline.
func (d *Debounce) Deadline() time.Time {
	return d.deadline
}
