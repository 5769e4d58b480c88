package repeater

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDebounceRollingDeadline(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	d := NewDebounce(250 * time.Millisecond)

	d.Refresh(t0)
	assert.Equal(t, t0.Add(250*time.Millisecond), d.Deadline())
	assert.False(t, d.Expired(t0.Add(250*time.Millisecond)), "deadline itself is not past")
	assert.True(t, d.Expired(t0.Add(251*time.Millisecond)))

	d.Refresh(t0.Add(200 * time.Millisecond))
	assert.False(t, d.Expired(t0.Add(400*time.Millisecond)))
	assert.True(t, d.Expired(t0.Add(451*time.Millisecond)))
}
