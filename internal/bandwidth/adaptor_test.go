package bandwidth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFlipsOnAfterRepeatedBuffering(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	a := New(2, 30*time.Second, 3, 5*time.Second)
	a.SetNow(func() time.Time { return now })

	a.OnBuffering()
	assert.False(t, a.LowBandwidth(), "one stall is not enough")

	now = now.Add(5 * time.Second)
	a.OnBuffering()
	assert.True(t, a.LowBandwidth())
}

func TestStallsOutsideWindowExpire(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	a := New(2, 30*time.Second, 3, 5*time.Second)
	a.SetNow(func() time.Time { return now })

	a.OnBuffering()
	now = now.Add(45 * time.Second) // first stall aged out
	a.OnBuffering()
	assert.False(t, a.LowBandwidth())
}

func TestHysteresisOffNeedsStreak(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	a := New(2, 30*time.Second, 3, 5*time.Second)
	a.SetNow(func() time.Time { return now })

	a.OnBuffering()
	a.OnBuffering()
	assert.True(t, a.LowBandwidth())

	now = now.Add(10 * time.Second) // past the grace period
	a.OnSmoothStart()
	a.OnSmoothStart()
	assert.True(t, a.LowBandwidth(), "two smooth starts are not a streak of three")
	a.OnSmoothStart()
	assert.False(t, a.LowBandwidth())
}

func TestBufferingResetsStreak(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	a := New(2, 30*time.Second, 3, 5*time.Second)
	a.SetNow(func() time.Time { return now })

	a.OnBuffering()
	a.OnBuffering()
	now = now.Add(10 * time.Second)
	a.OnSmoothStart()
	a.OnSmoothStart()
	a.OnBuffering() // streak broken
	now = now.Add(10 * time.Second)
	a.OnSmoothStart()
	a.OnSmoothStart()
	assert.True(t, a.LowBandwidth())
	a.OnSmoothStart()
	assert.False(t, a.LowBandwidth())
}

func TestSmoothStartInsideGraceIgnored(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	a := New(2, 30*time.Second, 1, 5*time.Second)
	a.SetNow(func() time.Time { return now })

	a.OnBuffering()
	a.OnBuffering()
	assert.True(t, a.LowBandwidth())

	now = now.Add(2 * time.Second)
	a.OnSmoothStart()
	assert.True(t, a.LowBandwidth(), "a start 2s after a stall is not recovery")

	now = now.Add(10 * time.Second)
	a.OnSmoothStart()
	assert.False(t, a.LowBandwidth())
}
