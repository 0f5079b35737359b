// Package bandwidth tracks buffering pressure and flips a low-bandwidth
// mode with hysteresis so the preload window and quality selection can
// degrade without oscillating.
package bandwidth

import (
	"log"
	"time"
)

type Adaptor struct {
	bufferEvents int           // events within window that flip low-bw on
	window       time.Duration // rolling window for buffering events
	smoothStreak int           // consecutive smooth starts that flip it off
	smoothAfter  time.Duration // starts this close to a stall do not count

	events    []time.Time // recent buffering event times
	lastStall time.Time
	streak    int
	low       bool
	now       func() time.Time
}

func New(bufferEvents int, window time.Duration, smoothStreak int, smoothAfter time.Duration) *Adaptor {
	if bufferEvents < 1 {
		bufferEvents = 1
	}
	if smoothStreak < 1 {
		smoothStreak = 1
	}
	return &Adaptor{
		bufferEvents: bufferEvents,
		window:       window,
		smoothStreak: smoothStreak,
		smoothAfter:  smoothAfter,
		now:          time.Now,
	}
}

// LowBandwidth reports the current mode.
func (a *Adaptor) LowBandwidth() bool { return a.low }

// OnBuffering records a stall. Repeated stalls inside the window flip
// low-bandwidth mode on and reset the smooth streak.
func (a *Adaptor) OnBuffering() {
	now := a.now()
	a.streak = 0
	a.lastStall = now

	cutoff := now.Add(-a.window)
	kept := a.events[:0]
	for _, t := range a.events {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	a.events = append(kept, now)

	if !a.low && len(a.events) >= a.bufferEvents {
		a.low = true
		log.Printf("[bw] low-bandwidth mode ON (%d stalls within %s)", len(a.events), a.window)
	}
}

// OnSmoothStart records a playback start with no stall inside the grace
// period. A sustained streak flips low-bandwidth mode back off; a start
// too close to the last stall is noise and is ignored.
func (a *Adaptor) OnSmoothStart() {
	if a.smoothAfter > 0 && !a.lastStall.IsZero() && a.now().Sub(a.lastStall) < a.smoothAfter {
		return
	}
	a.streak++
	if a.low && a.streak >= a.smoothStreak {
		a.low = false
		a.events = a.events[:0]
		log.Printf("[bw] low-bandwidth mode OFF (%d smooth starts)", a.streak)
	}
}

// SetNow overrides the clock; tests only.
func (a *Adaptor) SetNow(now func() time.Time) { a.now = now }
