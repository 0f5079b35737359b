package preload

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelfeed/internal/playback"
	"reelfeed/internal/pool"
	"reelfeed/pkg/types"
)

type clock struct{ t time.Time }

func newClock() *clock {
	return &clock{t: time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)}
}
func (c *clock) now() time.Time              { return c.t }
func (c *clock) advance(d time.Duration)     { c.t = c.t.Add(d) }

func feedItems(n int) []types.Item {
	out := make([]types.Item, n)
	for i := range out {
		out[i] = types.Item{ID: fmt.Sprintf("v%d", i), SourceURL: fmt.Sprintf("https://cdn.example/v%d.mp4", i)}
	}
	return out
}

func newSched(c *clock, poolMax int) (*Scheduler, *pool.Pool) {
	p := pool.New(poolMax)
	p.SetNow(c.now)
	s := New(DefaultConfig(), p)
	s.SetNow(c.now)
	return s, p
}

// drain pumps until quiet, completing every task successfully.
func drain(t *testing.T, s *Scheduler, c *clock) []string {
	t.Helper()
	var started []string
	for i := 0; i < 50; i++ {
		task := s.Pump()
		if task == nil {
			if due := s.NextDue(); !due.IsZero() {
				c.advance(due.Sub(c.now()) + time.Millisecond)
				continue
			}
			break
		}
		started = append(started, task.ItemID)
		require.True(t, s.OnConstructSuccess(task, playback.NewStubHandle()))
	}
	return started
}

func TestWindowAroundActive(t *testing.T) {
	c := newClock()
	s, p := newSched(c, 7)
	items := feedItems(10)

	s.OnActiveIndexChanged(items, 3, false)
	started := drain(t, s, c)

	// back=1 forward=3 around index 3
	assert.ElementsMatch(t, []string{"v2", "v3", "v4", "v5", "v6"}, started)
	assert.Equal(t, 5, p.Size())
}

func TestActiveItemJumpsQueue(t *testing.T) {
	c := newClock()
	s, _ := newSched(c, 7)
	items := feedItems(10)

	s.OnActiveIndexChanged(items, 2, false)
	task := s.Pump()
	require.NotNil(t, task)
	assert.Equal(t, "v2", task.ItemID, "active item starts before any debounced prefetch")
}

func TestLowBandwidthShrinksWindow(t *testing.T) {
	c := newClock()
	s, _ := newSched(c, 7)
	items := feedItems(10)

	s.OnActiveIndexChanged(items, 5, true)
	started := drain(t, s, c)
	assert.ElementsMatch(t, []string{"v5", "v6"}, started)
}

func TestConcurrencyCapIsOne(t *testing.T) {
	c := newClock()
	s, _ := newSched(c, 7)
	items := feedItems(10)

	s.OnActiveIndexChanged(items, 3, false)
	first := s.Pump()
	require.NotNil(t, first)
	c.advance(time.Second)
	assert.Nil(t, s.Pump(), "second construct must wait for the first")

	require.True(t, s.OnConstructSuccess(first, playback.NewStubHandle()))
	assert.NotNil(t, s.Pump())
}

func TestDebounceAbsorbsFlicking(t *testing.T) {
	c := newClock()
	s, _ := newSched(c, 7)
	items := feedItems(20)

	// flick through 0→1→2 rapidly; prefetch targets keep changing
	s.OnActiveIndexChanged(items, 0, false)
	active := s.Pump() // active item is immediate
	require.NotNil(t, active)
	require.Equal(t, "v0", active.ItemID)
	require.True(t, s.OnConstructSuccess(active, playback.NewStubHandle()))

	s.OnActiveIndexChanged(items, 1, false)
	s.OnActiveIndexChanged(items, 2, false)

	// neighbors of index 0 that fell out of the new window are gone from
	// the queue; only the final window's items construct
	started := drain(t, s, c)
	for _, id := range started {
		assert.NotEqual(t, "v0", id)
	}
	assert.Contains(t, started, "v2")
	assert.Contains(t, started, "v5")
}

func TestCoalescesDuplicateRequests(t *testing.T) {
	c := newClock()
	s, _ := newSched(c, 7)
	items := feedItems(10)

	s.OnActiveIndexChanged(items, 3, false)
	s.OnActiveIndexChanged(items, 3, false)
	s.OnActiveIndexChanged(items, 3, false)

	started := drain(t, s, c)
	seenOnce := map[string]int{}
	for _, id := range started {
		seenOnce[id]++
	}
	for id, n := range seenOnce {
		assert.Equal(t, 1, n, "item %s constructed more than once", id)
	}
}

func TestRetryThenFailedTerminal(t *testing.T) {
	c := newClock()
	s, p := newSched(c, 7)
	items := feedItems(3)

	s.OnActiveIndexChanged(items, 0, false)
	boom := errors.New("decoder init failed")

	attempts := 0
	var lastTask *Task
	for i := 0; i < 20; i++ {
		task := s.Pump()
		if task == nil {
			if due := s.NextDue(); !due.IsZero() {
				c.advance(due.Sub(c.now()) + time.Millisecond)
				continue
			}
			break
		}
		if task.ItemID != "v0" {
			require.True(t, s.OnConstructSuccess(task, playback.NewStubHandle()))
			continue
		}
		attempts++
		lastTask = task
		exhausted := s.OnConstructFailure(task, boom)
		if exhausted {
			break
		}
	}

	assert.Equal(t, 3, attempts, "1 initial + 2 retries")
	require.NotNil(t, lastTask)
	e, ok := p.Get("v0")
	require.True(t, ok)
	assert.Equal(t, types.StateFailed, e.State)

	// a failed item is skipped on later window passes
	s.OnActiveIndexChanged(items, 0, false)
	for _, id := range drain(t, s, c) {
		assert.NotEqual(t, "v0", id)
	}
}

func TestOutOfWindowEntriesReleased(t *testing.T) {
	c := newClock()
	s, p := newSched(c, 7)
	items := feedItems(20)

	s.OnActiveIndexChanged(items, 1, false)
	drain(t, s, c)
	require.True(t, p.SetPlaying("v1"))

	s.OnActiveIndexChanged(items, 10, false)

	// old neighbors are release-marked, but the playing entry is not
	e0, ok := p.Get("v0")
	require.True(t, ok)
	assert.True(t, e0.Releasable)
	e1, _ := p.Get("v1")
	assert.False(t, e1.Releasable)
	assert.Equal(t, types.StatePlaying, e1.State)
}

func TestPumpRespectsDebounceClock(t *testing.T) {
	c := newClock()
	s, _ := newSched(c, 7)
	items := feedItems(10)

	s.OnActiveIndexChanged(items, 3, false)
	task := s.Pump() // active, immediate
	require.NotNil(t, task)
	require.True(t, s.OnConstructSuccess(task, playback.NewStubHandle()))

	// neighbors are debounced; nothing due yet
	assert.Nil(t, s.Pump())
	c.advance(DefaultConfig().Debounce + time.Millisecond)
	assert.NotNil(t, s.Pump())
}
