// Package preload decides which neighbors of the active item get a decode
// resource. It runs entirely on the controller's owner goroutine: ticks
// pop work, the controller launches the actual construct task and feeds
// the result back in.
package preload

import (
	"log"
	"time"

	"reelfeed/internal/playback"
	"reelfeed/internal/pool"
	"reelfeed/pkg/types"
)

// Task is an approved construction the controller must start. At most one
// task is out at a time (construction concurrency cap).
type Task struct {
	ItemID    string
	SourceURL string
	Gen       uint64
	attempts  int
}

type request struct {
	itemID    string
	sourceURL string
	notBefore time.Time
	attempts  int
}

type Config struct {
	Back        int           // window behind the active index
	Forward     int           // window ahead of the active index
	Debounce    time.Duration // per-item settle delay before construction
	RetryDelay  time.Duration // delay between construct attempts
	MaxAttempts int           // total attempts per item (1 + retries)
}

func DefaultConfig() Config {
	return Config{Back: 1, Forward: 3, Debounce: 200 * time.Millisecond, RetryDelay: 500 * time.Millisecond, MaxAttempts: 3}
}

type Scheduler struct {
	cfg  Config
	pool *pool.Pool

	queue    []*request // FIFO; active item gets promoted to the front
	pending  map[string]*request
	inflight *Task
	now      func() time.Time
}

func New(cfg Config, p *pool.Pool) *Scheduler {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Scheduler{
		cfg:     cfg,
		pool:    p,
		pending: make(map[string]*request),
		now:     time.Now,
	}
}

// OnActiveIndexChanged recomputes the preload window around active.
// In-window items not yet pooled are queued (debounced); the active item
// jumps the queue. Pending requests that fell out of the window are
// dropped and out-of-window pool entries released.
func (s *Scheduler) OnActiveIndexChanged(items []types.Item, active int, lowBandwidth bool) {
	lo := active - s.cfg.Back
	hi := active + s.cfg.Forward
	if lowBandwidth {
		lo, hi = active, active+1
	}
	if lo < 0 {
		lo = 0
	}
	if hi > len(items)-1 {
		hi = len(items) - 1
	}

	inWindow := make(map[string]bool, hi-lo+1)
	for i := lo; i <= hi && i >= 0; i++ {
		inWindow[items[i].Key()] = true
	}

	// drop queued prefetches that scrolled out of reach
	kept := s.queue[:0]
	for _, r := range s.queue {
		if inWindow[r.itemID] {
			kept = append(kept, r)
		} else {
			delete(s.pending, r.itemID)
		}
	}
	s.queue = kept

	// release pooled entries outside the window; eviction stays LRU-driven
	for _, es := range s.pool.Snapshot() {
		if !inWindow[es.ItemID] && es.State != types.StatePlaying && es.State != types.StateBuffering {
			s.pool.Release(es.ItemID)
		}
	}

	now := s.now()
	var activeKey string
	if active >= 0 && active < len(items) {
		activeKey = items[active].Key()
	}

	for i := lo; i <= hi && i >= 0; i++ {
		it := items[i]
		key := it.Key()
		if _, ok := s.pool.Get(key); ok {
			continue // already live, settling, or terminally failed
		}
		if s.inflight != nil && s.inflight.ItemID == key {
			continue
		}
		if r, ok := s.pending[key]; ok {
			if key == activeKey {
				s.promote(r, now)
			}
			continue
		}
		r := &request{itemID: key, sourceURL: it.SourceURL, notBefore: now.Add(s.cfg.Debounce)}
		s.pending[key] = r
		if key == activeKey {
			r.notBefore = now
			s.queue = append([]*request{r}, s.queue...)
		} else {
			s.queue = append(s.queue, r)
		}
	}
}

// promote moves an already-queued request to the front and clears its
// debounce. Started constructions are never preempted.
func (s *Scheduler) promote(r *request, now time.Time) {
	r.notBefore = now
	for i, q := range s.queue {
		if q == r {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			break
		}
	}
	s.queue = append([]*request{r}, s.queue...)
}

// Pump returns the next construction to start, or nil when the single
// construct slot is busy or nothing is due yet.
func (s *Scheduler) Pump() *Task {
	if s.inflight != nil {
		return nil
	}
	now := s.now()
	for i, r := range s.queue {
		if r.notBefore.After(now) {
			continue
		}
		s.queue = append(s.queue[:i], s.queue[i+1:]...)
		delete(s.pending, r.itemID)

		e, err := s.pool.Acquire(r.itemID)
		if err != nil {
			log.Printf("[preload] acquire %s: %v", r.itemID, err)
			return nil
		}
		if e.Handle != nil {
			// resurfaced entry, nothing to construct
			return nil
		}
		s.inflight = &Task{ItemID: r.itemID, SourceURL: r.sourceURL, Gen: e.Gen, attempts: r.attempts + 1}
		return s.inflight
	}
	return nil
}

// NextDue reports when the earliest queued request becomes runnable.
// Zero time means the queue is empty.
func (s *Scheduler) NextDue() time.Time {
	var due time.Time
	for _, r := range s.queue {
		if due.IsZero() || r.notBefore.Before(due) {
			due = r.notBefore
		}
	}
	return due
}

// OnConstructSuccess applies a finished construct. Stale results (the
// entry moved on) are discarded by the pool via the generation stamp.
func (s *Scheduler) OnConstructSuccess(t *Task, h playback.Handle) bool {
	s.clearInflight(t)
	return s.pool.ApplyConstructed(t.ItemID, t.Gen, h)
}

// OnConstructFailure requeues the item or, once attempts are exhausted,
// marks it Failed. Returns true when the item is terminally failed so the
// caller can surface an error signal without blocking other items.
func (s *Scheduler) OnConstructFailure(t *Task, err error) (exhausted bool) {
	s.clearInflight(t)
	if t.attempts < s.cfg.MaxAttempts {
		log.Printf("[preload] construct %s failed (attempt %d/%d): %v", t.ItemID, t.attempts, s.cfg.MaxAttempts, err)
		r := &request{
			itemID:    t.ItemID,
			sourceURL: t.SourceURL,
			notBefore: s.now().Add(s.cfg.RetryDelay),
			attempts:  t.attempts,
		}
		// the failed entry is still Initializing in the pool; evict it so
		// the retry acquires a fresh generation
		s.pool.Evict(t.ItemID)
		s.pending[t.ItemID] = r
		s.queue = append(s.queue, r)
		return false
	}
	log.Printf("[preload] construct %s failed terminally after %d attempts: %v", t.ItemID, t.attempts, err)
	s.pool.MarkFailed(t.ItemID, t.Gen)
	return true
}

func (s *Scheduler) clearInflight(t *Task) {
	if s.inflight == t || (s.inflight != nil && s.inflight.ItemID == t.ItemID && s.inflight.Gen == t.Gen) {
		s.inflight = nil
	}
}

// SetNow overrides the clock; tests only.
func (s *Scheduler) SetNow(now func() time.Time) { s.now = now }
