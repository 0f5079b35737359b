// Package pool owns the bounded set of live decode resources. Nothing else
// in the system calls play/pause/dispose on a handle; every lifecycle
// transition goes through here.
//
// The pool is written for the single-writer model: all methods are called
// from the controller's owner goroutine, so there is no internal locking.
// Async construction results re-enter through ApplyConstructed with the
// generation stamp they captured, and stale results are discarded.
package pool

import (
	"errors"
	"log"
	"sort"
	"time"

	"reelfeed/internal/playback"
	"reelfeed/pkg/types"
)

// ErrPoolExhausted signals a broken invariant: eviction runs synchronously
// before insertion, so size can never legitimately exceed the cap.
var ErrPoolExhausted = errors.New("pool exhausted")

// Entry is one live decode resource bound to exactly one item.
type Entry struct {
	ItemID       string
	Handle       playback.Handle
	State        types.PlayState
	Gen          uint64
	LastAccessed time.Time
	Releasable   bool // marked by Release, cleared on re-acquire
}

type Pool struct {
	max     int
	entries map[string]*Entry
	gen     uint64
	now     func() time.Time
}

func New(max int) *Pool {
	if max < 1 {
		max = 1
	}
	return &Pool{
		max:     max,
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
}

func (p *Pool) Size() int { return len(p.entries) }

// Get returns the entry for itemID without touching recency.
func (p *Pool) Get(itemID string) (*Entry, bool) {
	e, ok := p.entries[itemID]
	return e, ok
}

// Acquire returns the existing entry (refreshing recency and clearing any
// release mark) or inserts a fresh Initializing entry. Eviction runs first
// when the pool is full, so insertion cannot overflow the cap; if it would
// anyway, that is a broken invariant and the caller gets ErrPoolExhausted
// after the pool force-corrects by dropping the oldest entry.
func (p *Pool) Acquire(itemID string) (*Entry, error) {
	if e, ok := p.entries[itemID]; ok {
		if e.State == types.StateDisposed {
			// a disposed entry must never be handed back out
			delete(p.entries, itemID)
		} else {
			e.LastAccessed = p.now()
			e.Releasable = false
			return e, nil
		}
	}

	for len(p.entries) >= p.max {
		if !p.evictOne("") {
			// nothing evictable: self-heal by dropping the oldest entry
			// regardless of state, then report the contract break
			p.forceEvictOldest()
			return nil, ErrPoolExhausted
		}
	}

	p.gen++
	e := &Entry{
		ItemID:       itemID,
		State:        types.StateInitializing,
		Gen:          p.gen,
		LastAccessed: p.now(),
	}
	p.entries[itemID] = e
	return e, nil
}

// ApplyConstructed delivers an async construction result. The result is
// applied only when the entry still exists and its generation matches the
// stamp captured at task start; otherwise the handle is disposed and the
// result dropped.
func (p *Pool) ApplyConstructed(itemID string, gen uint64, h playback.Handle) bool {
	e, ok := p.entries[itemID]
	if !ok || e.Gen != gen || e.State == types.StateDisposed {
		if h != nil {
			h.Dispose()
		}
		log.Printf("[pool] discarding stale construct result item=%s gen=%d", itemID, gen)
		return false
	}
	e.Handle = h
	e.State = types.StateReady
	e.LastAccessed = p.now()
	return true
}

// MarkFailed records a terminal construction failure for itemID.
func (p *Pool) MarkFailed(itemID string, gen uint64) bool {
	e, ok := p.entries[itemID]
	if !ok || e.Gen != gen || e.State == types.StateDisposed {
		return false
	}
	e.State = types.StateFailed
	return true
}

// Release marks the entry eligible for eviction. The handle stays alive so
// a rapid scroll reversal re-activates it without another construct.
func (p *Pool) Release(itemID string) {
	if e, ok := p.entries[itemID]; ok && e.State != types.StateDisposed {
		e.Releasable = true
		if e.State == types.StatePlaying {
			e.Handle.Pause()
			e.State = types.StatePaused
		}
	}
}

// SetPlaying enforces the single-Playing invariant: any other playing
// entry is paused first. The target must hold a ready handle.
func (p *Pool) SetPlaying(itemID string) bool {
	target, ok := p.entries[itemID]
	if !ok || target.Handle == nil || target.State == types.StateDisposed || target.State == types.StateFailed {
		return false
	}
	for id, e := range p.entries {
		if id != itemID && e.State == types.StatePlaying {
			e.Handle.Pause()
			e.State = types.StatePaused
		}
	}
	target.Handle.Play()
	target.State = types.StatePlaying
	target.LastAccessed = p.now()
	target.Releasable = false
	return true
}

// SetBuffering flags a playing entry as stalled. Recency is untouched:
// buffering is not user intent.
func (p *Pool) SetBuffering(itemID string) {
	if e, ok := p.entries[itemID]; ok && e.State == types.StatePlaying {
		e.State = types.StateBuffering
	}
}

// ClearBuffering returns a buffering entry to Playing.
func (p *Pool) ClearBuffering(itemID string) {
	if e, ok := p.entries[itemID]; ok && e.State == types.StateBuffering {
		e.State = types.StatePlaying
	}
}

// EvictLRU evicts least-recently-used entries until the pool is back under
// the cap. The playing (or buffering) entry is never picked even when it
// is the numerically oldest.
func (p *Pool) EvictLRU() int {
	n := 0
	for len(p.entries) > p.max {
		if !p.evictOne("") {
			break
		}
		n++
	}
	return n
}

// Evict disposes a specific entry immediately.
func (p *Pool) Evict(itemID string) bool {
	e, ok := p.entries[itemID]
	if !ok {
		return false
	}
	p.dispose(e)
	return true
}

// evictOne removes the oldest non-active entry, skipping skipID. Returns
// false when every entry is protected.
func (p *Pool) evictOne(skipID string) bool {
	var victim *Entry
	for id, e := range p.entries {
		if id == skipID || e.State == types.StatePlaying || e.State == types.StateBuffering {
			continue
		}
		if victim == nil || e.LastAccessed.Before(victim.LastAccessed) {
			victim = e
		}
	}
	if victim == nil {
		return false
	}
	p.dispose(victim)
	return true
}

func (p *Pool) forceEvictOldest() {
	var victim *Entry
	for _, e := range p.entries {
		if victim == nil || e.LastAccessed.Before(victim.LastAccessed) {
			victim = e
		}
	}
	if victim != nil {
		log.Printf("[pool] invariant break: force-evicting %s", victim.ItemID)
		p.dispose(victim)
	}
}

func (p *Pool) dispose(e *Entry) {
	log.Printf("[pool] evicting item=%s state=%s", e.ItemID, e.State)
	if e.Handle != nil {
		e.Handle.Dispose()
		e.Handle = nil
	}
	e.State = types.StateDisposed
	e.Gen = 0
	delete(p.entries, e.ItemID)
}

// Snapshot lists entries ordered by item id, for the UI boundary.
func (p *Pool) Snapshot() []types.EntryState {
	out := make([]types.EntryState, 0, len(p.entries))
	for id, e := range p.entries {
		out = append(out, types.EntryState{ItemID: id, State: e.State})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}

// Close disposes everything; used on shutdown.
func (p *Pool) Close() {
	for _, e := range p.entries {
		p.dispose(e)
	}
}

// SetNow overrides the clock; tests only.
func (p *Pool) SetNow(now func() time.Time) { p.now = now }
