package playback

import (
	"context"
	"errors"
	"sync"
	"time"
)

// StubEngine is the test double for Engine. Constructions succeed
// immediately unless scripted otherwise.
type StubEngine struct {
	mu          sync.Mutex
	FailFor     map[string]int // sourceURL -> remaining failures
	Latency     time.Duration
	Constructs  []string // order of construct calls observed
	inflight    int
	maxInflight int
}

var ErrStubConstruct = errors.New("stub construct failure")

func NewStubEngine() *StubEngine {
	return &StubEngine{FailFor: make(map[string]int)}
}

func (e *StubEngine) Construct(ctx context.Context, sourceURL string) (Handle, error) {
	e.mu.Lock()
	e.Constructs = append(e.Constructs, sourceURL)
	e.inflight++
	if e.inflight > e.maxInflight {
		e.maxInflight = e.inflight
	}
	latency := e.Latency
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.inflight--
		e.mu.Unlock()
	}()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	e.mu.Lock()
	if n := e.FailFor[sourceURL]; n > 0 {
		e.FailFor[sourceURL] = n - 1
		e.mu.Unlock()
		return nil, ErrStubConstruct
	}
	e.mu.Unlock()

	return NewStubHandle(), nil
}

// MaxInflight reports the highest concurrent construct count observed.
func (e *StubEngine) MaxInflight() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxInflight
}

func (e *StubEngine) ConstructCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Constructs)
}

// StubHandle records lifecycle calls.
type StubHandle struct {
	mu       sync.Mutex
	Playing  bool
	Disposed bool
	Position float64
	onBuffer func()
	onEnded  func()
}

func NewStubHandle() *StubHandle { return &StubHandle{} }

func (h *StubHandle) Play() {
	h.mu.Lock()
	h.Playing = true
	h.mu.Unlock()
}

func (h *StubHandle) Pause() {
	h.mu.Lock()
	h.Playing = false
	h.mu.Unlock()
}

func (h *StubHandle) Seek(pos float64) {
	h.mu.Lock()
	h.Position = pos
	h.mu.Unlock()
}

func (h *StubHandle) Dispose() {
	h.mu.Lock()
	h.Playing = false
	h.Disposed = true
	h.mu.Unlock()
}

func (h *StubHandle) OnBuffering(cb func()) { h.mu.Lock(); h.onBuffer = cb; h.mu.Unlock() }
func (h *StubHandle) OnEnded(cb func())     { h.mu.Lock(); h.onEnded = cb; h.mu.Unlock() }

// FireBuffering simulates a stall signal from the decoder.
func (h *StubHandle) FireBuffering() {
	h.mu.Lock()
	cb := h.onBuffer
	h.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// FireEnded simulates natural end of playback.
func (h *StubHandle) FireEnded() {
	h.mu.Lock()
	cb := h.onEnded
	h.mu.Unlock()
	if cb != nil {
		cb()
	}
}
