// Package feedctl is the top-level orchestrator: cold-start restore,
// deep-link resolution, the ranking pass, active index transitions, and
// driving the preload scheduler.
//
// All state lives behind a single owner goroutine. External calls and
// async task completions enter as typed messages on one channel; fetches,
// constructions and persistence writes run as goroutines that never touch
// shared state directly.
package feedctl

import (
	"context"
	"log"
	"sync"
	"time"

	"reelfeed/internal/bandwidth"
	"reelfeed/internal/feed"
	"reelfeed/internal/playback"
	"reelfeed/internal/pool"
	"reelfeed/internal/preload"
	"reelfeed/internal/resume"
	"reelfeed/pkg/types"
)

// Phase is the cold-start state machine position.
type Phase string

const (
	PhaseColdStart        Phase = "cold_start"
	PhaseResolvingTarget  Phase = "resolving_target"
	PhaseRanking          Phase = "ranking"
	PhasePositionVerified Phase = "position_verified"
	PhaseStreaming        Phase = "streaming"
)

// PlaybackEventKind is what the playback boundary reports back.
type PlaybackEventKind string

const (
	EventBuffering   PlaybackEventKind = "buffering"
	EventSmoothStart PlaybackEventKind = "smooth"
	EventEnded       PlaybackEventKind = "ended"
)

type Config struct {
	ProfileID        string
	PageSize         int
	WindowMax        int
	PrefetchMargin   int // fetch the next page when this close to the end
	ConstructTimeout time.Duration
	Preload          preload.Config
	TickEvery        time.Duration
}

func DefaultConfig() Config {
	return Config{
		ProfileID:        "local",
		PageSize:         10,
		WindowMax:        120,
		PrefetchMargin:   5,
		ConstructTimeout: 15 * time.Second,
		Preload:          preload.DefaultConfig(),
		TickEvery:        50 * time.Millisecond,
	}
}

type Controller struct {
	cfg    Config
	source feed.Source
	engine playback.Engine
	store  *resume.Store

	pool   *pool.Pool
	sched  *preload.Scheduler
	bw     *bandwidth.Adaptor
	window *feed.Window

	phase        Phase
	seen         map[string]bool
	pinKey       string
	page         int
	hasMore      bool
	notice       string
	pageInFlight bool

	msgs     chan message
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	subs     []chan types.Snapshot
	runCtx   context.Context
	cancel   context.CancelFunc
}

// message is anything the owner loop consumes.
type message interface{ apply(c *Controller) }

func New(cfg Config, src feed.Source, eng playback.Engine, store *resume.Store, p *pool.Pool, bw *bandwidth.Adaptor) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		cfg:    cfg,
		source: src,
		engine: eng,
		store:  store,
		pool:   p,
		sched:  preload.New(cfg.Preload, p),
		bw:     bw,
		window: feed.NewWindow(cfg.WindowMax),
		phase:  PhaseColdStart,
		seen:   make(map[string]bool),
		msgs:   make(chan message, 64),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		runCtx: ctx,
		cancel: cancel,
	}
	go c.run()
	return c
}

func (c *Controller) run() {
	defer close(c.done)
	tick := time.NewTicker(c.cfg.TickEvery)
	defer tick.Stop()
	for {
		select {
		case <-c.quit:
			c.pool.Close()
			return
		case m := <-c.msgs:
			m.apply(c)
			c.pump()
			c.publish()
		case <-tick.C:
			c.pump()
		}
	}
}

// Close stops the owner loop and disposes the pool.
func (c *Controller) Close() {
	c.stopOnce.Do(func() {
		c.cancel()
		close(c.quit)
	})
	<-c.done
}

func (c *Controller) post(m message) {
	select {
	case <-c.quit:
		return
	default:
	}
	select {
	case c.msgs <- m:
	case <-c.quit:
	}
}

// ---- public API (thin message posters) ----

// Start kicks off cold start. deepLinkID is the navigation target, empty
// for a plain feed open.
func (c *Controller) Start(deepLinkID string) { c.post(cmdStart{deepLinkID}) }

// SetActiveIndex is the scroll signal from the client.
func (c *Controller) SetActiveIndex(i int) { c.post(cmdSetActive{i}) }

// MarkSeen records that an item met the dwell threshold.
func (c *Controller) MarkSeen(itemID string) { c.post(cmdMarkSeen{itemID}) }

// PlaybackEvent feeds decoder-side signals into the bandwidth adaptor and
// pool state.
func (c *Controller) PlaybackEvent(itemID string, kind PlaybackEventKind) {
	c.post(cmdPlayback{itemID, kind})
}

// Background persists the resume record; called when the client loses
// foreground.
func (c *Controller) Background() { c.post(cmdBackground{}) }

// Flush persists the resume record and returns only once the write has
// finished. Shutdown calls it before closing the store's DB; Background
// is fire-and-forget and cannot order against that close.
func (c *Controller) Flush() {
	done := make(chan struct{})
	c.post(cmdFlush{done})
	select {
	case <-done:
	case <-c.done:
	}
}

// Snapshot returns the current typed state.
func (c *Controller) Snapshot() types.Snapshot {
	reply := make(chan types.Snapshot, 1)
	c.post(cmdSnapshot{reply})
	select {
	case s := <-reply:
		return s
	case <-c.done:
		return types.Snapshot{}
	}
}

// Subscribe registers a UI sink. The returned cancel removes it. Slow
// consumers miss intermediate snapshots rather than blocking the loop.
func (c *Controller) Subscribe() (<-chan types.Snapshot, func()) {
	ch := make(chan types.Snapshot, 8)
	c.post(cmdSubscribe{ch})
	return ch, func() { c.post(cmdUnsubscribe{ch}) }
}

// ---- commands ----

type cmdStart struct{ deepLinkID string }
type cmdSetActive struct{ index int }
type cmdMarkSeen struct{ itemID string }
type cmdPlayback struct {
	itemID string
	kind   PlaybackEventKind
}
type cmdBackground struct{}
type cmdFlush struct{ done chan struct{} }
type cmdSnapshot struct{ reply chan types.Snapshot }
type cmdSubscribe struct{ ch chan types.Snapshot }
type cmdUnsubscribe struct{ ch chan types.Snapshot }

// async completions
type coldStateLoaded struct {
	deepLinkID string
	rec        types.ResumeRecord
	haveRec    bool
	seen       map[string]bool
	err        error
}
type targetResolved struct {
	item types.Item
	err  error
}
type pageFetched struct {
	page    int
	items   []types.Item
	hasMore bool
	pin     *types.Item // deep-link/resume target to insert at position 0
	err     error
}
type constructDone struct {
	task *preload.Task
	h    playback.Handle
	err  error
}
type handleEvent struct {
	itemID string
	kind   PlaybackEventKind
}

func (m cmdStart) apply(c *Controller) {
	c.phase = PhaseColdStart
	log.Printf("[feed] cold start (deepLink=%q profile=%s)", m.deepLinkID, c.cfg.ProfileID)
	go func(deepLinkID string) {
		out := coldStateLoaded{deepLinkID: deepLinkID}
		ctx, cancel := context.WithTimeout(c.runCtx, 5*time.Second)
		defer cancel()
		if c.store != nil {
			rec, ok, err := c.store.GetResume(ctx, c.cfg.ProfileID)
			if err != nil {
				out.err = err
			}
			out.rec, out.haveRec = rec, ok
			if seen, err := c.store.SeenKeys(ctx, c.cfg.ProfileID); err == nil {
				out.seen = seen
			}
		}
		c.post(out)
	}(m.deepLinkID)
}

func (m coldStateLoaded) apply(c *Controller) {
	if m.err != nil {
		// persistence trouble degrades to a fresh feed, never a dead one
		log.Printf("[resume] load failed: %v", m.err)
	}
	if m.seen != nil {
		c.seen = m.seen
	}

	targetID := m.deepLinkID
	if targetID == "" && m.haveRec {
		targetID = m.rec.ItemID
		log.Printf("[resume] within TTL, targeting item=%s page=%d", m.rec.ItemID, m.rec.Page)
		c.page = m.rec.Page - 1 // fetchNextPage restarts from the saved page
		if c.page < 0 {
			c.page = 0
		}
	}

	if targetID == "" {
		c.phase = PhaseRanking
		c.pinKey = ""
		c.fetchPage(c.page+1, nil)
		return
	}

	c.phase = PhaseResolvingTarget
	go func(id string) {
		ctx, cancel := context.WithTimeout(c.runCtx, 10*time.Second)
		defer cancel()
		it, err := c.source.FetchByID(ctx, id)
		c.post(targetResolved{item: it, err: err})
	}(targetID)
}

func (m targetResolved) apply(c *Controller) {
	if m.err != nil {
		// recoverable: the user gets the generic feed plus a notice
		log.Printf("[feed] deep-link resolve failed, falling back: %v", m.err)
		c.notice = "couldn't open that video, showing your feed"
		c.phase = PhaseRanking
		c.pinKey = ""
		c.fetchPage(c.page+1, nil)
		return
	}
	c.phase = PhaseRanking
	c.pinKey = m.item.Key()
	target := m.item
	c.fetchPage(c.page+1, &target)
}

func (c *Controller) fetchPage(page int, pin *types.Item) {
	if c.pageInFlight {
		return
	}
	c.pageInFlight = true
	go func() {
		ctx, cancel := context.WithTimeout(c.runCtx, 30*time.Second)
		defer cancel()
		items, more, err := c.source.FetchPage(ctx, page, c.cfg.PageSize)
		c.post(pageFetched{page: page, items: items, hasMore: more, pin: pin, err: err})
	}()
}

func (m pageFetched) apply(c *Controller) {
	c.pageInFlight = false
	if m.err != nil {
		log.Printf("[feed] page %d fetch failed: %v", m.page, m.err)
		if c.window.Len() == 0 {
			c.notice = "no videos right now, pull to retry"
		}
		return
	}
	c.page = m.page
	c.hasMore = m.hasMore

	items := m.items
	if m.pin != nil {
		// resolved target goes in at position 0 before ranking; the page
		// may contain it too, keep a single copy
		pk := m.pin.Key()
		merged := make([]types.Item, 0, len(items)+1)
		merged = append(merged, *m.pin)
		for _, it := range items {
			if it.Key() != pk {
				merged = append(merged, it)
			}
		}
		items = merged
	}

	if c.phase == PhaseRanking || c.phase == PhaseColdStart {
		ranked := feed.Rank(items, c.seen, c.pinKey)
		ranked = feed.VerifyPin(ranked, c.pinKey)
		c.window.Reset(ranked)
		c.phase = PhasePositionVerified
		c.verifyPosition()
		c.phase = PhaseStreaming
		log.Printf("[feed] streaming: %d items, active=%d", c.window.Len(), c.window.ActiveIndex())
	} else {
		ranked := feed.Rank(items, c.seen, "")
		added := c.window.Append(ranked)
		log.Printf("[feed] page %d appended %d items (window=%d)", m.page, added, c.window.Len())
	}
	c.recomputePreload()
	c.activatePooled()
}

// verifyPosition pins the active index to the pinned item after ranking.
func (c *Controller) verifyPosition() {
	if c.pinKey == "" {
		c.window.SetActive(0)
		return
	}
	idx := c.window.IndexOfKey(c.pinKey)
	if idx < 0 {
		idx = 0
	}
	if idx != 0 {
		// ranking drift; fix rather than fail
		log.Printf("[feed] pin %s landed at %d, repairing", c.pinKey, idx)
		c.window.Reset(feed.VerifyPin(c.window.Items(), c.pinKey))
		idx = 0
	}
	c.window.SetActive(idx)
}

func (m cmdSetActive) apply(c *Controller) {
	if c.phase != PhaseStreaming {
		return
	}
	if !c.window.SetActive(m.index) {
		log.Printf("[feed] ignoring out-of-range active index %d", m.index)
		return
	}
	c.recomputePreload()
	c.activatePooled()
	c.maybeFetchAhead()
}

func (m cmdMarkSeen) apply(c *Controller) {
	c.seen[m.itemID] = true
	if c.store != nil {
		go func(id string) {
			ctx, cancel := context.WithTimeout(c.runCtx, 5*time.Second)
			defer cancel()
			if err := c.store.MarkSeen(ctx, c.cfg.ProfileID, id); err != nil {
				log.Printf("[resume] mark seen %s: %v", id, err)
			}
		}(m.itemID)
	}
}

func (m cmdPlayback) apply(c *Controller) { c.handlePlayback(m.itemID, m.kind) }
func (m handleEvent) apply(c *Controller) { c.handlePlayback(m.itemID, m.kind) }

func (c *Controller) handlePlayback(itemID string, kind PlaybackEventKind) {
	switch kind {
	case EventBuffering:
		c.pool.SetBuffering(itemID)
		wasLow := c.bw.LowBandwidth()
		c.bw.OnBuffering()
		if !wasLow && c.bw.LowBandwidth() {
			c.recomputePreload() // shrink the window right away
		}
	case EventSmoothStart:
		c.pool.ClearBuffering(itemID)
		wasLow := c.bw.LowBandwidth()
		c.bw.OnSmoothStart()
		if wasLow && !c.bw.LowBandwidth() {
			c.recomputePreload()
		}
	case EventEnded:
		// auto-advance to the next item when there is one
		if it, ok := c.window.At(c.window.ActiveIndex()); ok && it.Key() == itemID {
			next := c.window.ActiveIndex() + 1
			if c.window.SetActive(next) {
				c.recomputePreload()
				c.activatePooled()
				c.maybeFetchAhead()
			}
		}
	}
}

func (c *Controller) resumeRecord() (types.ResumeRecord, bool) {
	it, ok := c.window.At(c.window.ActiveIndex())
	if !ok || c.store == nil {
		return types.ResumeRecord{}, false
	}
	return types.ResumeRecord{
		ItemID:          it.Key(),
		Index:           c.window.ActiveIndex(),
		Page:            c.page,
		TimestampMillis: time.Now().UnixMilli(),
	}, true
}

func (c *Controller) saveResume(rec types.ResumeRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.store.SaveResume(ctx, c.cfg.ProfileID, rec); err != nil {
		log.Printf("[resume] save failed: %v", err)
	} else {
		log.Printf("[resume] saved item=%s index=%d page=%d", rec.ItemID, rec.Index, rec.Page)
	}
}

func (m cmdBackground) apply(c *Controller) {
	rec, ok := c.resumeRecord()
	if !ok {
		return
	}
	go c.saveResume(rec)
}

// cmdFlush writes inline on the owner loop; acceptable because it only
// runs once, at shutdown.
func (m cmdFlush) apply(c *Controller) {
	defer close(m.done)
	if rec, ok := c.resumeRecord(); ok {
		c.saveResume(rec)
	}
}

func (m cmdSnapshot) apply(c *Controller)    { m.reply <- c.snapshot() }
func (m cmdSubscribe) apply(c *Controller)   { c.subs = append(c.subs, m.ch) }
func (m cmdUnsubscribe) apply(c *Controller) {
	for i, ch := range c.subs {
		if ch == m.ch {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			close(ch)
			return
		}
	}
}

func (m constructDone) apply(c *Controller) {
	if m.err != nil {
		if exhausted := c.sched.OnConstructFailure(m.task, m.err); exhausted {
			c.notice = "a video failed to load and was skipped"
		}
		return
	}
	if !c.sched.OnConstructSuccess(m.task, m.h) {
		return // stale, already disposed
	}
	// wire decoder signals back into the loop
	itemID := m.task.ItemID
	m.h.OnBuffering(func() { c.post(handleEvent{itemID, EventBuffering}) })
	m.h.OnEnded(func() { c.post(handleEvent{itemID, EventEnded}) })
	c.activatePooled()
}

// ---- owner-loop helpers ----

func (c *Controller) recomputePreload() {
	c.sched.OnActiveIndexChanged(c.window.Items(), c.window.ActiveIndex(), c.bw.LowBandwidth())
	c.pool.EvictLRU()
}

// activatePooled promotes the active item to Playing once its handle is
// ready.
func (c *Controller) activatePooled() {
	it, ok := c.window.At(c.window.ActiveIndex())
	if !ok {
		return
	}
	key := it.Key()
	if e, found := c.pool.Get(key); found && e.Handle != nil && e.State != types.StatePlaying && e.State != types.StateBuffering {
		if c.pool.SetPlaying(key) {
			log.Printf("[feed] playing item=%s index=%d", key, c.window.ActiveIndex())
		}
	}
}

func (c *Controller) maybeFetchAhead() {
	if c.hasMore && !c.pageInFlight && c.window.Len()-c.window.ActiveIndex() <= c.cfg.PrefetchMargin {
		c.fetchPage(c.page+1, nil)
	}
}

// pump starts due constructions; at most one runs at a time.
func (c *Controller) pump() {
	task := c.sched.Pump()
	if task == nil {
		return
	}
	go func(t *preload.Task) {
		ctx, cancel := context.WithTimeout(c.runCtx, c.cfg.ConstructTimeout)
		defer cancel()
		h, err := c.engine.Construct(ctx, t.SourceURL)
		c.post(constructDone{task: t, h: h, err: err})
	}(task)
}

func (c *Controller) snapshot() types.Snapshot {
	s := types.Snapshot{
		Phase:        string(c.phase),
		ActiveIndex:  c.window.ActiveIndex(),
		WindowLen:    c.window.Len(),
		Page:         c.page,
		HasMore:      c.hasMore,
		Pool:         c.pool.Snapshot(),
		LowBandwidth: c.bw.LowBandwidth(),
		Notice:       c.notice,
	}
	if it, ok := c.window.At(c.window.ActiveIndex()); ok {
		s.ActiveItemID = it.Key()
	}
	return s
}

func (c *Controller) publish() {
	if len(c.subs) == 0 {
		return
	}
	s := c.snapshot()
	for _, ch := range c.subs {
		select {
		case ch <- s:
		default: // slow consumer, drop
		}
	}
}
