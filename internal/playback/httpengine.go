package playback

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"
)

// HTTPEngine builds handles over plain HTTP video URLs. Construct issues a
// ranged GET and prebuffers an initial chunk so the first frame is cheap;
// a playing handle keeps a warm reader going and reports stalls.
type HTTPEngine struct {
	Client         *http.Client
	PrebufferBytes int64
	ChunkBytes     int64 // per warm read (default 256 KiB)
}

func NewHTTPEngine(client *http.Client, prebufferBytes int64) *HTTPEngine {
	if client == nil {
		client = &http.Client{Timeout: 0} // streaming reads manage their own deadlines
	}
	return &HTTPEngine{Client: client, PrebufferBytes: prebufferBytes, ChunkBytes: 256 << 10}
}

func (e *HTTPEngine) Construct(ctx context.Context, sourceURL string) (Handle, error) {
	// ctx only bounds the dial and prebuffer phase. The streaming body has
	// to outlive it, so the request runs under a handle-owned context that
	// Dispose cancels; a watcher tears the stream down early only while
	// construction is still settling.
	streamCtx, streamCancel := context.WithCancel(context.WithoutCancel(ctx))
	settled := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			streamCancel()
		case <-settled:
		}
	}()
	fail := func(err error) (Handle, error) {
		close(settled)
		streamCancel()
		return nil, err
	}

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return fail(err)
	}
	req.Header.Set("Range", "bytes=0-")
	resp, err := e.Client.Do(req)
	if err != nil {
		return fail(fmt.Errorf("open %s: %w", sourceURL, err))
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		return fail(fmt.Errorf("open %s: status %d", sourceURL, resp.StatusCode))
	}

	h := &httpHandle{
		engine: e,
		url:    sourceURL,
		body:   resp.Body,
		cancel: streamCancel,
	}
	if got := h.prebuffer(ctx, e.PrebufferBytes); got < e.PrebufferBytes {
		// partial prebuffer is fine as long as the context survived;
		// a dead context means construction timed out
		if ctx.Err() != nil {
			close(settled)
			h.Dispose()
			return nil, fmt.Errorf("prebuffer %s: %w", sourceURL, ctx.Err())
		}
	}
	close(settled)
	return h, nil
}

type httpHandle struct {
	engine *HTTPEngine
	url    string
	cancel context.CancelFunc // tears down the streaming request

	mu       sync.Mutex
	body     io.ReadCloser
	playing  bool
	disposed bool
	buffered int64
	bps      int64 // rolling throughput, EWMA
	onBuffer func()
	onEnded  func()
	warmStop chan struct{}
}

func (h *httpHandle) prebuffer(ctx context.Context, want int64) int64 {
	if want <= 0 {
		return 0
	}
	buf := make([]byte, 256<<10)
	var done int64
	for done < want && ctx.Err() == nil {
		toRead := int64(len(buf))
		if rem := want - done; rem < toRead {
			toRead = rem
		}
		start := time.Now()
		n, err := h.body.Read(buf[:toRead])
		if n > 0 {
			done += int64(n)
			h.observeThroughput(int64(n), time.Since(start))
			continue
		}
		if err != nil {
			break
		}
	}
	h.mu.Lock()
	h.buffered += done
	h.mu.Unlock()
	return done
}

// observeThroughput folds one read into the rolling estimate (70/30 EWMA).
func (h *httpHandle) observeThroughput(bytes int64, took time.Duration) {
	ms := took.Milliseconds()
	if ms <= 0 || bytes <= 0 {
		return
	}
	obs := bytes * 1000 / ms
	h.mu.Lock()
	if h.bps == 0 {
		h.bps = obs
	} else {
		h.bps = (h.bps*7 + obs*3) / 10
	}
	h.mu.Unlock()
}

func (h *httpHandle) Play() {
	h.mu.Lock()
	if h.disposed || h.playing {
		h.mu.Unlock()
		return
	}
	h.playing = true
	stop := make(chan struct{})
	h.warmStop = stop
	h.mu.Unlock()
	go h.warmLoop(stop)
}

func (h *httpHandle) Pause() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopWarmLocked()
}

func (h *httpHandle) stopWarmLocked() {
	if h.warmStop != nil {
		close(h.warmStop)
		h.warmStop = nil
	}
	h.playing = false
}

// warmLoop keeps pulling ahead of the playhead while playing. A read that
// crawls below a floor throughput counts as a stall and fires the
// buffering listener.
func (h *httpHandle) warmLoop(stop chan struct{}) {
	chunk := h.engine.ChunkBytes
	if chunk <= 0 {
		chunk = 256 << 10
	}
	buf := make([]byte, chunk)
	for {
		select {
		case <-stop:
			return
		default:
		}

		h.mu.Lock()
		body := h.body
		disposed := h.disposed
		h.mu.Unlock()
		if disposed || body == nil {
			return
		}

		start := time.Now()
		n, err := body.Read(buf)
		if n > 0 {
			h.observeThroughput(int64(n), time.Since(start))
			h.mu.Lock()
			h.buffered += int64(n)
			slow := h.bps > 0 && h.bps < 128<<10 // <128 KiB/s sustained
			cb := h.onBuffer
			h.mu.Unlock()
			if slow && cb != nil {
				cb()
			}
		}
		if err != nil {
			h.mu.Lock()
			ended := err == io.EOF && !h.disposed
			cb := h.onEnded
			h.mu.Unlock()
			if ended && cb != nil {
				cb()
			} else if err != io.EOF {
				log.Printf("[playback] warm read %s: %v", h.url, err)
			}
			return
		}

		select {
		case <-stop:
			return
		case <-time.After(150 * time.Millisecond):
		}
	}
}

func (h *httpHandle) Seek(positionSec float64) {
	// byte-accurate seek needs container knowledge the engine does not
	// have; the stream stays open and the player-side decoder skips.
	_ = positionSec
}

func (h *httpHandle) Dispose() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.disposed {
		return
	}
	h.stopWarmLocked()
	h.disposed = true
	if h.body != nil {
		_ = h.body.Close()
		h.body = nil
	}
	if h.cancel != nil {
		h.cancel()
	}
}

func (h *httpHandle) OnBuffering(cb func()) {
	h.mu.Lock()
	h.onBuffer = cb
	h.mu.Unlock()
}

func (h *httpHandle) OnEnded(cb func()) {
	h.mu.Lock()
	h.onEnded = cb
	h.mu.Unlock()
}
