package logx

import (
	"io"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Writer filters and de-duplicates log lines before passing them on.
//   - allow (optional): only lines matching it pass
//   - deny (optional): matching lines are dropped
//   - window: identical lines within the window are dropped
type Writer struct {
	dst         io.Writer
	allow, deny *regexp.Regexp
	window      time.Duration

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

func New(dst io.Writer, window time.Duration, allowPattern, denyPattern string) *Writer {
	w := &Writer{dst: dst, window: window, lastSeen: make(map[string]time.Time)}
	if p := strings.TrimSpace(allowPattern); p != "" {
		if re, err := regexp.Compile(p); err == nil {
			w.allow = re
		} // fail-soft: bad pattern disables the filter
	}
	if p := strings.TrimSpace(denyPattern); p != "" {
		if re, err := regexp.Compile(p); err == nil {
			w.deny = re
		}
	}
	return w
}

func (w *Writer) Write(p []byte) (int, error) {
	line := string(p)

	if w.deny != nil && w.deny.MatchString(line) {
		return len(p), nil
	}
	if w.allow != nil && !w.allow.MatchString(line) {
		return len(p), nil
	}

	if w.window > 0 {
		key := strings.TrimRight(line, "\r\n")
		now := time.Now()
		w.mu.Lock()
		if last, ok := w.lastSeen[key]; ok && now.Sub(last) < w.window {
			w.mu.Unlock()
			return len(p), nil
		}
		w.lastSeen[key] = now
		w.mu.Unlock()
	}

	return w.dst.Write(p)
}
