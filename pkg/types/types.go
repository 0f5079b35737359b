package types

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// Item is one feed entry. Immutable once constructed at the FeedSource
// boundary.
type Item struct {
	ID           string    `json:"id"`
	SourceURL    string    `json:"sourceUrl"`
	ThumbnailURL string    `json:"thumbnailUrl"`
	DurationHint float64   `json:"durationHint"` // seconds, 0 if unknown
	UploadedAt   time.Time `json:"uploadedAt"`
}

// Key returns the identity key used everywhere "same item" comparisons
// happen: seen-set membership, pin matching, pool/eviction keys.
// ID wins, then SourceURL, then a content hash of what's left.
func (it Item) Key() string {
	if it.ID != "" {
		return it.ID
	}
	if it.SourceURL != "" {
		return it.SourceURL
	}
	h := sha256.New()
	h.Write([]byte(it.ThumbnailURL))
	h.Write([]byte(strconv.FormatFloat(it.DurationHint, 'f', -1, 64)))
	h.Write([]byte(it.UploadedAt.UTC().Format(time.RFC3339Nano)))
	return "sha:" + hex.EncodeToString(h.Sum(nil)[:16])
}

// PlayState is the lifecycle state of one pool entry.
type PlayState string

const (
	StateInitializing PlayState = "initializing"
	StateReady        PlayState = "ready"
	StatePlaying      PlayState = "playing"
	StatePaused       PlayState = "paused"
	StateBuffering    PlayState = "buffering"
	StateFailed       PlayState = "failed"
	StateDisposed     PlayState = "disposed"
)

// EntryState is the per-item slice of a snapshot.
type EntryState struct {
	ItemID string    `json:"itemId"`
	State  PlayState `json:"state"`
}

// Snapshot is the typed diff emitted to the UI boundary. This core never
// renders anything; it only publishes these.
type Snapshot struct {
	Phase        string       `json:"phase"`
	ActiveIndex  int          `json:"activeIndex"`
	ActiveItemID string       `json:"activeItemId,omitempty"`
	WindowLen    int          `json:"windowLen"`
	Page         int          `json:"page"`
	HasMore      bool         `json:"hasMore"`
	Pool         []EntryState `json:"pool"`
	LowBandwidth bool         `json:"lowBandwidth"`
	Notice       string       `json:"notice,omitempty"`
}

// ResumeRecord is the persisted snapshot of the last-viewed position.
type ResumeRecord struct {
	ItemID          string `json:"itemId"`
	Index           int    `json:"index"`
	Page            int    `json:"page"`
	TimestampMillis int64  `json:"timestampMillis"`
}
