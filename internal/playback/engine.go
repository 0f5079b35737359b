// Package playback defines the decode-engine contract the pool manages and
// an HTTP-backed implementation that prebuffers and keeps a warm readahead.
package playback

import "context"

// Handle is one live decode resource. Only the pool may drive its
// lifecycle.
type Handle interface {
	Play()
	Pause()
	Seek(positionSec float64)
	Dispose()

	// OnBuffering registers cb for stall events; OnEnded for natural
	// end of playback. Both may be called at most once per handle.
	OnBuffering(cb func())
	OnEnded(cb func())
}

// Engine constructs and tears down handles. Construct is the expensive,
// contention-prone operation; callers bound its concurrency and attach a
// timeout through ctx. Cancellation is by discard: a construct that loses
// its caller still returns, and the caller disposes the result.
type Engine interface {
	Construct(ctx context.Context, sourceURL string) (Handle, error)
}
