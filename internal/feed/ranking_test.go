package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelfeed/pkg/types"
)

func item(id string) types.Item {
	return types.Item{ID: id, SourceURL: "https://cdn.example/" + id + ".mp4"}
}

func keys(items []types.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Key()
	}
	return out
}

func TestRankDropsSeen(t *testing.T) {
	items := []types.Item{item("a"), item("b"), item("c"), item("d")}
	seen := map[string]bool{"b": true, "d": true}
	got := Rank(items, seen, "")
	assert.Equal(t, []string{"a", "c"}, keys(got))
}

func TestRankAllSeenFallsBack(t *testing.T) {
	// everything seen must not empty the feed
	items := []types.Item{item("a"), item("b"), item("c")}
	seen := map[string]bool{"a": true, "b": true, "c": true}
	got := Rank(items, seen, "")
	assert.Equal(t, []string{"a", "b", "c"}, keys(got))
}

func TestRankEmptyInput(t *testing.T) {
	assert.Empty(t, Rank(nil, nil, ""))
	assert.Empty(t, Rank(nil, nil, "x"))
}

func TestRankPinMovesToFront(t *testing.T) {
	items := []types.Item{item("a"), item("b"), item("c")}
	got := Rank(items, nil, "c")
	assert.Equal(t, []string{"c", "a", "b"}, keys(got))
}

func TestRankPinAlreadyFront(t *testing.T) {
	items := []types.Item{item("a"), item("b")}
	got := Rank(items, nil, "a")
	assert.Equal(t, []string{"a", "b"}, keys(got))
}

func TestRankPinSurvivesSeenFilter(t *testing.T) {
	// pinned item that was seen: filter drops it, pin does not resurrect it
	// unless the fallback kicks in. Pin applies to the chosen output only.
	items := []types.Item{item("a"), item("b"), item("c")}
	seen := map[string]bool{"c": true}
	got := Rank(items, seen, "b")
	assert.Equal(t, []string{"b", "a"}, keys(got))
}

func TestRankPinAbsentKey(t *testing.T) {
	items := []types.Item{item("a"), item("b")}
	got := Rank(items, nil, "zzz")
	assert.Equal(t, []string{"a", "b"}, keys(got))
}

func TestVerifyPinRepairs(t *testing.T) {
	items := []types.Item{item("a"), item("b"), item("c")}
	fixed := VerifyPin(items, "b")
	require.NotEmpty(t, fixed)
	assert.Equal(t, []string{"b", "a", "c"}, keys(fixed))

	// already correct: untouched
	same := VerifyPin(fixed, "b")
	assert.Equal(t, []string{"b", "a", "c"}, keys(same))
}

func TestRankDoesNotMutateInput(t *testing.T) {
	items := []types.Item{item("a"), item("b"), item("c")}
	_ = Rank(items, map[string]bool{"a": true}, "c")
	assert.Equal(t, []string{"a", "b", "c"}, keys(items))
}

func TestItemKeyFallbacks(t *testing.T) {
	assert.Equal(t, "v1", types.Item{ID: "v1", SourceURL: "u"}.Key())
	assert.Equal(t, "u", types.Item{SourceURL: "u"}.Key())

	anon := types.Item{ThumbnailURL: "t", DurationHint: 12}
	k := anon.Key()
	assert.Contains(t, k, "sha:")
	assert.Equal(t, k, anon.Key(), "content hash must be stable")
}

func TestWindowCeilingKeepsActive(t *testing.T) {
	w := NewWindow(5)
	w.Reset([]types.Item{item("a"), item("b"), item("c"), item("d"), item("e")})
	require.True(t, w.SetActive(4))

	w.Append([]types.Item{item("f"), item("g")})
	assert.Equal(t, 5, w.Len())
	// head was farther from the active index, so it got dropped
	assert.Equal(t, -1, w.IndexOfKey("a"))
	assert.Equal(t, -1, w.IndexOfKey("b"))
	got, ok := w.At(w.ActiveIndex())
	require.True(t, ok)
	assert.Equal(t, "e", got.Key())
}

func TestWindowAppendDedupes(t *testing.T) {
	w := NewWindow(10)
	w.Reset([]types.Item{item("a"), item("b")})
	added := w.Append([]types.Item{item("b"), item("c")})
	assert.Equal(t, 1, added)
	assert.Equal(t, 3, w.Len())
}

func TestWindowSetActiveBounds(t *testing.T) {
	w := NewWindow(10)
	w.Reset([]types.Item{item("a")})
	assert.False(t, w.SetActive(-1))
	assert.False(t, w.SetActive(1))
	assert.True(t, w.SetActive(0))
}
