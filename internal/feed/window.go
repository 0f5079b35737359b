package feed

import "reelfeed/pkg/types"

// Window is the ordered, currently-materialized slice of items the client
// can page through. Length is bounded; trimming never removes the active
// item and prefers the end farther from it.
type Window struct {
	items  []types.Item
	max    int
	active int
}

func NewWindow(max int) *Window {
	if max < 1 {
		max = 1
	}
	return &Window{max: max}
}

func (w *Window) Len() int            { return len(w.items) }
func (w *Window) Items() []types.Item { return w.items }
func (w *Window) ActiveIndex() int    { return w.active }

// At returns the item at i.
func (w *Window) At(i int) (types.Item, bool) {
	if i < 0 || i >= len(w.items) {
		return types.Item{}, false
	}
	return w.items[i], true
}

// IndexOfKey returns the position of the item with the given identity key.
func (w *Window) IndexOfKey(key string) int {
	for i, it := range w.items {
		if it.Key() == key {
			return i
		}
	}
	return -1
}

// Reset replaces the whole window (fresh ranking pass) and clamps the
// active index back into range.
func (w *Window) Reset(items []types.Item) {
	w.items = items
	if w.active >= len(w.items) {
		w.active = len(w.items) - 1
	}
	if w.active < 0 {
		w.active = 0
	}
	w.trim()
}

// Append adds a ranked page to the tail, skipping keys already present,
// then enforces the memory ceiling.
func (w *Window) Append(items []types.Item) int {
	present := make(map[string]bool, len(w.items))
	for _, it := range w.items {
		present[it.Key()] = true
	}
	added := 0
	for _, it := range items {
		if present[it.Key()] {
			continue
		}
		present[it.Key()] = true
		w.items = append(w.items, it)
		added++
	}
	w.trim()
	return added
}

// SetActive moves the active index. Returns false when out of range.
func (w *Window) SetActive(i int) bool {
	if i < 0 || i >= len(w.items) {
		return false
	}
	w.active = i
	return true
}

// trim enforces the ceiling. Items are dropped from whichever end is
// farther from the active index, one at a time, so the active item and its
// neighborhood survive.
func (w *Window) trim() {
	for len(w.items) > w.max {
		headDist := w.active
		tailDist := len(w.items) - 1 - w.active
		if headDist >= tailDist {
			w.items = w.items[1:]
			w.active--
		} else {
			w.items = w.items[:len(w.items)-1]
		}
	}
}
