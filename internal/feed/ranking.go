package feed

import "reelfeed/pkg/types"

// Rank reorders and filters a fetched page for presentation.
//
// Seen items are dropped as long as something unseen remains; when every
// item has been seen the full list is returned untouched so the feed never
// goes empty. If pinKey names an item in the chosen output it is moved to
// position 0 (deep link / resume target).
func Rank(items []types.Item, seen map[string]bool, pinKey string) []types.Item {
	if len(items) == 0 {
		return nil
	}

	unseen := make([]types.Item, 0, len(items))
	for _, it := range items {
		if !seen[it.Key()] {
			unseen = append(unseen, it)
		}
	}

	var out []types.Item
	if len(unseen) > 0 {
		out = unseen
	} else {
		// anti-starvation: everything seen, keep the original list
		out = append([]types.Item(nil), items...)
	}

	if pinKey != "" {
		out = pinFront(out, pinKey)
	}
	return out
}

// VerifyPin re-checks the pin post-condition and repairs it in place.
// Ranking drift here is a recoverable inconsistency, not an error.
func VerifyPin(items []types.Item, pinKey string) []types.Item {
	if pinKey == "" || len(items) == 0 || items[0].Key() == pinKey {
		return items
	}
	return pinFront(items, pinKey)
}

func pinFront(items []types.Item, pinKey string) []types.Item {
	for i, it := range items {
		if it.Key() == pinKey {
			if i == 0 {
				return items
			}
			pinned := items[i]
			out := make([]types.Item, 0, len(items))
			out = append(out, pinned)
			out = append(out, items[:i]...)
			out = append(out, items[i+1:]...)
			return out
		}
	}
	return items
}
