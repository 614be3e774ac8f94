package tui

import (
	"sort"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/calder/warble/internal/player"
)

// matchEntries returns the queue indexes whose title or artist fuzzily match
// the query, best matches first. An empty query matches everything in queue
// order.
func matchEntries(entries []player.QueueEntry, query string) []int {
	if query == "" {
		out := make([]int, len(entries))
		for i := range entries {
			out[i] = i
		}
		return out
	}

	targets := make([]string, len(entries))
	for i, e := range entries {
		targets[i] = e.Track.Title + " " + e.Track.Artist
	}
	ranks := fuzzy.RankFindNormalizedFold(query, targets)
	sort.Sort(ranks)

	out := make([]int, 0, len(ranks))
	for _, r := range ranks {
		out = append(out, r.OriginalIndex)
	}
	return out
}
