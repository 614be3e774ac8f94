package tui

import (
	"testing"

	"github.com/calder/warble/internal/domain"
	"github.com/calder/warble/internal/player"
)

func entries(titles ...string) []player.QueueEntry {
	out := make([]player.QueueEntry, len(titles))
	for i, title := range titles {
		out[i] = player.QueueEntry{Track: domain.Track{ID: title, Title: title}}
	}
	return out
}

func TestMatchEntriesEmptyQueryKeepsQueueOrder(t *testing.T) {
	got := matchEntries(entries("Blue Train", "Giant Steps", "Naima"), "")
	if len(got) != 3 {
		t.Fatalf("expected all entries, got %v", got)
	}
	for i, idx := range got {
		if idx != i {
			t.Errorf("position %d holds index %d, want queue order", i, idx)
		}
	}
}

func TestMatchEntriesFuzzyAndCaseInsensitive(t *testing.T) {
	es := entries("Blue Train", "Giant Steps", "Naima")

	got := matchEntries(es, "giant")
	if len(got) != 1 || got[0] != 1 {
		t.Errorf("matchEntries(giant) = %v, want [1]", got)
	}

	got = matchEntries(es, "bt")
	if len(got) == 0 || got[0] != 0 {
		t.Errorf("fuzzy match bt = %v, want Blue Train first", got)
	}

	if got = matchEntries(es, "zzz"); len(got) != 0 {
		t.Errorf("impossible query matched %v", got)
	}
}

func TestMatchEntriesSearchesArtist(t *testing.T) {
	es := []player.QueueEntry{
		{Track: domain.Track{ID: "a", Title: "So What", Artist: "Miles Davis"}},
		{Track: domain.Track{ID: "b", Title: "Naima", Artist: "John Coltrane"}},
	}
	got := matchEntries(es, "coltrane")
	if len(got) != 1 || got[0] != 1 {
		t.Errorf("matchEntries(coltrane) = %v, want [1]", got)
	}
}

func TestNextRepeatModeCycles(t *testing.T) {
	order := []domain.RepeatMode{domain.RepeatOff, domain.RepeatAll, domain.RepeatOne, domain.RepeatOff}
	for i := 0; i < len(order)-1; i++ {
		if got := nextRepeatMode(order[i]); got != order[i+1] {
			t.Errorf("nextRepeatMode(%v) = %v, want %v", order[i], got, order[i+1])
		}
	}
}
