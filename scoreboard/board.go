// Package scoreboard keeps the records of won sessions.
package scoreboard

import (
	"sort"
	"sync"
)

// Entry is one finished session's result. Entries are never modified once
// recorded.
type Entry struct {
	Name       string `json:"name"`
	Difficulty int    `json:"difficulty"`
	Score      int    `json:"score"`
}

// Board is an append-only, in-memory scoreboard safe for concurrent use.
type Board struct {
	mu      sync.RWMutex
	entries []Entry
}

func New() *Board {
	return &Board{}
}

func (b *Board) Record(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, e)
}

// List returns all entries in the order they were recorded.
func (b *Board) List() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}

// Top returns up to n entries with the highest scores; ties keep recording
// order.
func (b *Board) Top(n int) []Entry {
	out := b.List()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if n >= 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

func (b *Board) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}
