package proc

import (
	"sync"
	"time"

	"github.com/leeineian/jukebox/sys"
)

// HistoryEvictFraction is the share of oldest entries dropped when an Add overflows the history.
const HistoryEvictFraction = 0.2

// HistoryEntry is one remembered track key and when it was last added.
type HistoryEntry struct {
	URI     string
	AddedAt time.Time
}

// PlayHistory is a bounded, insertion-ordered set of recently played track keys.
type PlayHistory struct {
	mu      sync.Mutex
	maxSize int
	now     func() time.Time
	order   []string
	added   map[string]time.Time
}

// NewPlayHistory returns an empty history. A nil clock means time.Now.
func NewPlayHistory(maxSize int, now func() time.Time) *PlayHistory {
	if maxSize <= 0 {
		maxSize = sys.DefaultAutoplayConfig().MaxHistorySize
	}
	if now == nil {
		now = time.Now
	}
	return &PlayHistory{
		maxSize: maxSize,
		now:     now,
		added:   make(map[string]time.Time),
	}
}

func (h *PlayHistory) Has(uri string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.added[uri]
	return ok
}

// Add records the track as played now. Re-adding moves it to the newest position.
func (h *PlayHistory) Add(t sys.Track) {
	key := t.Key()
	if key == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.added[key]; ok {
		h.removeLocked(key)
	}
	h.order = append(h.order, key)
	h.added[key] = h.now()

	if len(h.order) > h.maxSize {
		n := max(1, int(float64(len(h.order))*HistoryEvictFraction))
		h.dropOldestLocked(n)
	}
}

// PruneOlderThan removes entries added more than d ago and returns how many went.
func (h *PlayHistory) PruneOlderThan(d time.Duration) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := h.now().Add(-d)
	kept := h.order[:0]
	removed := 0
	for _, key := range h.order {
		if h.added[key].Before(cutoff) {
			delete(h.added, key)
			removed++
			continue
		}
		kept = append(kept, key)
	}
	h.order = kept
	return removed
}

// EmergencyPrune drops the oldest fraction of entries regardless of age.
func (h *PlayHistory) EmergencyPrune(fraction float64) int {
	if fraction <= 0 {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.order) == 0 {
		return 0
	}
	n := int(float64(len(h.order)) * fraction)
	if n == 0 {
		n = 1
	}
	return h.dropOldestLocked(n)
}

func (h *PlayHistory) Clear() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.order)
	h.order = nil
	h.added = make(map[string]time.Time)
	return n
}

func (h *PlayHistory) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.order)
}

// Snapshot returns the entries oldest first.
func (h *PlayHistory) Snapshot() []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]HistoryEntry, 0, len(h.order))
	for _, key := range h.order {
		out = append(out, HistoryEntry{URI: key, AddedAt: h.added[key]})
	}
	return out
}

func (h *PlayHistory) dropOldestLocked(n int) int {
	n = min(n, len(h.order))
	for _, key := range h.order[:n] {
		delete(h.added, key)
	}
	h.order = append([]string(nil), h.order[n:]...)
	return n
}

func (h *PlayHistory) removeLocked(key string) {
	for i, k := range h.order {
		if k == key {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	delete(h.added, key)
}
