package decode

import "sync"

// History is the de-duplicated set of symbols seen during a capture session,
// in first-seen order. It has no eviction: it grows until Clear.
type History struct {
	mu      sync.RWMutex
	index   map[Key]int
	symbols []Symbol
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{index: make(map[Key]int)}
}

// Add inserts s unless a symbol with the same type and payload is already
// present. It reports whether s was new. The stored location is the one seen
// first.
func (h *History) Add(s Symbol) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.index[s.Key()]; ok {
		return false
	}
	loc := make([]Point, len(s.Location))
	copy(loc, s.Location)
	s.Location = loc

	h.index[s.Key()] = len(h.symbols)
	h.symbols = append(h.symbols, s)
	return true
}

// Contains reports whether a symbol with the same key is present.
func (h *History) Contains(s Symbol) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.index[s.Key()]
	return ok
}

// Len returns the number of unique symbols.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.symbols)
}

// Clear drops every entry.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.index = make(map[Key]int)
	h.symbols = nil
}

// Snapshot returns a copy of the entries in first-seen order.
func (h *History) Snapshot() []Symbol {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Symbol, len(h.symbols))
	for i, s := range h.symbols {
		loc := make([]Point, len(s.Location))
		copy(loc, s.Location)
		s.Location = loc
		out[i] = s
	}
	return out
}
