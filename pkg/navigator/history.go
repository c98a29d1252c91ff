package navigator

import "sync"

// Mutation is one recorded history change
type Mutation struct {
	Path    string
	Replace bool
}

// MemoryHistory is an in-process History with browser semantics:
// Push adds an entry, Replace overwrites the current one.
type MemoryHistory struct {
	mu        sync.Mutex
	entries   []string
	mutations []Mutation
}

// NewMemoryHistory creates a history positioned at start ("/" when empty)
func NewMemoryHistory(start string) *MemoryHistory {
	if start == "" {
		start = "/"
	}
	return &MemoryHistory{entries: []string{start}}
}

// Push appends a new entry
func (h *MemoryHistory) Push(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, path)
	h.mutations = append(h.mutations, Mutation{Path: path})
}

// Replace overwrites the current entry
func (h *MemoryHistory) Replace(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[len(h.entries)-1] = path
	h.mutations = append(h.mutations, Mutation{Path: path, Replace: true})
}

// Current returns the path of the current entry
func (h *MemoryHistory) Current() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.entries[len(h.entries)-1]
}

// Back pops the current entry. It returns false at the first entry.
func (h *MemoryHistory) Back() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) <= 1 {
		return false
	}
	h.entries = h.entries[:len(h.entries)-1]
	return true
}

// Entries returns a copy of the history stack, oldest first
func (h *MemoryHistory) Entries() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.entries...)
}

// Mutations returns every Push/Replace applied so far
func (h *MemoryHistory) Mutations() []Mutation {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Mutation(nil), h.mutations...)
}
