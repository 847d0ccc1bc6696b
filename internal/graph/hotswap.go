package graph

import (
	"sync"
)

// HotSwap holds the current Graph of a long-running process and lets a
// reload replace it while readers keep using the one they fetched.
type HotSwap struct {
	mu      sync.RWMutex
	current *Graph
	swaps   int
}

func NewHotSwap(initial *Graph) *HotSwap {
	return &HotSwap{current: initial}
}

// Swap installs g and returns the graph it replaced.
func (h *HotSwap) Swap(g *Graph) *Graph {
	h.mu.Lock()
	defer h.mu.Unlock()
	old := h.current
	h.current = g
	h.swaps++
	return old
}

// Current returns the installed graph, or nil before the first load.
func (h *HotSwap) Current() *Graph {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Swaps counts the reloads installed so far.
func (h *HotSwap) Swaps() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.swaps
}

// Collection delegates to the current graph.
func (h *HotSwap) Collection(path string) (*Collection, error) {
	g := h.Current()
	if g == nil {
		return nil, ErrNotFound
	}
	return g.Collection(path)
}
