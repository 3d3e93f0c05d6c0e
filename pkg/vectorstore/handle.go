package vectorstore

import (
	"sync/atomic"

	"github.com/perbu/epasrag/pkg/epas"
)

// Handle publishes the current store to readers. A rebuild or reload
// produces a new Store off to the side and swaps it in with Publish;
// searches in flight keep using the store they started with.
type Handle struct {
	current atomic.Pointer[Store]
}

// NewHandle returns a handle, optionally with an initial store.
func NewHandle(s *Store) *Handle {
	h := &Handle{}
	if s != nil {
		h.current.Store(s)
	}
	return h
}

// Publish makes s the current store and returns the previous one.
func (h *Handle) Publish(s *Store) *Store {
	return h.current.Swap(s)
}

// Current returns the current store, or nil before the first Publish.
func (h *Handle) Current() *Store {
	return h.current.Load()
}

// Search searches the current store.
func (h *Handle) Search(query []float32, k int, filter epas.Filter) ([]Hit, error) {
	return h.Current().Search(query, k, filter)
}

// ChunkByID looks id up in the current store.
func (h *Handle) ChunkByID(id string) (epas.Chunk, bool) {
	return h.Current().ChunkByID(id)
}

// Neighbors returns the neighbors of id in the current store.
func (h *Handle) Neighbors(id string) (prev, next *epas.Chunk) {
	return h.Current().Neighbors(id)
}

// Statistics describes the current store.
func (h *Handle) Statistics() (Stats, error) {
	return h.Current().Statistics()
}
