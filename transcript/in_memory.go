package transcript

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/hupe1980/clinagents/core"
)

var _ Store = (*InMemoryStore)(nil)

// InMemoryStore is a trivial in-process Store useful for tests, examples and
// library callers that score transcripts without touching disk. Transcripts
// are kept encoded, so callers can never mutate stored turns through a
// returned value.
//
// Layout: transcriptID -> JSON document, plus the append order.
type InMemoryStore struct {
	mu    sync.RWMutex
	docs  map[string][]byte
	order []string
}

// NewInMemoryStore returns an empty in-memory transcript store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{docs: make(map[string][]byte)}
}

// Append stores (or overwrites) the transcript under its id.
func (s *InMemoryStore) Append(_ context.Context, tr core.Transcript) error {
	data, err := json.Marshal(tr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[tr.ID]; !exists {
		s.order = append(s.order, tr.ID)
	}
	s.docs[tr.ID] = data

	return nil
}

// Get returns a decoded copy of the transcript or ErrNotFound.
func (s *InMemoryStore) Get(_ context.Context, id string) (core.Transcript, error) {
	s.mu.RLock()
	data, ok := s.docs[id]
	s.mu.RUnlock()

	if !ok {
		return core.Transcript{}, ErrNotFound
	}

	var tr core.Transcript
	if err := json.Unmarshal(data, &tr); err != nil {
		return core.Transcript{}, err
	}

	return tr, nil
}

// List returns every transcript in append order.
func (s *InMemoryStore) List(ctx context.Context) ([]core.Transcript, error) {
	s.mu.RLock()
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	s.mu.RUnlock()

	out := make([]core.Transcript, 0, len(ids))
	for _, id := range ids {
		tr, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}

	return out, nil
}

// Len returns the number of stored transcripts.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
