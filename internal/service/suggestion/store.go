// Package suggestion caches agent answers per query text together with the
// result IDs they were produced for.
package suggestion

import (
	"context"
	"errors"
	"sync"
	"time"

	"voice-search-assistant/internal/models"
)

var ErrNotFound = errors.New("suggestion not found")

// Suggestion is the cached answer for one exact query text.
type Suggestion struct {
	Query           string
	ResultObjectIDs []string
	CachedOutput    *models.ToolOutput
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Patch holds the fields to update. Nil fields keep the stored value.
type Patch struct {
	ResultObjectIDs []string
	CachedOutput    *models.ToolOutput
}

// Store persists suggestions keyed by query text.
type Store interface {
	Get(ctx context.Context, query string) (Suggestion, error)
	Upsert(ctx context.Context, query string, patch Patch) error
}

// MemoryStore is a Store kept in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]Suggestion
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]Suggestion), now: time.Now}
}

func (s *MemoryStore) Get(ctx context.Context, query string) (Suggestion, error) {
	if err := ctx.Err(); err != nil {
		return Suggestion{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sg, ok := s.items[query]
	if !ok {
		return Suggestion{}, ErrNotFound
	}
	return clone(sg), nil
}

func (s *MemoryStore) Upsert(ctx context.Context, query string, patch Patch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	sg, ok := s.items[query]
	if !ok {
		sg = Suggestion{Query: query, CreatedAt: now}
	}
	if patch.ResultObjectIDs != nil {
		sg.ResultObjectIDs = append([]string(nil), patch.ResultObjectIDs...)
	}
	if patch.CachedOutput != nil {
		out := *patch.CachedOutput
		sg.CachedOutput = &out
	}
	sg.UpdatedAt = now
	s.items[query] = sg
	return nil
}

// Len returns the number of stored suggestions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func clone(sg Suggestion) Suggestion {
	sg.ResultObjectIDs = append([]string(nil), sg.ResultObjectIDs...)
	if sg.CachedOutput != nil {
		out := *sg.CachedOutput
		sg.CachedOutput = &out
	}
	return sg
}
