// Package sources defines the fetch interface the sync engine consumes and a
// thread-safe container for the configured sources.
//
// A source returns one snapshot per fetch. Sources do not normalize; the
// engine maps raw records onto the canonical schema afterwards.
//
// Example usage:
//
//	set := sources.NewSources()
//	set.Set(crm)
//	set.Set(tracker)
//
//	for _, src := range set.List() {
//	    snap, err := src.Fetch(ctx)
//	    ...
//	}
package sources

import (
	"context"
	"sort"
	"sync"

	"github.com/agentstation/utc"

	"github.com/agentstation/syncflow/pkg/records"
)

// Source is one external system providing records for a run.
type Source interface {
	// ID returns the source's configured identifier.
	ID() records.SourceID

	// Fetch retrieves a snapshot. Fetch must honor ctx cancellation; the
	// engine applies the per-source timeout through ctx.
	Fetch(ctx context.Context) (*records.SourceSnapshot, error)

	// Cleanup releases any resources held between runs.
	Cleanup() error
}

// Sources is a thread-safe container for the configured sources.
type Sources struct {
	mu      sync.RWMutex
	sources map[records.SourceID]Source
}

// NewSources creates a container holding the given sources.
func NewSources(srcs ...Source) *Sources {
	s := &Sources{sources: make(map[records.SourceID]Source, len(srcs))}
	for _, src := range srcs {
		s.sources[src.ID()] = src
	}
	return s
}

// Get returns a source by ID.
func (s *Sources) Get(id records.SourceID) (Source, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, found := s.sources[id]
	return src, found
}

// Set adds or replaces a source.
func (s *Sources) Set(src Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[src.ID()] = src
}

// Delete removes a source by ID.
func (s *Sources) Delete(id records.SourceID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sources, id)
}

// Len returns the number of sources.
func (s *Sources) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sources)
}

// List returns all sources ordered by ID.
func (s *Sources) List() []Source {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]Source, 0, len(s.sources))
	for _, src := range s.sources {
		list = append(list, src)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID() < list[j].ID() })
	return list
}

// IDs returns all source IDs in ascending order.
func (s *Sources) IDs() []records.SourceID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]records.SourceID, 0, len(s.sources))
	for id := range s.sources {
		ids = append(ids, id)
	}
	return records.SortSourceIDs(ids)
}

// FetchFunc fetches raw records for a Func source.
type FetchFunc func(ctx context.Context) ([]records.RawRecord, error)

// Func adapts a plain function into a Source. The snapshot's fetch time is
// taken when fn returns.
func Func(id records.SourceID, fn FetchFunc) Source {
	return &funcSource{id: id, fn: fn}
}

type funcSource struct {
	id records.SourceID
	fn FetchFunc
}

func (f *funcSource) ID() records.SourceID { return f.id }

func (f *funcSource) Fetch(ctx context.Context) (*records.SourceSnapshot, error) {
	raw, err := f.fn(ctx)
	if err != nil {
		return nil, err
	}
	return &records.SourceSnapshot{SourceID: f.id, FetchedAt: utc.Now(), Records: raw}, nil
}

func (f *funcSource) Cleanup() error { return nil }
