package source

import (
	"context"
	"sync"

	"agrimarket/pkg/model"
)

// CachingSource wraps a Source with an in-memory cache for Observations.
// Batch runs analyse every series once, and the HTTP API sees repeated
// requests for the same crop, so each query is fetched at most once.
type CachingSource struct {
	inner Source
	cache map[Query][]model.PriceObservation
	mu    sync.Mutex
}

// NewCachingSource creates a caching wrapper
func NewCachingSource(inner Source) *CachingSource {
	return &CachingSource{
		inner: inner,
		cache: make(map[Query][]model.PriceObservation),
	}
}

func (s *CachingSource) Name() string { return s.inner.Name() }

func (s *CachingSource) Series(ctx context.Context) ([]SeriesKey, error) {
	return s.inner.Series(ctx)
}

func (s *CachingSource) Observations(ctx context.Context, q Query) ([]model.PriceObservation, error) {
	s.mu.Lock()
	if cached, ok := s.cache[q]; ok {
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	observations, err := s.inner.Observations(ctx, q)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[q] = observations
	s.mu.Unlock()

	return observations, nil
}

// LastLoad reports the inner source's most recent load. Cache hits do not
// reload, so the stats reflect the last query that reached the inner source.
func (s *CachingSource) LastLoad() LoadStats {
	if r, ok := s.inner.(StatsReporter); ok {
		return r.LastLoad()
	}
	return LoadStats{}
}

// Invalidate drops every cached query
func (s *CachingSource) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[Query][]model.PriceObservation)
}
