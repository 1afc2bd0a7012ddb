package source

import (
	"context"
	"time"

	"agrimarket/pkg/model"
)

// Query selects observations for one crop and location
type Query struct {
	Crop      string
	State     string
	SubRegion string    // empty matches every sub-region
	Since     time.Time // zero means the full history
}

// Matches reports whether an observation satisfies the query
func (q Query) Matches(o model.PriceObservation) bool {
	if q.Crop != "" && o.Crop != q.Crop {
		return false
	}
	if q.State != "" && o.State != q.State {
		return false
	}
	if q.SubRegion != "" && o.SubRegion != q.SubRegion {
		return false
	}
	if !q.Since.IsZero() && o.Date.Before(q.Since) {
		return false
	}
	return true
}

// SeriesKey identifies one crop/location price series
type SeriesKey struct {
	Crop      string `json:"crop" db:"crop"`
	State     string `json:"state" db:"state"`
	SubRegion string `json:"sub_region,omitempty" db:"sub_region"`
}

// Query returns the query selecting this series
func (k SeriesKey) Query() Query {
	return Query{Crop: k.Crop, State: k.State, SubRegion: k.SubRegion}
}

// Source defines the interface for price observation sources
type Source interface {
	// Name returns the source name
	Name() string

	// Observations returns the observations matching the query, in no particular order
	Observations(ctx context.Context, q Query) ([]model.PriceObservation, error)

	// Series lists the distinct crop/location series available
	Series(ctx context.Context) ([]SeriesKey, error)
}

// SourceError represents a source-specific error
type SourceError struct {
	Source    string
	Err       error
	Retryable bool
}

func (e *SourceError) Error() string {
	return e.Source + ": " + e.Err.Error()
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// FallbackSource tries multiple sources in order
type FallbackSource struct {
	sources []Source
}

// NewFallbackSource creates a new fallback source
func NewFallbackSource(sources ...Source) *FallbackSource {
	return &FallbackSource{sources: sources}
}

// Name returns the combined source name
func (f *FallbackSource) Name() string {
	return "fallback"
}

// Observations tries each source in order until one succeeds
func (f *FallbackSource) Observations(ctx context.Context, q Query) ([]model.PriceObservation, error) {
	var lastErr error
	for _, s := range f.sources {
		data, err := s.Observations(ctx, q)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// Series returns series from the first source that answers
func (f *FallbackSource) Series(ctx context.Context) ([]SeriesKey, error) {
	var lastErr error
	for _, s := range f.sources {
		keys, err := s.Series(ctx)
		if err == nil {
			return keys, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// Sources returns the list of underlying sources
func (f *FallbackSource) Sources() []Source {
	return f.sources
}
