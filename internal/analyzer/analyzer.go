package analyzer

import (
	"math"
	"sort"
	"time"

	"agrimarket/internal/currency"
	"agrimarket/pkg/model"
)

// Config holds market analysis settings
type Config struct {
	DefaultCountry string // used for currency formatting when a location has no country
	DefaultUnit    string // used when observations carry no unit
	HistoryLimit   int    // number of recent observations kept in a report
}

// DefaultConfig returns the default analysis settings
func DefaultConfig() Config {
	return Config{
		DefaultCountry: "Nigeria",
		DefaultUnit:    "kg",
		HistoryLimit:   20,
	}
}

// Analyzer produces price forecasts and selling recommendations.
// It holds no mutable state, so one Analyzer can serve concurrent callers.
type Analyzer struct {
	config     Config
	currencies *currency.Table
	now        func() time.Time
}

// Option configures an Analyzer
type Option func(*Analyzer)

// WithClock sets the time source used as "now" for forecasts
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) {
		a.now = now
	}
}

// WithCurrencyTable sets the currency table used in reasoning text
func WithCurrencyTable(t *currency.Table) Option {
	return func(a *Analyzer) {
		a.currencies = t
	}
}

// NewAnalyzer creates a new market analyzer
func NewAnalyzer(cfg Config, opts ...Option) *Analyzer {
	defaults := DefaultConfig()
	if cfg.DefaultUnit == "" {
		cfg.DefaultUnit = defaults.DefaultUnit
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaults.HistoryLimit
	}

	a := &Analyzer{
		config:     cfg,
		currencies: currency.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Config returns the analyzer settings
func (a *Analyzer) Config() Config {
	return a.config
}

// country picks the country used for currency formatting
func (a *Analyzer) country(loc model.Location) string {
	if loc.Country != "" {
		return loc.Country
	}
	return a.config.DefaultCountry
}

// sortRecentFirst returns a copy of prices ordered by date, newest first.
// Observations on the same day keep their input order.
func sortRecentFirst(prices []model.PriceObservation) []model.PriceObservation {
	sorted := make([]model.PriceObservation, len(prices))
	copy(sorted, prices)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.After(sorted[j].Date)
	})
	return sorted
}

// daysBetween counts whole calendar days from one date to another
func daysBetween(from, to time.Time) int {
	f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(math.Round(t.Sub(f).Hours() / 24))
}

// monthsBetween counts calendar months from one date to another
func monthsBetween(from, to time.Time) int {
	return (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
