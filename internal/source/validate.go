package source

import (
	"fmt"
	"log"
	"sync"

	"github.com/go-playground/validator/v10"

	"agrimarket/pkg/model"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Rejection records an observation that failed parsing or validation.
// Line is the file line for rows read from CSV, zero otherwise.
type Rejection struct {
	Index       int
	Line        int
	Observation model.PriceObservation
	Err         error
}

func (r Rejection) Error() string {
	if r.Line > 0 {
		return fmt.Sprintf("line %d (%s): %v", r.Line, r.Observation.Crop, r.Err)
	}
	return fmt.Sprintf("observation %d (%s, %s): %v", r.Index, r.Observation.Crop, r.Observation.Date.Format("2006-01-02"), r.Err)
}

// LoadStats summarizes the most recent load of a source
type LoadStats struct {
	Loaded   int
	Rejected []Rejection
}

// StatsReporter is implemented by sources that count skipped rows
type StatsReporter interface {
	LastLoad() LoadStats
}

type loadTracker struct {
	mu   sync.Mutex
	last LoadStats
}

func (t *loadTracker) record(stats LoadStats) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = stats
}

// LastLoad returns the stats of the most recent load
func (t *loadTracker) LastLoad() LoadStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// ValidateObservation checks a single observation
func ValidateObservation(o model.PriceObservation) error {
	return validate.Struct(o)
}

// Filter splits observations into valid ones and rejections
func Filter(name string, observations []model.PriceObservation) ([]model.PriceObservation, []Rejection) {
	valid := make([]model.PriceObservation, 0, len(observations))
	var rejected []Rejection
	for i, o := range observations {
		if err := ValidateObservation(o); err != nil {
			rejected = append(rejected, Rejection{Index: i, Observation: o, Err: err})
			continue
		}
		valid = append(valid, o)
	}

	if len(rejected) > 0 {
		log.Printf("[SOURCE] %s: skipped %d invalid observations (first: %v)", name, len(rejected), rejected[0])
	}
	return valid, rejected
}
