package batch

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"agrimarket/internal/analyzer"
	"agrimarket/internal/source"
	"agrimarket/pkg/model"
)

// ProgressCallback is called with progress updates
type ProgressCallback func(done, total int)

// Options are the storage economics applied to every series
type Options struct {
	HarvestDate         time.Time
	CanStore            bool
	StorageCostPerMonth float64
	Country             string
}

// Result is the analysis of one series
type Result struct {
	Series   source.SeriesKey      `json:"series"`
	Analysis *model.MarketAnalysis `json:"analysis,omitempty"`
	Error    string                `json:"error,omitempty"`
}

// Report collects the results of one batch run
type Report struct {
	RunID        uuid.UUID     `json:"run_id"`
	TotalSeries  int           `json:"total_series"`
	Analyzed     int           `json:"analyzed"`
	Failed       int           `json:"failed"`
	Results      []Result      `json:"results"`
	Duration     time.Duration `json:"duration"`
	StartedAt    time.Time     `json:"started_at"`
	HarvestDate  time.Time     `json:"harvest_date"`
	StorageCost  float64       `json:"storage_cost_per_month"`
	StorageReady bool          `json:"can_store"`
}

// Runner analyses many series in parallel
type Runner struct {
	source       source.Source
	analyzer     *analyzer.Analyzer
	workers      int
	timeout      time.Duration
	progressFunc ProgressCallback
}

// NewRunner creates a new batch runner
func NewRunner(src source.Source, a *analyzer.Analyzer, workers int, timeout time.Duration) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{
		source:   src,
		analyzer: a,
		workers:  workers,
		timeout:  timeout,
	}
}

// SetProgressCallback sets the progress callback function
func (r *Runner) SetProgressCallback(fn ProgressCallback) {
	r.progressFunc = fn
}

// Run analyses every given series. A series that fails to load is reported
// in its Result; the run itself only fails if the context ends first.
func (r *Runner) Run(ctx context.Context, series []source.SeriesKey, opts Options) (*Report, error) {
	startTime := time.Now()
	report := &Report{
		RunID:        uuid.New(),
		TotalSeries:  len(series),
		Results:      []Result{},
		StartedAt:    startTime,
		HarvestDate:  opts.HarvestDate,
		StorageCost:  opts.StorageCostPerMonth,
		StorageReady: opts.CanStore,
	}

	if len(series) == 0 {
		report.Duration = time.Since(startTime)
		return report, nil
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	// Channels
	jobChan := make(chan source.SeriesKey, len(series))
	resultChan := make(chan Result, len(series))

	// Send all jobs
	for _, s := range series {
		jobChan <- s
	}
	close(jobChan)

	var doneCount int64

	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for key := range jobChan {
				select {
				case <-ctx.Done():
					return
				default:
					resultChan <- r.analyze(ctx, key, opts)

					count := atomic.AddInt64(&doneCount, 1)
					if r.progressFunc != nil {
						r.progressFunc(int(count), len(series))
					}
				}
			}
		}()
	}

	// Close result channel when all workers are done
	go func() {
		wg.Wait()
		close(resultChan)
	}()

	for result := range resultChan {
		if result.Error != "" {
			report.Failed++
		} else {
			report.Analyzed++
		}
		report.Results = append(report.Results, result)
	}

	sort.Slice(report.Results, func(i, j int) bool {
		a, b := report.Results[i].Series, report.Results[j].Series
		if a.Crop != b.Crop {
			return a.Crop < b.Crop
		}
		if a.State != b.State {
			return a.State < b.State
		}
		return a.SubRegion < b.SubRegion
	})

	report.Duration = time.Since(startTime)

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func (r *Runner) analyze(ctx context.Context, key source.SeriesKey, opts Options) Result {
	prices, err := r.source.Observations(ctx, key.Query())
	if err != nil {
		return Result{Series: key, Error: err.Error()}
	}

	analysis := r.analyzer.Analyze(analyzer.Request{
		Crop: key.Crop,
		Location: model.Location{
			Country:   opts.Country,
			State:     key.State,
			SubRegion: key.SubRegion,
		},
		Prices:              prices,
		HarvestDate:         opts.HarvestDate,
		CanStore:            opts.CanStore,
		StorageCostPerMonth: opts.StorageCostPerMonth,
	})
	return Result{Series: key, Analysis: analysis}
}
