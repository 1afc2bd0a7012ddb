package analyzer

import (
	"time"

	"agrimarket/pkg/model"
)

// Request describes one market analysis
type Request struct {
	Crop                string
	Location            model.Location
	Prices              []model.PriceObservation
	HarvestDate         time.Time
	CanStore            bool
	StorageCostPerMonth float64
}

// Analyze runs trend, seasonal, forecast and recommendation over the
// request's price history and assembles the composite report.
// Empty histories degrade to neutral values; Analyze never fails.
func (a *Analyzer) Analyze(req Request) *model.MarketAnalysis {
	sorted := sortRecentFirst(req.Prices)

	history := make([]model.PriceObservation, min(len(sorted), a.config.HistoryLimit))
	copy(history, sorted)

	var current *model.PriceObservation
	if len(sorted) > 0 {
		latest := sorted[0]
		current = &latest
	}

	trend := CalculateTrend(req.Prices)
	forecast := a.Forecast(req.Crop, req.Location, req.Prices, req.HarvestDate)
	recommendation := a.Recommend(forecast, trend, req.CanStore, req.StorageCostPerMonth)

	return &model.MarketAnalysis{
		Crop:               req.Crop,
		Location:           req.Location,
		CurrentPrice:       current,
		HistoricalPrices:   history,
		Trend:              trend,
		SeasonalPattern:    CalculateSeasonalPattern(req.Prices),
		Forecast:           forecast,
		Recommendation:     recommendation.Reasoning,
		RecommendationCode: recommendation.Code,
	}
}
