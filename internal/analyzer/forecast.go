package analyzer

import (
	"fmt"
	"math"
	"time"

	"agrimarket/pkg/model"
)

// Forecast estimates the price of a crop at the target date from its history.
// The seasonal index ratio between the target month and the current month
// scales today's price, then a damped trend adjustment is applied.
func (a *Analyzer) Forecast(crop string, loc model.Location, prices []model.PriceObservation, target time.Time) model.PriceForecast {
	trend := CalculateTrend(prices)
	seasonal := CalculateSeasonalPattern(prices)
	now := a.now()

	forecast := model.PriceForecast{
		Crop:         crop,
		Location:     loc,
		Unit:         a.config.DefaultUnit,
		ForecastDate: target,
		Reasoning:    "Based on limited data",
	}

	if len(prices) > 0 {
		latest := sortRecentFirst(prices)[0]
		forecast.CurrentPrice = latest.Price
		if latest.Unit != "" {
			forecast.Unit = latest.Unit
		}
	}

	forecast.DataQuality, forecast.Confidence = dataQuality(len(prices))

	expected := forecast.CurrentPrice
	current := seasonal[now.Month()-1]
	targeted := seasonal[target.Month()-1]
	if current.PriceIndex > 0 && targeted.PriceIndex > 0 {
		expected = forecast.CurrentPrice * (targeted.PriceIndex / current.PriceIndex)

		months := float64(monthsBetween(now, target))
		// A steep fall over a long horizon would push the multiplier below
		// zero; prices floor at zero.
		trendMultiplier := math.Max(0, 1+(trend.PercentChange/100)*(months/4)*0.5)
		expected *= trendMultiplier

		forecast.Reasoning = fmt.Sprintf(
			"Seasonal pattern indicates a %s period in %s. Current trend is %s (%.2f%%).",
			targeted.TypicalMovement, targeted.MonthName, trend.Direction, trend.PercentChange)
	}

	uncertainty := float64(100-forecast.Confidence) / 100
	interval := expected * uncertainty * 0.3

	forecast.ExpectedPrice = round2(expected)
	forecast.ConfidenceInterval = model.Interval{
		Low:  round2(expected - interval),
		High: round2(expected + interval),
	}

	return forecast
}

// dataQuality grades history depth by observation count
func dataQuality(count int) (model.DataQuality, int) {
	if count >= 50 {
		return model.DataQualityExcellent, 80
	} else if count >= 20 {
		return model.DataQualityGood, 65
	} else if count >= 5 {
		return model.DataQualityFair, 50
	}
	return model.DataQualityPoor, 50
}
