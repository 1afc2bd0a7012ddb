package analyzer

import (
	"fmt"
	"math"

	"agrimarket/pkg/model"
)

// lookbackIndex is how far back (in observations) the trend compares against
const lookbackIndex = 7

// CalculateTrend classifies direction, magnitude and volatility of a price series
func CalculateTrend(prices []model.PriceObservation) model.PriceTrend {
	if len(prices) < 2 {
		return model.PriceTrend{
			Direction:     model.DirectionStable,
			PercentChange: 0,
			Period:        "insufficient data",
			Volatility:    model.VolatilityLow,
		}
	}

	sorted := sortRecentFirst(prices)
	recent := sorted[0]
	previous := sorted[min(len(sorted)-1, lookbackIndex)]

	var percentChange float64
	if previous.Price != 0 {
		percentChange = round2((recent.Price - previous.Price) / previous.Price * 100)
	}

	return model.PriceTrend{
		Direction:     getDirection(percentChange),
		PercentChange: percentChange,
		Period:        fmt.Sprintf("Last %d days", daysBetween(previous.Date, recent.Date)),
		Volatility:    getVolatility(coefficientOfVariation(sorted)),
	}
}

// coefficientOfVariation returns population stddev / mean as a percentage
func coefficientOfVariation(prices []model.PriceObservation) float64 {
	if len(prices) == 0 {
		return 0
	}

	var sum float64
	for _, p := range prices {
		sum += p.Price
	}
	mean := sum / float64(len(prices))
	if mean == 0 {
		return 0
	}

	var variance float64
	for _, p := range prices {
		variance += math.Pow(p.Price-mean, 2)
	}
	stdDev := math.Sqrt(variance / float64(len(prices)))

	return stdDev / mean * 100
}

func getVolatility(cv float64) model.Volatility {
	if cv < 10 {
		return model.VolatilityLow
	} else if cv < 25 {
		return model.VolatilityMedium
	}
	return model.VolatilityHigh
}

func getDirection(percentChange float64) model.Direction {
	if percentChange > 5 {
		return model.DirectionRising
	} else if percentChange < -5 {
		return model.DirectionFalling
	}
	return model.DirectionStable
}
