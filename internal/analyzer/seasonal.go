package analyzer

import (
	"math"
	"time"

	"agrimarket/pkg/model"
)

// CalculateSeasonalPattern pools prices by calendar month across years and
// returns exactly 12 entries, January first.
func CalculateSeasonalPattern(prices []model.PriceObservation) []model.SeasonalPricePattern {
	var sums [12]float64
	var counts [12]int
	for _, p := range prices {
		m := int(p.Date.Month()) - 1
		sums[m] += p.Price
		counts[m]++
	}

	var averages [12]float64
	var annualSum float64
	var activeMonths int
	for m := 0; m < 12; m++ {
		if counts[m] == 0 {
			continue
		}
		averages[m] = round2(sums[m] / float64(counts[m]))
		annualSum += averages[m]
		activeMonths++
	}

	var annualAverage float64
	if activeMonths > 0 {
		annualAverage = annualSum / float64(activeMonths)
	}

	patterns := make([]model.SeasonalPricePattern, 12)
	for m := 0; m < 12; m++ {
		var index float64
		if annualAverage > 0 && averages[m] > 0 {
			index = math.Round(averages[m] / annualAverage * 100)
		}
		patterns[m] = model.SeasonalPricePattern{
			Month:           m + 1,
			MonthName:       time.Month(m + 1).String(),
			AveragePrice:    averages[m],
			PriceIndex:      index,
			TypicalMovement: getMovement(index),
		}
	}

	return patterns
}

// getMovement interprets a seasonal price index
func getMovement(index float64) model.Movement {
	if index >= 115 {
		return model.MovementPeak
	} else if index >= 105 {
		return model.MovementRising
	} else if index <= 85 {
		return model.MovementTrough
	} else if index <= 95 {
		return model.MovementFalling
	}
	return model.MovementStable
}
