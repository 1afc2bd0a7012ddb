package analyzer

import (
	"fmt"
	"math"

	"agrimarket/internal/currency"
	"agrimarket/pkg/model"
)

// Recommend decides whether to sell now or store, given the storage economics.
// Rules are checked in order and the first match wins.
func (a *Analyzer) Recommend(forecast model.PriceForecast, trend model.PriceTrend, canStore bool, storageCostPerMonth float64) model.SellingRecommendation {
	country := a.country(forecast.Location)
	symbol := a.currencies.Resolve(country).Symbol
	price := func(p float64) string {
		return a.currencies.FormatPrice(p, country, forecast.Unit)
	}

	if trend.Direction == model.DirectionFalling {
		return model.SellingRecommendation{
			Code: model.SellNow,
			Reasoning: fmt.Sprintf("Prices are declining (%.2f%% over the %s). Sell now at %s before further drops.",
				trend.PercentChange, periodLabel(trend.Period), price(forecast.CurrentPrice)),
		}
	}
	if forecast.CurrentPrice >= forecast.ExpectedPrice {
		return model.SellingRecommendation{
			Code: model.SellNow,
			Reasoning: fmt.Sprintf("Current price of %s is at or above the expected %s. Sell now while prices are favorable.",
				price(forecast.CurrentPrice), price(forecast.ExpectedPrice)),
		}
	}

	if !canStore {
		return model.SellingRecommendation{
			Code: model.SellNow,
			Reasoning: fmt.Sprintf("Prices may rise to %s, but without storage the risk of spoilage outweighs the gain. Sell now at %s.",
				price(forecast.ExpectedPrice), price(forecast.CurrentPrice)),
		}
	}

	days := forecast.ForecastDate.Sub(a.now()).Hours() / 24
	monthsToHold := int(math.Ceil(days / 30))
	totalStorageCost := storageCostPerMonth * float64(monthsToHold)
	expectedGain := forecast.ExpectedPrice - forecast.CurrentPrice

	if expectedGain <= totalStorageCost {
		return model.SellingRecommendation{
			Code: model.SellNow,
			Reasoning: fmt.Sprintf("Expected gain of %s%s does not cover storage costs of %s%s over %s. Storage is not economical; sell now.",
				symbol, currency.FormatAmount(expectedGain), symbol, currency.FormatAmount(totalStorageCost), monthsLabel(monthsToHold)),
		}
	}

	netGain := expectedGain - totalStorageCost
	if monthsToHold <= 1 {
		return model.SellingRecommendation{
			Code: model.StoreShort,
			Reasoning: fmt.Sprintf("Store for up to a month. Prices are expected to reach %s, a net gain of %s%s after storage costs.",
				price(forecast.ExpectedPrice), symbol, currency.FormatAmount(netGain)),
		}
	}

	return model.SellingRecommendation{
		Code: model.StoreMedium,
		Reasoning: fmt.Sprintf("Store for %s. Prices are expected to reach %s, a net gain of %s%s after storage costs.",
			monthsLabel(monthsToHold), price(forecast.ExpectedPrice), symbol, currency.FormatAmount(netGain)),
	}
}

func monthsLabel(n int) string {
	if n == 1 {
		return "1 month"
	}
	return fmt.Sprintf("%d months", n)
}

// periodLabel lowercases the leading "Last" of a trend period
func periodLabel(period string) string {
	if len(period) > 4 && period[:4] == "Last" {
		return "last" + period[4:]
	}
	return period
}
