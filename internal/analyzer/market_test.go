package analyzer

import (
	"testing"
	"time"

	"agrimarket/pkg/model"
)

func TestAnalyze_EmptyHistory(t *testing.T) {
	a := newTestAnalyzer()

	result := a.Analyze(Request{
		Crop:        "cassava",
		Location:    kaduna,
		HarvestDate: time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
		CanStore:    true,
	})

	if result.CurrentPrice != nil {
		t.Errorf("Expected no current price, got %+v", result.CurrentPrice)
	}
	if result.HistoricalPrices == nil || len(result.HistoricalPrices) != 0 {
		t.Errorf("Expected empty non-nil history, got %v", result.HistoricalPrices)
	}
	if result.Trend.Period != "insufficient data" || result.Trend.Direction != model.DirectionStable {
		t.Errorf("Expected insufficient-data trend, got %+v", result.Trend)
	}
	if result.Forecast.CurrentPrice != 0 {
		t.Errorf("Expected forecast current price 0, got %f", result.Forecast.CurrentPrice)
	}
	if result.Forecast.Confidence != 50 || result.Forecast.DataQuality != model.DataQualityPoor {
		t.Errorf("Expected poor/50 forecast, got %s/%d", result.Forecast.DataQuality, result.Forecast.Confidence)
	}
	if len(result.SeasonalPattern) != 12 {
		t.Errorf("Expected 12 seasonal entries, got %d", len(result.SeasonalPattern))
	}
	if result.RecommendationCode != model.SellNow {
		t.Errorf("Expected sell_now on empty data, got %s", result.RecommendationCode)
	}
}

func TestAnalyze_TruncatesHistory(t *testing.T) {
	a := newTestAnalyzer()
	prices := make([]float64, 30)
	for i := range prices {
		prices[i] = 100 + float64(i)
	}
	series := dailySeries("2024-05-01", prices...)

	result := a.Analyze(Request{
		Crop:                "maize",
		Location:            kaduna,
		Prices:              series,
		HarvestDate:         time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC),
		CanStore:            true,
		StorageCostPerMonth: 2,
	})

	if len(result.HistoricalPrices) != 20 {
		t.Fatalf("Expected 20 historical prices, got %d", len(result.HistoricalPrices))
	}
	if result.HistoricalPrices[0].Price != 129 {
		t.Errorf("Expected newest price 129 first, got %f", result.HistoricalPrices[0].Price)
	}
	for i := 1; i < len(result.HistoricalPrices); i++ {
		if result.HistoricalPrices[i].Date.After(result.HistoricalPrices[i-1].Date) {
			t.Fatalf("History not in descending date order at %d", i)
		}
	}
	if result.CurrentPrice == nil || result.CurrentPrice.Price != 129 {
		t.Errorf("Expected current observation with price 129, got %+v", result.CurrentPrice)
	}
	if result.Forecast.DataQuality != model.DataQualityGood {
		t.Errorf("Expected good data quality for 30 observations, got %s", result.Forecast.DataQuality)
	}
	if series[0].Price != 100 {
		t.Error("Expected input series to be left untouched")
	}
}

func TestAnalyze_RecommendationFields(t *testing.T) {
	a := newTestAnalyzer()
	req := Request{
		Crop:                "maize",
		Location:            kaduna,
		Prices:              seasonalHistory(100),
		HarvestDate:         time.Date(2024, 12, 15, 0, 0, 0, 0, time.UTC),
		CanStore:            true,
		StorageCostPerMonth: 1,
	}

	result := a.Analyze(req)
	rec := a.Recommend(result.Forecast, result.Trend, req.CanStore, req.StorageCostPerMonth)

	if result.Recommendation != rec.Reasoning {
		t.Errorf("Expected recommendation text '%s', got '%s'", rec.Reasoning, result.Recommendation)
	}
	if result.RecommendationCode != model.StoreMedium {
		t.Errorf("Expected store_medium, got %s", result.RecommendationCode)
	}
}

func TestNewAnalyzer_FillsDefaults(t *testing.T) {
	a := NewAnalyzer(Config{DefaultCountry: "Ghana"})
	cfg := a.Config()

	if cfg.HistoryLimit != 20 {
		t.Errorf("Expected default history limit 20, got %d", cfg.HistoryLimit)
	}
	if cfg.DefaultUnit != "kg" {
		t.Errorf("Expected default unit kg, got %s", cfg.DefaultUnit)
	}
	if cfg.DefaultCountry != "Ghana" {
		t.Errorf("Expected country Ghana, got %s", cfg.DefaultCountry)
	}
}
