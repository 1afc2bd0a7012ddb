package model

import "time"

// Confidence tags how trustworthy a price observation is
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// PriceObservation is a single recorded market price for a crop
type PriceObservation struct {
	Crop       string     `json:"crop" db:"crop" validate:"required"`
	Variety    string     `json:"variety,omitempty" db:"variety"`
	State      string     `json:"state" db:"state" validate:"required"`
	SubRegion  string     `json:"sub_region,omitempty" db:"sub_region"`
	Market     string     `json:"market,omitempty" db:"market_name"`
	Price      float64    `json:"price" db:"price" validate:"gte=0"`
	Unit       string     `json:"unit" db:"unit" validate:"required"`
	Date       time.Time  `json:"date" db:"observed_on" validate:"required"`
	Source     string     `json:"source" db:"source"`
	Confidence Confidence `json:"confidence" db:"confidence" validate:"omitempty,oneof=high medium low"`
}

// Location identifies where prices were observed
type Location struct {
	Country   string `json:"country,omitempty"`
	State     string `json:"state"`
	SubRegion string `json:"sub_region,omitempty"`
}

// Direction of a price trend
type Direction string

const (
	DirectionRising  Direction = "rising"
	DirectionFalling Direction = "falling"
	DirectionStable  Direction = "stable"
)

// Volatility class of a price series
type Volatility string

const (
	VolatilityLow    Volatility = "low"
	VolatilityMedium Volatility = "medium"
	VolatilityHigh   Volatility = "high"
)

// PriceTrend summarizes recent price movement
type PriceTrend struct {
	Direction     Direction  `json:"direction"`
	PercentChange float64    `json:"percent_change"`
	Period        string     `json:"period"`
	Volatility    Volatility `json:"volatility"`
}

// Movement classifies a month relative to the annual average
type Movement string

const (
	MovementPeak    Movement = "peak"
	MovementRising  Movement = "rising"
	MovementFalling Movement = "falling"
	MovementTrough  Movement = "trough"
	MovementStable  Movement = "stable"
)

// SeasonalPricePattern is the seasonal profile of one calendar month
type SeasonalPricePattern struct {
	Month           int      `json:"month"`
	MonthName       string   `json:"month_name"`
	AveragePrice    float64  `json:"average_price"`
	PriceIndex      float64  `json:"price_index"` // 100 = annual average
	TypicalMovement Movement `json:"typical_movement"`
}

// DataQuality grades a forecast by how much history backs it
type DataQuality string

const (
	DataQualityExcellent DataQuality = "excellent"
	DataQualityGood      DataQuality = "good"
	DataQualityFair      DataQuality = "fair"
	DataQualityPoor      DataQuality = "poor"
)

// Interval is a low/high price band
type Interval struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// PriceForecast is a point forecast with a confidence band
type PriceForecast struct {
	Crop               string      `json:"crop"`
	Location           Location    `json:"location"`
	CurrentPrice       float64     `json:"current_price"`
	Unit               string      `json:"unit"`
	ForecastDate       time.Time   `json:"forecast_date"`
	ExpectedPrice      float64     `json:"expected_price"`
	ConfidenceInterval Interval    `json:"confidence_interval"`
	Confidence         int         `json:"confidence"` // 0-100
	Reasoning          string      `json:"reasoning"`
	DataQuality        DataQuality `json:"data_quality"`
}

// RecommendationCode is the discrete sell-or-store decision
type RecommendationCode string

const (
	SellNow     RecommendationCode = "sell_now"
	StoreShort  RecommendationCode = "store_short"
	StoreMedium RecommendationCode = "store_medium"
)

// SellingRecommendation pairs a decision with its justification
type SellingRecommendation struct {
	Code      RecommendationCode `json:"recommendation"`
	Reasoning string             `json:"reasoning"`
}

// MarketAnalysis is the composite report for one crop and location
type MarketAnalysis struct {
	Crop               string                 `json:"crop"`
	Location           Location               `json:"location"`
	CurrentPrice       *PriceObservation      `json:"current_price"`
	HistoricalPrices   []PriceObservation     `json:"historical_prices"`
	Trend              PriceTrend             `json:"trend"`
	SeasonalPattern    []SeasonalPricePattern `json:"seasonal_pattern"`
	Forecast           PriceForecast          `json:"forecast"`
	Recommendation     string                 `json:"recommendation"`
	RecommendationCode RecommendationCode     `json:"recommendation_code"`
}
