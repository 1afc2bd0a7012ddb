package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"agrimarket/internal/analyzer"
	"agrimarket/internal/currency"
	"agrimarket/internal/source"
	"agrimarket/pkg/model"
)

// maxBodyBytes caps request bodies; inline histories rarely exceed a few thousand rows
const maxBodyBytes = 4 << 20

// AnalyzeRequest represents an analysis request.
// Prices are optional; without them the configured source is queried.
type AnalyzeRequest struct {
	Crop                string         `json:"crop"`
	Location            model.Location `json:"location"`
	Prices              []PriceInput   `json:"prices,omitempty"`
	HarvestDate         string         `json:"harvest_date,omitempty"` // YYYY-MM-DD
	CanStore            *bool          `json:"can_store,omitempty"`
	StorageCostPerMonth *float64       `json:"storage_cost_per_month,omitempty"`
}

// PriceInput is an inline price observation. Date accepts YYYY-MM-DD
// or RFC3339, matching harvest_date and the CSV format.
type PriceInput struct {
	model.PriceObservation
	Date string `json:"date"`
}

func (p PriceInput) observation() (model.PriceObservation, error) {
	o := p.PriceObservation
	if p.Date == "" {
		return o, nil
	}
	date, err := time.Parse(source.DateLayout, p.Date)
	if err != nil {
		date, err = time.Parse(time.RFC3339, p.Date)
		if err != nil {
			return o, fmt.Errorf("invalid date %q, expected YYYY-MM-DD or RFC3339", p.Date)
		}
	}
	o.Date = date
	return o, nil
}

// CurrencyResponse represents a currency lookup
type CurrencyResponse struct {
	Country   string            `json:"country"`
	Currency  currency.Currency `json:"currency"`
	Formatted string            `json:"formatted,omitempty"`
}

// ErrorResponse is returned for failed requests
type ErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

// handleAnalyze runs a full market analysis (POST)
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed, use POST")
		return
	}

	var req AnalyzeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Crop == "" || req.Location.State == "" {
		writeError(w, http.StatusBadRequest, "crop and location.state are required")
		return
	}

	harvest := s.now().AddDate(0, 0, s.config.Analysis.HarvestHorizonDays)
	if req.HarvestDate != "" {
		parsed, err := time.Parse(source.DateLayout, req.HarvestDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid harvest_date %q, expected YYYY-MM-DD", req.HarvestDate))
			return
		}
		harvest = parsed
	}

	canStore := s.config.Analysis.CanStore
	if req.CanStore != nil {
		canStore = *req.CanStore
	}
	storageCost := s.config.Analysis.StorageCostPerMonth
	if req.StorageCostPerMonth != nil {
		if *req.StorageCostPerMonth < 0 {
			writeError(w, http.StatusBadRequest, "storage_cost_per_month must not be negative")
			return
		}
		storageCost = *req.StorageCostPerMonth
	}

	var prices []model.PriceObservation
	if req.Prices != nil {
		prices = make([]model.PriceObservation, 0, len(req.Prices))
		var details []string
		for i, p := range req.Prices {
			o, err := p.observation()
			if err == nil {
				err = source.ValidateObservation(o)
			}
			if err != nil {
				details = append(details, fmt.Sprintf("prices[%d]: %v", i, err))
				continue
			}
			prices = append(prices, o)
		}
		if len(details) > 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid price observations", Details: details})
			return
		}
	} else {
		if s.source == nil {
			writeError(w, http.StatusBadRequest, "prices are required when no source is configured")
			return
		}
		var err error
		prices, err = s.source.Observations(r.Context(), source.Query{
			Crop:      req.Crop,
			State:     req.Location.State,
			SubRegion: req.Location.SubRegion,
		})
		if err != nil {
			log.Printf("[SERVER] Loading %s/%s from %s failed: %v", req.Crop, req.Location.State, s.source.Name(), err)
			status := http.StatusInternalServerError
			var se *source.SourceError
			if errors.As(err, &se) && se.Retryable {
				status = http.StatusServiceUnavailable
			}
			writeError(w, status, "failed to load price observations")
			return
		}
	}

	analysis := s.analyzer.Analyze(analyzer.Request{
		Crop:                req.Crop,
		Location:            req.Location,
		Prices:              prices,
		HarvestDate:         harvest,
		CanStore:            canStore,
		StorageCostPerMonth: storageCost,
	})

	writeJSON(w, http.StatusOK, analysis)
}

// handleCurrency resolves a country's currency, optionally formatting a price
func (s *Server) handleCurrency(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed, use GET")
		return
	}

	q := r.URL.Query()
	country := q.Get("country")
	resp := CurrencyResponse{
		Country:  country,
		Currency: s.currencies.Resolve(country),
	}

	if raw := q.Get("price"); raw != "" {
		price, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid price %q", raw))
			return
		}
		unit := q.Get("unit")
		if unit == "" {
			unit = s.analyzer.Config().DefaultUnit
		}
		resp.Formatted = s.currencies.FormatPrice(price, country, unit)
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleSeries lists the series the configured source can analyse
func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed, use GET")
		return
	}
	if s.source == nil {
		writeJSON(w, http.StatusOK, []source.SeriesKey{})
		return
	}

	keys, err := s.source.Series(r.Context())
	if err != nil {
		log.Printf("[SERVER] Listing series failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list series")
		return
	}
	if keys == nil {
		keys = []source.SeriesKey{}
	}
	writeJSON(w, http.StatusOK, keys)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[SERVER] Encoding response failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
