package currency

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// Currency describes how prices are displayed for a country
type Currency struct {
	Symbol string `json:"symbol"`
	Code   string `json:"code"`
}

// Fallback is used for countries missing from the table
var Fallback = Currency{Symbol: "$", Code: "USD"}

// Table maps canonical country names to currencies.
// A Table is read-only after construction and safe for concurrent use.
type Table struct {
	byCountry map[string]Currency
}

// NewTable builds a table from the given country mapping.
// The mapping is copied so later changes by the caller have no effect.
func NewTable(entries map[string]Currency) *Table {
	m := make(map[string]Currency, len(entries))
	for country, c := range entries {
		m[country] = c
	}
	return &Table{byCountry: m}
}

var defaultTable = NewTable(map[string]Currency{
	"Nigeria":      {Symbol: "₦", Code: "NGN"},
	"Kenya":        {Symbol: "KSh", Code: "KES"},
	"Ghana":        {Symbol: "GH₵", Code: "GHS"},
	"South Africa": {Symbol: "R", Code: "ZAR"},
	"Ethiopia":     {Symbol: "Br", Code: "ETB"},
	"Tanzania":     {Symbol: "TSh", Code: "TZS"},
	"Uganda":       {Symbol: "USh", Code: "UGX"},
})

// Default returns the built-in table of supported countries
func Default() *Table {
	return defaultTable
}

// Resolve looks up a country by exact, case-sensitive name.
// Unknown countries resolve to Fallback.
func (t *Table) Resolve(country string) Currency {
	if t != nil {
		if c, ok := t.byCountry[country]; ok {
			return c
		}
	}
	return Fallback
}

// Countries returns the number of countries in the table
func (t *Table) Countries() int {
	if t == nil {
		return 0
	}
	return len(t.byCountry)
}

// FormatPrice renders a price as "<symbol><amount> per <unit>"
func (t *Table) FormatPrice(price float64, country, unit string) string {
	return fmt.Sprintf("%s%s per %s", t.Resolve(country).Symbol, FormatAmount(price), unit)
}

// FormatAmount groups thousands and keeps at most 3 fraction digits
func FormatAmount(amount float64) string {
	rounded, _ := decimal.NewFromFloat(amount).Round(3).Float64()
	return humanize.Commaf(rounded)
}

// GetCurrency resolves a country against the default table
func GetCurrency(country string) Currency {
	return defaultTable.Resolve(country)
}

// FormatPrice formats a price using the default table
func FormatPrice(price float64, country, unit string) string {
	return defaultTable.FormatPrice(price, country, unit)
}
