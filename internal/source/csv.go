package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"agrimarket/pkg/model"
)

// DateLayout is the date format used in CSV files
const DateLayout = "2006-01-02"

// Columns of a price CSV file. Only crop, state, price, unit and date are required.
var csvColumns = []string{
	"crop", "variety", "state", "sub_region", "market",
	"price", "unit", "date", "source", "confidence",
}

// requiredColumns must be present in the header row
var requiredColumns = []string{"crop", "state", "price", "unit", "date"}

// CSVSource reads observations from a CSV file with a header row
type CSVSource struct {
	loadTracker
	path string
}

// NewCSVSource creates a source backed by the CSV file at path
func NewCSVSource(path string) *CSVSource {
	return &CSVSource{path: path}
}

// Name returns the source name
func (s *CSVSource) Name() string {
	return "csv"
}

// Observations reads the file and returns the matching, valid observations
func (s *CSVSource) Observations(ctx context.Context, q Query) ([]model.PriceObservation, error) {
	all, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	matched := make([]model.PriceObservation, 0, len(all))
	for _, o := range all {
		if q.Matches(o) {
			matched = append(matched, o)
		}
	}
	return matched, nil
}

// Series lists the distinct crop/location series in the file
func (s *CSVSource) Series(ctx context.Context) ([]SeriesKey, error) {
	all, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[SeriesKey]bool)
	var keys []SeriesKey
	for _, o := range all {
		k := SeriesKey{Crop: o.Crop, State: o.State, SubRegion: o.SubRegion}
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Crop != keys[j].Crop {
			return keys[i].Crop < keys[j].Crop
		}
		if keys[i].State != keys[j].State {
			return keys[i].State < keys[j].State
		}
		return keys[i].SubRegion < keys[j].SubRegion
	})
	return keys, nil
}

func (s *CSVSource) load(ctx context.Context) ([]model.PriceObservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, &SourceError{Source: s.Name(), Err: fmt.Errorf("opening %s: %w", s.path, err)}
	}
	defer f.Close()

	observations, unparsed, err := ReadCSV(f)
	if err != nil {
		return nil, &SourceError{Source: s.Name(), Err: fmt.Errorf("reading %s: %w", s.path, err)}
	}
	if len(unparsed) > 0 {
		log.Printf("[SOURCE] %s: skipped %d unparseable rows in %s (first: %v)", s.Name(), len(unparsed), s.path, unparsed[0])
	}

	valid, invalid := Filter(s.Name(), observations)
	s.record(LoadStats{Loaded: len(valid), Rejected: append(unparsed, invalid...)})
	return valid, nil
}

// ReadCSV parses price observations from CSV with a header row.
// Rows with an unparseable price or date are skipped and returned as
// rejections; range checks are left to Filter. Only a missing header
// column or an I/O failure aborts the read.
func ReadCSV(r io.Reader) ([]model.PriceObservation, []Rejection, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("reading header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range requiredColumns {
		if _, ok := idx[required]; !ok {
			return nil, nil, fmt.Errorf("missing required column %q", required)
		}
	}

	var observations []model.PriceObservation
	var rejected []Rejection
	row := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				rejected = append(rejected, Rejection{Index: row, Line: parseErr.StartLine, Err: parseErr.Err})
				row++
				continue
			}
			return nil, nil, fmt.Errorf("reading row %d: %w", row+1, err)
		}
		line, _ := reader.FieldPos(0)

		field := func(name string) string {
			if i, ok := idx[name]; ok && i < len(record) {
				return strings.TrimSpace(record[i])
			}
			return ""
		}

		o := model.PriceObservation{
			Crop:       field("crop"),
			Variety:    field("variety"),
			State:      field("state"),
			SubRegion:  field("sub_region"),
			Market:     field("market"),
			Unit:       field("unit"),
			Source:     field("source"),
			Confidence: model.Confidence(strings.ToLower(field("confidence"))),
		}

		price, err := strconv.ParseFloat(field("price"), 64)
		if err != nil {
			rejected = append(rejected, Rejection{Index: row, Line: line, Observation: o, Err: fmt.Errorf("invalid price %q", field("price"))})
			row++
			continue
		}
		date, err := time.Parse(DateLayout, field("date"))
		if err != nil {
			rejected = append(rejected, Rejection{Index: row, Line: line, Observation: o, Err: fmt.Errorf("invalid date %q", field("date"))})
			row++
			continue
		}

		o.Price = price
		o.Date = date
		observations = append(observations, o)
		row++
	}

	return observations, rejected, nil
}

// WriteCSV writes observations in the format ReadCSV accepts
func WriteCSV(w io.Writer, observations []model.PriceObservation) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvColumns); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for _, o := range observations {
		row := []string{
			o.Crop, o.Variety, o.State, o.SubRegion, o.Market,
			strconv.FormatFloat(o.Price, 'f', -1, 64),
			o.Unit, o.Date.Format(DateLayout), o.Source, string(o.Confidence),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("writing row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}
