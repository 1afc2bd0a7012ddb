package source

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"agrimarket/pkg/model"
)

const sampleCSV = `crop,variety,state,sub_region,market,price,unit,date,source,confidence
maize,yellow,Kaduna,Zaria,Sabon Gari,450,kg,2024-01-08,survey,high
maize,,Kaduna,Zaria,,430,kg,2024-01-01,survey,medium
maize,,Kaduna,Kafanchan,,410,kg,2024-01-03,survey,low
cassava,,Oyo,,,120,kg,2024-01-02,survey,HIGH
maize,,Kano,,,-5,kg,2024-01-02,survey,high
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prices.csv")
	if err := os.WriteFile(path, []byte(sampleCSV), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadCSV(t *testing.T) {
	observations, rejected, err := ReadCSV(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(rejected) != 0 {
		t.Errorf("Expected no parse rejections, got %v", rejected)
	}
	if len(observations) != 5 {
		t.Fatalf("Expected 5 observations, got %d", len(observations))
	}

	first := observations[0]
	if first.Crop != "maize" || first.Variety != "yellow" || first.Market != "Sabon Gari" {
		t.Errorf("Unexpected first observation: %+v", first)
	}
	if first.Price != 450 {
		t.Errorf("Expected price 450, got %f", first.Price)
	}
	if !first.Date.Equal(time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected date 2024-01-08, got %v", first.Date)
	}
	if observations[3].Confidence != model.ConfidenceHigh {
		t.Errorf("Expected confidence to be lowercased, got %s", observations[3].Confidence)
	}
}

func TestReadCSV_MissingColumns(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"Missing date", "crop,state,price,unit\nmaize,Kaduna,10,kg\n"},
		{"Missing unit", "crop,state,price,date\nmaize,Kaduna,10,2024-01-01\nmaize,Kaduna,12,2024-01-02\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ReadCSV(strings.NewReader(tt.data)); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestReadCSV_SkipsUnparseableRows(t *testing.T) {
	data := `crop,state,price,unit,date
maize,Kaduna,100,kg,2024-01-01
maize,Kaduna,n/a,kg,2024-01-02
maize,Kaduna,110,kg,01/03/2024
maize,Kaduna,120,kg,2024-01-04
`
	observations, rejected, err := ReadCSV(strings.NewReader(data))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(observations) != 2 {
		t.Fatalf("Expected 2 observations, got %d", len(observations))
	}
	if observations[0].Price != 100 || observations[1].Price != 120 {
		t.Errorf("Unexpected prices: %f, %f", observations[0].Price, observations[1].Price)
	}

	if len(rejected) != 2 {
		t.Fatalf("Expected 2 rejections, got %d", len(rejected))
	}
	if rejected[0].Line != 3 || rejected[1].Line != 4 {
		t.Errorf("Expected rejections on lines 3 and 4, got %d and %d", rejected[0].Line, rejected[1].Line)
	}
	if !strings.Contains(rejected[0].Error(), `invalid price "n/a"`) {
		t.Errorf("Unexpected rejection message: %v", rejected[0])
	}
	if !strings.Contains(rejected[1].Error(), "invalid date") {
		t.Errorf("Unexpected rejection message: %v", rejected[1])
	}
}

func TestReadCSV_Empty(t *testing.T) {
	observations, _, err := ReadCSV(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(observations) != 0 {
		t.Errorf("Expected no observations, got %d", len(observations))
	}
}

func TestWriteCSVRoundTrip(t *testing.T) {
	original, _, err := ReadCSV(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, original); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	again, _, err := ReadCSV(&buf)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(again) != len(original) {
		t.Fatalf("Expected %d observations, got %d", len(original), len(again))
	}
	for i := range original {
		if again[i] != original[i] {
			t.Errorf("Row %d differs: %+v vs %+v", i, again[i], original[i])
		}
	}
}

func TestCSVSource_Observations(t *testing.T) {
	src := NewCSVSource(writeSample(t))
	ctx := context.Background()

	maize, err := src.Observations(ctx, Query{Crop: "maize", State: "Kaduna"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(maize) != 3 {
		t.Errorf("Expected 3 Kaduna maize observations, got %d", len(maize))
	}

	zaria, _ := src.Observations(ctx, Query{Crop: "maize", State: "Kaduna", SubRegion: "Zaria"})
	if len(zaria) != 2 {
		t.Errorf("Expected 2 Zaria observations, got %d", len(zaria))
	}

	recent, _ := src.Observations(ctx, Query{Crop: "maize", Since: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)})
	if len(recent) != 2 {
		t.Errorf("Expected 2 observations since Jan 3, got %d", len(recent))
	}

	// Negative price row is rejected by validation
	kano, _ := src.Observations(ctx, Query{Crop: "maize", State: "Kano"})
	if len(kano) != 0 {
		t.Errorf("Expected invalid Kano row to be skipped, got %d", len(kano))
	}
}

func TestCSVSource_LastLoad(t *testing.T) {
	data := sampleCSV + "yam,,Benue,,,ten,kg,2024-01-05,survey,high\n"
	path := filepath.Join(t.TempDir(), "prices.csv")
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	src := NewCachingSource(NewCSVSource(path))
	if _, err := src.Observations(context.Background(), Query{Crop: "maize"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	stats := src.LastLoad()
	if stats.Loaded != 4 {
		t.Errorf("Expected 4 loaded observations, got %d", stats.Loaded)
	}
	// One unparseable price plus the negative Kano price
	if len(stats.Rejected) != 2 {
		t.Fatalf("Expected 2 rejections, got %d: %v", len(stats.Rejected), stats.Rejected)
	}
	if stats.Rejected[0].Line != 7 {
		t.Errorf("Expected unparseable row on line 7, got %d", stats.Rejected[0].Line)
	}
}

func TestCSVSource_Series(t *testing.T) {
	src := NewCSVSource(writeSample(t))

	keys, err := src.Series(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	expected := []SeriesKey{
		{Crop: "cassava", State: "Oyo"},
		{Crop: "maize", State: "Kaduna", SubRegion: "Kafanchan"},
		{Crop: "maize", State: "Kaduna", SubRegion: "Zaria"},
	}
	if len(keys) != len(expected) {
		t.Fatalf("Expected %d series, got %d: %v", len(expected), len(keys), keys)
	}
	for i := range expected {
		if keys[i] != expected[i] {
			t.Errorf("Series %d: expected %+v, got %+v", i, expected[i], keys[i])
		}
	}
}

func TestCSVSource_MissingFile(t *testing.T) {
	src := NewCSVSource(filepath.Join(t.TempDir(), "nope.csv"))

	_, err := src.Observations(context.Background(), Query{})
	var se *SourceError
	if !errors.As(err, &se) {
		t.Fatalf("Expected SourceError, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected wrapped not-exist error, got %v", err)
	}
}

func TestFilter(t *testing.T) {
	good := model.PriceObservation{Crop: "maize", State: "Kaduna", Price: 10, Unit: "kg", Date: time.Now(), Confidence: model.ConfidenceLow}
	noCrop := good
	noCrop.Crop = ""
	negative := good
	negative.Price = -1
	badConfidence := good
	badConfidence.Confidence = "certain"
	noDate := good
	noDate.Date = time.Time{}
	noConfidence := good
	noConfidence.Confidence = ""

	valid, rejected := Filter("test", []model.PriceObservation{good, noCrop, negative, badConfidence, noDate, noConfidence})

	if len(valid) != 2 {
		t.Errorf("Expected 2 valid observations, got %d", len(valid))
	}
	if len(rejected) != 4 {
		t.Fatalf("Expected 4 rejections, got %d", len(rejected))
	}
	if rejected[0].Index != 1 {
		t.Errorf("Expected first rejection at index 1, got %d", rejected[0].Index)
	}
}

type stubSource struct {
	name  string
	calls int
	err   error
	data  []model.PriceObservation
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Observations(ctx context.Context, q Query) ([]model.PriceObservation, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.data, nil
}

func (s *stubSource) Series(ctx context.Context) ([]SeriesKey, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []SeriesKey{{Crop: "maize", State: "Kaduna"}}, nil
}

func TestCachingSource(t *testing.T) {
	inner := &stubSource{name: "stub", data: []model.PriceObservation{{Crop: "maize", Price: 1}}}
	src := NewCachingSource(inner)
	ctx := context.Background()
	q := Query{Crop: "maize", State: "Kaduna"}

	for i := 0; i < 3; i++ {
		if _, err := src.Observations(ctx, q); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}
	if inner.calls != 1 {
		t.Errorf("Expected 1 inner call, got %d", inner.calls)
	}

	src.Observations(ctx, Query{Crop: "cassava"})
	if inner.calls != 2 {
		t.Errorf("Expected a new query to reach the inner source, got %d calls", inner.calls)
	}

	src.Invalidate()
	src.Observations(ctx, q)
	if inner.calls != 3 {
		t.Errorf("Expected invalidation to refetch, got %d calls", inner.calls)
	}
	if src.Name() != "stub" {
		t.Errorf("Expected inner name, got %s", src.Name())
	}
}

func TestCachingSource_DoesNotCacheErrors(t *testing.T) {
	inner := &stubSource{name: "stub", err: errors.New("down")}
	src := NewCachingSource(inner)

	src.Observations(context.Background(), Query{})
	src.Observations(context.Background(), Query{})
	if inner.calls != 2 {
		t.Errorf("Expected errors to be retried, got %d calls", inner.calls)
	}
}

func TestFallbackSource(t *testing.T) {
	broken := &stubSource{name: "broken", err: errors.New("unavailable")}
	working := &stubSource{name: "working", data: []model.PriceObservation{{Crop: "maize"}}}
	src := NewFallbackSource(broken, working)

	data, err := src.Observations(context.Background(), Query{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(data) != 1 {
		t.Errorf("Expected data from working source, got %d", len(data))
	}

	keys, err := src.Series(context.Background())
	if err != nil || len(keys) != 1 {
		t.Errorf("Expected series from working source, got %v, %v", keys, err)
	}

	if _, err := NewFallbackSource(broken).Observations(context.Background(), Query{}); err == nil {
		t.Error("Expected error when every source fails")
	}
}

func TestBuildObservationQuery(t *testing.T) {
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	query, args := buildObservationQuery(Query{Crop: "maize", State: "Kaduna", Since: since})

	if !strings.Contains(query, "WHERE crop = $1 AND state = $2 AND observed_on >= $3") {
		t.Errorf("Unexpected WHERE clause in:\n%s", query)
	}
	if len(args) != 3 || args[0] != "maize" || args[1] != "Kaduna" || args[2] != since {
		t.Errorf("Unexpected args: %v", args)
	}

	all, none := buildObservationQuery(Query{})
	if strings.Contains(all, "WHERE") || len(none) != 0 {
		t.Errorf("Expected unfiltered query, got %s with %v", all, none)
	}
}
