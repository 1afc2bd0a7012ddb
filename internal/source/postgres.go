package source

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"agrimarket/pkg/model"
)

// PostgresSource reads observations from the market_prices table
type PostgresSource struct {
	loadTracker
	db *sqlx.DB
}

// NewPostgresSource opens a connection pool and pings the database
func NewPostgresSource(ctx context.Context, connStr string) (*PostgresSource, error) {
	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresSource{db: db}, nil
}

// NewPostgresSourceFromDB wraps an existing connection
func NewPostgresSourceFromDB(db *sqlx.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

// Name returns the source name
func (s *PostgresSource) Name() string {
	return "postgres"
}

// Close releases the connection pool
func (s *PostgresSource) Close() error {
	return s.db.Close()
}

// Observations queries the matching observations
func (s *PostgresSource) Observations(ctx context.Context, q Query) ([]model.PriceObservation, error) {
	query, args := buildObservationQuery(q)

	var rows []model.PriceObservation
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, &SourceError{Source: s.Name(), Err: fmt.Errorf("querying observations: %w", err), Retryable: true}
	}

	valid, invalid := Filter(s.Name(), rows)
	s.record(LoadStats{Loaded: len(valid), Rejected: invalid})
	return valid, nil
}

// Series lists the distinct crop/location series in the table
func (s *PostgresSource) Series(ctx context.Context) ([]SeriesKey, error) {
	const query = `
		SELECT DISTINCT crop, state, COALESCE(sub_region, '') AS sub_region
		FROM market_prices
		ORDER BY crop, state, sub_region`

	var keys []SeriesKey
	if err := s.db.SelectContext(ctx, &keys, query); err != nil {
		return nil, &SourceError{Source: s.Name(), Err: fmt.Errorf("querying series: %w", err), Retryable: true}
	}
	return keys, nil
}

// buildObservationQuery renders the SELECT for a query with positional arguments
func buildObservationQuery(q Query) (string, []interface{}) {
	var where []string
	var args []interface{}
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if q.Crop != "" {
		add("crop = $%d", q.Crop)
	}
	if q.State != "" {
		add("state = $%d", q.State)
	}
	if q.SubRegion != "" {
		add("sub_region = $%d", q.SubRegion)
	}
	if !q.Since.IsZero() {
		add("observed_on >= $%d", q.Since)
	}

	var b strings.Builder
	b.WriteString(`SELECT
			crop,
			COALESCE(variety, '') AS variety,
			state,
			COALESCE(sub_region, '') AS sub_region,
			COALESCE(market_name, '') AS market_name,
			price,
			unit,
			observed_on,
			COALESCE(source, '') AS source,
			COALESCE(confidence, '') AS confidence
		FROM market_prices`)
	if len(where) > 0 {
		b.WriteString("\n\t\tWHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString("\n\t\tORDER BY observed_on DESC")

	return b.String(), args
}
