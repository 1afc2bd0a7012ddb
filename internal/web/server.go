package web

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"agrimarket/internal/analyzer"
	"agrimarket/internal/config"
	"agrimarket/internal/currency"
	"agrimarket/internal/ratelimit"
	"agrimarket/internal/source"
)

// Server represents the HTTP API server
type Server struct {
	config     *config.Config
	analyzer   *analyzer.Analyzer
	source     source.Source
	currencies *currency.Table
	limiter    *ratelimit.KeyedLimiter
	now        func() time.Time
	srv        *http.Server
	done       chan struct{}
	stopOnce   sync.Once
}

// NewServer creates a new API server. src may be nil, in which case
// requests must carry their own price observations.
func NewServer(cfg *config.Config, a *analyzer.Analyzer, src source.Source) *Server {
	return &Server{
		config:     cfg,
		analyzer:   a,
		source:     src,
		currencies: currency.Default(),
		limiter:    ratelimit.NewKeyedLimiter(cfg.Server.RateLimit),
		now:        time.Now,
		done:       make(chan struct{}),
	}
}

// Handler returns the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/analyze", s.handleAnalyze)
	mux.HandleFunc("/api/currency", s.handleCurrency)
	mux.HandleFunc("/api/series", s.handleSeries)
	mux.HandleFunc("/api/healthz", s.handleHealth)

	return corsMiddleware(s.rateLimitMiddleware(mux))
}

// Start starts the server on the specified port
func (s *Server) Start(port int) error {
	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go s.pruneLimiters(5 * time.Minute)

	log.Printf("[SERVER] Listening on http://localhost:%d", port)
	log.Printf("[SERVER] Press Ctrl+C to stop")

	return s.srv.ListenAndServe()
}

// Shutdown gracefully shuts down the server and stops background work
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.done) })
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}

// pruneLimiters forgets idle clients until the server shuts down
func (s *Server) pruneLimiters(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if n := s.limiter.Prune(15 * time.Minute); n > 0 {
				log.Printf("[SERVER] Pruned %d idle client limiters", n)
			}
		}
	}
}

// rateLimitMiddleware rejects clients exceeding the per-minute budget
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// corsMiddleware adds CORS headers for browser clients
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
