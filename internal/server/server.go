// Package server is the read-only HTTP API over stored statistics.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/tft-meta-stats/pkg/aggregate"
	"github.com/Sternrassler/tft-meta-stats/pkg/combo"
	"github.com/Sternrassler/tft-meta-stats/pkg/logging"
	"github.com/Sternrassler/tft-meta-stats/pkg/metrics"
	"github.com/Sternrassler/tft-meta-stats/pkg/riot"
	"github.com/Sternrassler/tft-meta-stats/pkg/store"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tft_http_requests_total",
		Help: "API requests by route and status code",
	}, []string{"route", "code"})

	httpThrottledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tft_http_throttled_total",
		Help: "API requests rejected by the per-client limiter",
	})
)

// CacheControl is sent with every successful stats response.
const CacheControl = "public, s-maxage=3600, stale-while-revalidate=7200"

// Config tunes the API.
type Config struct {
	// Rate and Burst bound requests per client. Rate <= 0 disables limiting.
	Rate  float64
	Burst int
	// TrustXForwardedFor keys clients by the first X-Forwarded-For hop.
	TrustXForwardedFor bool
}

// DefaultConfig returns the production API settings.
func DefaultConfig() Config {
	return Config{Rate: 10, Burst: 20}
}

// Server serves stored statistics.
type Server struct {
	store   store.Store
	limiter *clientLimiter
	config  Config
	mux     *http.ServeMux
	logger  zerolog.Logger
}

// New creates the API over st.
func New(st store.Store, cfg Config) *Server {
	s := &Server{
		store:  st,
		config: cfg,
		mux:    http.NewServeMux(),
		logger: logging.NewLogger("server"),
	}
	if cfg.Rate > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = newClientLimiter(cfg.Rate, burst)
	}

	s.route("GET /api/compositions", "compositions", s.handleCompositions)
	s.route("GET /api/entities/{type}", "entities", s.handleEntities)
	s.route("GET /api/combos/{item}", "combos", s.handleCombos)
	s.route("GET /api/partitions", "partitions", s.handlePartitions)
	s.route("GET /health", "health", s.handleHealth)
	s.mux.Handle("GET /metrics", metrics.Handler())
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start runs background maintenance until ctx ends.
func (s *Server) Start(ctx context.Context) {
	if s.limiter != nil {
		go s.limiter.janitor(ctx, 2*time.Minute)
	}
}

// route registers h behind the per-client limiter and request metrics.
func (s *Server) route(pattern, name string, h http.HandlerFunc) {
	s.mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		if s.limiter != nil && !s.limiter.allow(clientKey(r, s.config.TrustXForwardedFor)) {
			httpThrottledTotal.Inc()
			rec.Header().Set("Retry-After", "1")
			writeError(rec, http.StatusTooManyRequests, "rate limit exceeded")
		} else {
			h(rec, r)
		}

		httpRequestsTotal.WithLabelValues(name, strconv.Itoa(rec.status)).Inc()
		s.logger.Debug().
			Str("route", name).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("Request served")
	}))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// partitionParam reads ?region=, defaulting to every partition.
func partitionParam(r *http.Request) (string, bool) {
	p := store.CanonicalPartition(r.URL.Query().Get("region"))
	if p == store.AllPartitions {
		return p, true
	}
	_, ok := riot.Lookup(p)
	return p, ok
}

func (s *Server) handleCompositions(w http.ResponseWriter, r *http.Request) {
	partition, ok := partitionParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown region")
		return
	}
	s.serveStats(w, r, store.KindCompositions, partition)
}

func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("type")
	if !store.ValidEntityKind(kind) {
		writeError(w, http.StatusBadRequest, "invalid entity type")
		return
	}
	partition, ok := partitionParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown region")
		return
	}
	s.serveStats(w, r, kind, partition)
}

func (s *Server) serveStats(w http.ResponseWriter, r *http.Request, kind, partition string) {
	data, err := s.store.ProcessedStats(r.Context(), kind, partition)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no data available")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("kind", kind).Str("partition", partition).Msg("Failed to load stats")
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", CacheControl)
	_, _ = w.Write(data)
}

func (s *Server) handleCombos(w http.ResponseWriter, r *http.Request) {
	partition, ok := partitionParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown region")
		return
	}
	data, err := s.store.ProcessedStats(r.Context(), store.KindCompositions, partition)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no data available")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("partition", partition).Msg("Failed to load compositions")
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}

	var res aggregate.Result
	if err := json.Unmarshal(data, &res); err != nil {
		s.logger.Error().Err(err).Str("partition", partition).Msg("Stored compositions are malformed")
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}

	item := r.PathValue("item")
	w.Header().Set("Cache-Control", CacheControl)
	writeJSON(w, http.StatusOK, map[string]any{
		"item":   item,
		"region": partition,
		"combos": combo.ForItem(&res, item),
	})
}

func (s *Server) handlePartitions(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.store.PartitionStatuses(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load partition statuses")
		writeError(w, http.StatusInternalServerError, "failed to load partitions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"partitions": statuses})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
