package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/alim08/treasury_line/pkg/auth"
	"github.com/alim08/treasury_line/pkg/database"
	"github.com/alim08/treasury_line/pkg/logger"
	"github.com/alim08/treasury_line/pkg/market"
	"github.com/alim08/treasury_line/pkg/metrics"
	"github.com/alim08/treasury_line/pkg/models"
	"github.com/alim08/treasury_line/pkg/trading"
	"github.com/alim08/treasury_line/pkg/yieldcurve"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// quoteCache serves what the market publisher cached in Redis.
type quoteCache interface {
	CachedBond(ctx context.Context, cusip string) (models.Bond, error)
	RecentSnapshots(ctx context.Context, count int64) ([]models.MarketSnapshot, error)
}

type healthCheck struct {
	name  string
	check func(context.Context) error
}

// Server holds the API's collaborators. Nil cache, feed and auth disable
// the routes that need them.
type Server struct {
	bonds  database.BondRepository
	trades *trading.Service
	sim    *market.Simulator
	cache  quoteCache
	feed   http.Handler
	auth   *auth.Service
	view   *marketView
	canvas yieldcurve.Canvas

	origins []string
	checks  []healthCheck
}

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Details interface{} `json:"details,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// Meta describes list responses.
type Meta struct {
	Total    int   `json:"total"`
	Duration int64 `json:"duration_ms"`
}

// Routes mounts every endpoint on a chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware)
	r.Use(metricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.healthHandler)
	r.Handle("/metrics", metrics.Handler())
	if s.feed != nil {
		r.Handle("/ws", s.feed)
	}

	r.Route("/api/treasury", func(r chi.Router) {
		r.Get("/bonds", s.listBondsHandler)
		r.Get("/bonds/{cusip}", s.getBondHandler)
		r.Get("/bonds/{cusip}/quote", s.getQuoteHandler)
		r.Get("/bonds/{cusip}/trades", s.bondTradesHandler)
		r.Post("/initialize", s.initializeHandler)

		r.Get("/trades", s.listTradesHandler)
		r.Get("/trades/{id}", s.getTradeHandler)
		r.Group(func(r chi.Router) {
			if s.auth != nil {
				r.Use(s.auth.Middleware)
				r.Use(auth.RequireRole(auth.RoleTrader, auth.RoleAdmin))
			}
			r.Post("/trades/book", s.bookTradeHandler)
			r.Put("/trades/{id}/cancel", s.cancelTradeHandler)
		})

		r.Get("/yield-curve", s.yieldCurveHandler)
		r.Get("/yield-curve.svg", s.renderCurveHandler(yieldcurve.SVGRenderer{}, "svg"))
		r.Get("/yield-curve.html", s.renderCurveHandler(yieldcurve.EChartsRenderer{}, "html"))

		r.Get("/grid", s.gridHandler)
		r.Get("/blotter", s.blotterHandler)
		r.Get("/snapshots", s.snapshotsHandler)
	})
	return r
}

// writeJSON writes a JSON response with proper headers
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Log.Error("JSON encoding error", zap.Error(err))
	}
}

// writeError writes an error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Response{Success: false, Error: message})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Log.Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.String("request_id", w.Header().Get("X-Request-ID")),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Duration("duration", time.Since(start)))
	})
}

// metricsMiddleware labels by route pattern so path parameters do not
// explode label cardinality.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			endpoint = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		code := strconv.Itoa(status)
		metrics.APIRequestDuration.WithLabelValues(r.Method, endpoint, code).Observe(time.Since(start).Seconds())
		metrics.APIRequestTotal.WithLabelValues(r.Method, endpoint, code).Inc()
	})
}
