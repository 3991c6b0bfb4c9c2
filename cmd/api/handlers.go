package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/alim08/treasury_line/pkg/auth"
	"github.com/alim08/treasury_line/pkg/database"
	"github.com/alim08/treasury_line/pkg/grid"
	"github.com/alim08/treasury_line/pkg/logger"
	"github.com/alim08/treasury_line/pkg/market"
	"github.com/alim08/treasury_line/pkg/metrics"
	"github.com/alim08/treasury_line/pkg/models"
	"github.com/alim08/treasury_line/pkg/trading"
	"github.com/alim08/treasury_line/pkg/validation"
	"github.com/alim08/treasury_line/pkg/yieldcurve"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	maxBodyBytes         = 1 << 20
	defaultSnapshotCount = 20
)

// healthHandler runs every dependency check and reports 503 if any fails.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(s.checks))
	for _, c := range s.checks {
		if err := c.check(ctx); err != nil {
			logger.Log.Warn("health check failed", zap.String("check", c.name), zap.Error(err))
			checks[c.name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[c.name] = "ok"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "unhealthy"
	}
	writeJSON(w, status, Response{
		Success: status == http.StatusOK,
		Data: map[string]interface{}{
			"status":    state,
			"checks":    checks,
			"timestamp": time.Now().Unix(),
		},
	})
}

// listBondsHandler returns every bond ordered by maturity.
func (s *Server) listBondsHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	bonds, err := s.bonds.List(r.Context())
	if err != nil {
		logger.Log.Error("failed to list bonds", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to retrieve bonds")
		return
	}
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    bonds,
		Meta:    &Meta{Total: len(bonds), Duration: time.Since(start).Milliseconds()},
	})
}

func (s *Server) getBondHandler(w http.ResponseWriter, r *http.Request) {
	cusip := validation.SanitizeCode(chi.URLParam(r, "cusip"))
	bond, err := s.bonds.GetByCUSIP(r.Context(), cusip)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("No bond found for CUSIP: %s", cusip))
		return
	}
	if err != nil {
		logger.Log.Error("failed to get bond", zap.Error(err), zap.String("cusip", cusip))
		writeError(w, http.StatusInternalServerError, "Failed to retrieve bond")
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: bond})
}

// getQuoteHandler serves the latest cached quote, which can be fresher than
// the stored bond when the simulator runs elsewhere.
func (s *Server) getQuoteHandler(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		writeError(w, http.StatusServiceUnavailable, "Quote cache unavailable")
		return
	}
	cusip := validation.SanitizeCode(chi.URLParam(r, "cusip"))
	bond, err := s.cache.CachedBond(r.Context(), cusip)
	if errors.Is(err, market.ErrNotCached) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("No quote cached for CUSIP: %s", cusip))
		return
	}
	if err != nil {
		logger.Log.Error("failed to read cached quote", zap.Error(err), zap.String("cusip", cusip))
		writeError(w, http.StatusInternalServerError, "Failed to retrieve quote")
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: bond})
}

func (s *Server) bondTradesHandler(w http.ResponseWriter, r *http.Request) {
	cusip := chi.URLParam(r, "cusip")
	trades, err := s.trades.ByCUSIP(r.Context(), cusip)
	if err != nil {
		logger.Log.Error("failed to list trades by cusip", zap.Error(err), zap.String("cusip", cusip))
		writeError(w, http.StatusInternalServerError, "Failed to retrieve trades")
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: trades, Meta: &Meta{Total: len(trades)}})
}

// initializeHandler seeds the on-the-run set when the store is empty.
func (s *Server) initializeHandler(w http.ResponseWriter, r *http.Request) {
	n, err := s.sim.Initialize(r.Context())
	if err != nil {
		logger.Log.Error("failed to initialize market data", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to initialize market data")
		return
	}
	msg := "Market data already initialized"
	if n > 0 {
		msg = "Market data initialized"
	}
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    map[string]interface{}{"message": msg, "seeded": n},
	})
}

// listTradesHandler supports ?status=, ?trader= and ?counterparty=. Status
// wins over trader; counterparty is used only when neither is given.
func (s *Server) listTradesHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := trading.Filter{
		Status: q.Get("status"),
		Trader: validation.SanitizeString(q.Get("trader")),
	}

	var (
		trades []models.Trade
		err    error
	)
	if cp := validation.SanitizeString(q.Get("counterparty")); cp != "" && f.Status == "" && f.Trader == "" {
		trades, err = s.trades.ByCounterparty(r.Context(), cp)
	} else {
		trades, err = s.trades.List(r.Context(), f)
	}
	if err != nil {
		logger.Log.Error("failed to list trades", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to retrieve trades")
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: trades, Meta: &Meta{Total: len(trades)}})
}

func (s *Server) getTradeHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := tradeID(w, r)
	if !ok {
		return
	}
	trade, err := s.trades.Get(r.Context(), id)
	if err != nil {
		s.writeTradeError(w, err, "Failed to retrieve trade")
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: trade})
}

// bookTradeHandler books a trade. When auth is on, the trader is always the
// authenticated user.
func (s *Server) bookTradeHandler(w http.ResponseWriter, r *http.Request) {
	var req trading.BookRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		req.Trader = claims.Trader
	}

	trade, err := s.trades.Book(r.Context(), req)
	if err != nil {
		s.writeTradeError(w, err, "Failed to book trade")
		return
	}
	writeJSON(w, http.StatusCreated, Response{Success: true, Data: trade})
}

func (s *Server) cancelTradeHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := tradeID(w, r)
	if !ok {
		return
	}
	trade, err := s.trades.Cancel(r.Context(), id)
	if err != nil {
		s.writeTradeError(w, err, "Failed to cancel trade")
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: trade})
}

func tradeID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Trade id must be a positive integer")
		return 0, false
	}
	return id, true
}

// writeTradeError maps trading errors onto status codes. A trade that is
// no longer pending is reported as not found, like a missing one.
func (s *Server) writeTradeError(w http.ResponseWriter, err error, fallback string) {
	var verrs validation.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		writeJSON(w, http.StatusBadRequest, Response{Error: "Validation failed", Details: verrs})
	case errors.Is(err, trading.ErrInvalidTrade), errors.Is(err, trading.ErrUnknownBond):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, trading.ErrTradeNotFound), errors.Is(err, trading.ErrNotCancellable):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		logger.Log.Error(fallback, zap.Error(err))
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

// canvasFromQuery overrides the configured canvas with ?width= and ?height=.
func (s *Server) canvasFromQuery(r *http.Request) (yieldcurve.Canvas, error) {
	c := s.canvas
	for _, p := range []struct {
		name string
		dst  *float64
	}{{"width", &c.Width}, {"height", &c.Height}} {
		raw := r.URL.Query().Get(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return c, fmt.Errorf("%s must be a number", p.name)
		}
		*p.dst = v
	}
	return c, nil
}

func (s *Server) geometry(w http.ResponseWriter, r *http.Request) (yieldcurve.Geometry, bool) {
	canvas, err := s.canvasFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return yieldcurve.Geometry{}, false
	}
	bonds, err := s.bonds.List(r.Context())
	if err != nil {
		logger.Log.Error("failed to list bonds", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to retrieve bonds")
		return yieldcurve.Geometry{}, false
	}
	quotes := make([]models.CurveQuote, len(bonds))
	for i, b := range bonds {
		quotes[i] = b.CurveQuote()
	}

	g, err := yieldcurve.Build(quotes, canvas)
	if errors.Is(err, yieldcurve.ErrInvalidCanvas) {
		writeError(w, http.StatusBadRequest, err.Error())
		return g, false
	}
	if err != nil {
		logger.Log.Error("failed to build yield curve", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to build yield curve")
		return g, false
	}
	return g, true
}

// yieldCurveHandler returns the laid-out geometry for clients that draw it
// themselves.
func (s *Server) yieldCurveHandler(w http.ResponseWriter, r *http.Request) {
	g, ok := s.geometry(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: g})
}

func (s *Server) renderCurveHandler(renderer yieldcurve.Renderer, format string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g, ok := s.geometry(w, r)
		if !ok {
			return
		}

		start := time.Now()
		var buf bytes.Buffer
		err := renderer.Render(&buf, g)
		metrics.CurveRenderDuration.WithLabelValues(format).Observe(time.Since(start).Seconds())
		if err != nil {
			logger.Log.Error("failed to render yield curve", zap.String("format", format), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Failed to render yield curve")
			return
		}

		w.Header().Set("Content-Type", renderer.ContentType())
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	}
}

// gridHandler returns formatted market rows. Rows updated by the feed in
// the last highlight window carry highlight=true.
func (s *Server) gridHandler(w http.ResponseWriter, r *http.Request) {
	if s.view.empty() {
		bonds, err := s.bonds.List(r.Context())
		if err != nil {
			logger.Log.Error("failed to list bonds", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Failed to retrieve bonds")
			return
		}
		s.view.apply(bonds)
	}
	rows := s.view.rows()
	writeJSON(w, http.StatusOK, Response{Success: true, Data: rows, Meta: &Meta{Total: len(rows)}})
}

func (s *Server) blotterHandler(w http.ResponseWriter, r *http.Request) {
	trades, err := s.trades.List(r.Context(), trading.Filter{})
	if err != nil {
		logger.Log.Error("failed to list trades", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to retrieve trades")
		return
	}
	rows := grid.FormatTradeRows(trades)
	writeJSON(w, http.StatusOK, Response{Success: true, Data: rows, Meta: &Meta{Total: len(rows)}})
}

// snapshotsHandler returns recent market snapshots newest first.
func (s *Server) snapshotsHandler(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		writeError(w, http.StatusServiceUnavailable, "Snapshot history unavailable")
		return
	}
	count, _ := strconv.ParseInt(r.URL.Query().Get("count"), 10, 64)
	if count < 1 || count > market.DefaultStreamLen {
		count = defaultSnapshotCount
	}

	snaps, err := s.cache.RecentSnapshots(r.Context(), count)
	if err != nil {
		logger.Log.Error("failed to read snapshots", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to retrieve snapshots")
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: snaps, Meta: &Meta{Total: len(snaps)}})
}
