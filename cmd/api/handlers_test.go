package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alim08/treasury_line/pkg/auth"
	"github.com/alim08/treasury_line/pkg/database"
	"github.com/alim08/treasury_line/pkg/market"
	"github.com/alim08/treasury_line/pkg/models"
	"github.com/alim08/treasury_line/pkg/trading"
	"github.com/alim08/treasury_line/pkg/yieldcurve"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCache struct {
	bonds map[string]models.Bond
	snaps []models.MarketSnapshot
	err   error
}

func (f *fakeCache) CachedBond(_ context.Context, cusip string) (models.Bond, error) {
	if f.err != nil {
		return models.Bond{}, f.err
	}
	b, ok := f.bonds[cusip]
	if !ok {
		return b, fmt.Errorf("%w: %s", market.ErrNotCached, cusip)
	}
	return b, nil
}

func (f *fakeCache) RecentSnapshots(_ context.Context, count int64) ([]models.MarketSnapshot, error) {
	if int64(len(f.snaps)) > count {
		return f.snaps[:count], f.err
	}
	return f.snaps, f.err
}

type testEnv struct {
	srv     *Server
	handler http.Handler
	bonds   *database.MemoryBondRepository
	cache   *fakeCache
}

func newTestEnv(t *testing.T, opts ...trading.Option) *testEnv {
	t.Helper()
	bonds := database.NewMemoryBondRepository()
	sim := market.NewSimulator(bonds, nil, rand.NewSource(7))
	_, err := sim.Initialize(context.Background())
	require.NoError(t, err)

	cache := &fakeCache{bonds: map[string]models.Bond{}}
	opts = append([]trading.Option{trading.WithBonds(bonds)}, opts...)
	srv := &Server{
		bonds:  bonds,
		trades: trading.NewService(database.NewMemoryTradeRepository(), opts...),
		sim:    sim,
		cache:  cache,
		view:   newMarketView(time.Minute),
		canvas: yieldcurve.DefaultCanvas(),
		checks: []healthCheck{{name: "redis", check: func(context.Context) error { return nil }}},
	}
	return &testEnv{srv: srv, handler: srv.Routes(), bonds: bonds, cache: cache}
}

func (e *testEnv) do(t *testing.T, method, path, body string, header ...string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var resp Response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	}
	return rec, resp
}

const bookBody = `{"cusip":"912828yn9","side":"BUY","quantity":5000000,"price":97.25,"yield":4.45,"counterparty":"JPM","trader":"jsmith"}`

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec, resp := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	env.srv.checks = append(env.srv.checks, healthCheck{name: "database", check: func(context.Context) error {
		return errors.New("connection refused")
	}})
	rec, resp = env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, resp.Success)
}

func TestBonds(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodGet, "/api/treasury/bonds", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, 4, resp.Meta.Total)

	var bonds []models.Bond
	raw, _ := json.Marshal(resp.Data)
	require.NoError(t, json.Unmarshal(raw, &bonds))
	var maturities []models.Maturity
	for _, b := range bonds {
		maturities = append(maturities, b.Maturity)
	}
	assert.Equal(t, []models.Maturity{models.Maturity2Y, models.Maturity5Y, models.Maturity10Y, models.Maturity30Y}, maturities)

	rec, _ = env.do(t, http.MethodGet, "/api/treasury/bonds/912828ym1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, resp = env.do(t, http.MethodGet, "/api/treasury/bonds/000000000", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, resp.Error, "000000000")
}

func TestQuote(t *testing.T) {
	env := newTestEnv(t)
	bond := market.Seed(time.Now())[0]
	env.cache.bonds[bond.CUSIP] = bond

	rec, _ := env.do(t, http.MethodGet, "/api/treasury/bonds/"+bond.CUSIP+"/quote", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/api/treasury/bonds/912810TM0/quote", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	env.cache.err = errors.New("circuit breaker is open")
	rec, _ = env.do(t, http.MethodGet, "/api/treasury/bonds/"+bond.CUSIP+"/quote", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestInitialize(t *testing.T) {
	env := newTestEnv(t)
	rec, resp := env.do(t, http.MethodPost, "/api/treasury/initialize", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(0), data["seeded"])
}

func TestBookAndCancel(t *testing.T) {
	env := newTestEnv(t, trading.WithAutoExecute(false))

	rec, resp := env.do(t, http.MethodPost, "/api/treasury/trades/book", bookBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	trade := resp.Data.(map[string]interface{})
	assert.Equal(t, "912828YN9", trade["cusip"])
	assert.Equal(t, "10Y", trade["maturity"])
	assert.Equal(t, "PENDING", trade["status"])
	id := int64(trade["id"].(float64))

	rec, _ = env.do(t, http.MethodGet, fmt.Sprintf("/api/treasury/trades/%d", id), "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, resp = env.do(t, http.MethodPut, fmt.Sprintf("/api/treasury/trades/%d/cancel", id), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CANCELLED", resp.Data.(map[string]interface{})["status"])

	// only pending trades can be cancelled
	rec, _ = env.do(t, http.MethodPut, fmt.Sprintf("/api/treasury/trades/%d/cancel", id), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/api/treasury/trades/999", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/api/treasury/trades/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBook_Rejections(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name    string
		body    string
		details bool
	}{
		{"bad json", `{"cusip":`, false},
		{"small quantity", `{"cusip":"912828YN9","side":"BUY","quantity":10,"price":97.25,"yield":4.45,"counterparty":"JPM","trader":"jsmith"}`, true},
		{"bad side", `{"cusip":"912828YN9","side":"HOLD","quantity":5000,"price":97.25,"yield":4.45,"counterparty":"JPM","trader":"jsmith"}`, true},
		{"unknown bond", `{"cusip":"000000000","side":"BUY","quantity":5000,"price":97.25,"yield":4.45,"counterparty":"JPM","trader":"jsmith"}`, false},
		{"past settlement", `{"cusip":"912828YN9","side":"BUY","quantity":5000,"price":97.25,"yield":4.45,"counterparty":"JPM","trader":"jsmith","settlementDate":"2001-01-01"}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := env.do(t, http.MethodPost, "/api/treasury/trades/book", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.False(t, resp.Success)
			assert.Equal(t, tt.details, resp.Details != nil)
		})
	}
}

func TestListTrades(t *testing.T) {
	env := newTestEnv(t)
	for _, body := range []string{
		bookBody,
		strings.Replace(bookBody, `"jsmith"`, `"adoe"`, 1),
		strings.Replace(bookBody, `"JPM"`, `"GS"`, 1),
	} {
		rec, _ := env.do(t, http.MethodPost, "/api/treasury/trades/book", body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	tests := []struct {
		query string
		want  int
	}{
		{"", 3},
		{"?trader=adoe", 1},
		{"?status=executed", 3},
		{"?status=PENDING&trader=adoe", 0},
		{"?counterparty=gs", 1},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec, resp := env.do(t, http.MethodGet, "/api/treasury/trades"+tt.query, "")
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, resp.Meta.Total)
		})
	}

	rec, resp := env.do(t, http.MethodGet, "/api/treasury/bonds/912828YN9/trades", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, resp.Meta.Total)

	rec, resp = env.do(t, http.MethodGet, "/api/treasury/blotter", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rows := resp.Data.([]interface{})
	require.Len(t, rows, 3)
	assert.Equal(t, "trade-executed", rows[0].(map[string]interface{})["rowClass"])
}

func TestYieldCurve(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodGet, "/api/treasury/yield-curve?width=800&height=300", "")
	require.Equal(t, http.StatusOK, rec.Code)
	g := resp.Data.(map[string]interface{})
	assert.Len(t, g["points"], 4)
	assert.Equal(t, float64(800), g["canvas"].(map[string]interface{})["width"])

	for _, q := range []string{"?width=wide", "?width=10&height=10"} {
		rec, _ = env.do(t, http.MethodGet, "/api/treasury/yield-curve"+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}

	rec, _ = env.do(t, http.MethodGet, "/api/treasury/yield-curve.svg", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	assert.Equal(t, 4, strings.Count(rec.Body.String(), "<circle"))

	rec, _ = env.do(t, http.MethodGet, "/api/treasury/yield-curve.html", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
}

func TestGrid_HighlightsFeedUpdates(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodGet, "/api/treasury/grid", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rows := resp.Data.([]interface{})
	require.Len(t, rows, 4)
	for _, r := range rows {
		assert.Equal(t, false, r.(map[string]interface{})["highlight"])
	}

	bonds, err := env.bonds.List(context.Background())
	require.NoError(t, err)
	bonds[2].Price = 97.5
	payload, err := json.Marshal(models.MarketSnapshot{Sequence: 1, Bonds: bonds})
	require.NoError(t, err)
	env.srv.view.observe(models.TopicMarketData, payload)
	env.srv.view.observe(models.TopicTrades, []byte(`not a snapshot`))

	_, resp = env.do(t, http.MethodGet, "/api/treasury/grid", "")
	rows = resp.Data.([]interface{})
	require.Len(t, rows, 4)
	for i, r := range rows {
		row := r.(map[string]interface{})
		assert.Equal(t, i == 2, row["highlight"], row["cusip"])
	}
}

func TestSnapshots(t *testing.T) {
	env := newTestEnv(t)
	for i := 5; i > 0; i-- {
		env.cache.snaps = append(env.cache.snaps, models.MarketSnapshot{Sequence: int64(i)})
	}

	rec, resp := env.do(t, http.MethodGet, "/api/treasury/snapshots?count=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, resp.Meta.Total)

	_, resp = env.do(t, http.MethodGet, "/api/treasury/snapshots?count=-1", "")
	assert.Equal(t, 5, resp.Meta.Total)
}

func TestBook_RequiresTraderRole(t *testing.T) {
	env := newTestEnv(t)
	key, err := auth.GenerateKeyPair(2048)
	require.NoError(t, err)
	svc := auth.NewServiceWithKeys(&auth.Config{Issuer: "treasury-line", Audience: "treasury-desk", Expiration: time.Hour}, key, &key.PublicKey)
	env.srv.auth = svc
	env.handler = env.srv.Routes()

	rec, _ := env.do(t, http.MethodPost, "/api/treasury/trades/book", bookBody)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	viewer, err := svc.IssueToken("viewer1", "rates", auth.RoleViewer)
	require.NoError(t, err)
	rec, _ = env.do(t, http.MethodPost, "/api/treasury/trades/book", bookBody, "Authorization", "Bearer "+viewer)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	trader, err := svc.IssueToken("mkelly", "rates", auth.RoleTrader)
	require.NoError(t, err)
	rec, resp := env.do(t, http.MethodPost, "/api/treasury/trades/book", bookBody, "Authorization", "Bearer "+trader)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "mkelly", resp.Data.(map[string]interface{})["trader"])

	// reads stay open
	rec, _ = env.do(t, http.MethodGet, "/api/treasury/trades", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t)
	env.srv.origins = []string{"http://localhost:4200"}
	env.handler = env.srv.Routes()

	req := httptest.NewRequest(http.MethodOptions, "/api/treasury/bonds", nil)
	req.Header.Set("Origin", "http://localhost:4200")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:4200", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/treasury/bonds", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
