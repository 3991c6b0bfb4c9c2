package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testService(t *testing.T) *Service {
	t.Helper()
	key, err := GenerateKeyPair(2048)
	require.NoError(t, err)
	cfg := &Config{Issuer: "treasury-line", Audience: "treasury-desk", Expiration: time.Hour}
	return NewServiceWithKeys(cfg, key, &key.PublicKey)
}

func TestIssueAndValidate(t *testing.T) {
	svc := testService(t)

	token, err := svc.IssueToken("jsmith", "rates", RoleTrader)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "jsmith", claims.Trader)
	assert.Equal(t, "rates", claims.Desk)
	assert.True(t, claims.HasRole(RoleTrader))
	assert.False(t, claims.HasRole(RoleAdmin))
	assert.True(t, claims.HasAnyRole(RoleAdmin, RoleTrader))
}

func TestValidateToken_Rejects(t *testing.T) {
	svc := testService(t)
	other := testService(t)

	foreign, err := other.IssueToken("jsmith", "", RoleTrader)
	require.NoError(t, err)

	wrongAudience := NewServiceWithKeys(&Config{Issuer: "treasury-line", Audience: "elsewhere", Expiration: time.Hour}, svc.privateKey, svc.publicKey)
	misdirected, err := wrongAudience.IssueToken("jsmith", "", RoleTrader)
	require.NoError(t, err)

	expiredSvc := NewServiceWithKeys(&Config{Issuer: "treasury-line", Audience: "treasury-desk", Expiration: -time.Minute}, svc.privateKey, svc.publicKey)
	expired, err := expiredSvc.IssueToken("jsmith", "", RoleTrader)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":        "not.a.token",
		"foreign key":    foreign,
		"wrong audience": misdirected,
		"expired":        expired,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidToken))
		})
	}
}

func TestMiddleware(t *testing.T) {
	svc := testService(t)
	trader, err := svc.IssueToken("jsmith", "rates", RoleTrader)
	require.NoError(t, err)
	viewer, err := svc.IssueToken("viewer1", "rates", RoleViewer)
	require.NoError(t, err)

	var seen string
	h := svc.Middleware(RequireRole(RoleTrader)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		require.True(t, ok)
		seen = claims.Trader
		w.WriteHeader(http.StatusNoContent)
	})))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"wrong role", "Bearer " + viewer, http.StatusForbidden},
		{"trader", "Bearer " + trader, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/treasury/trades/book", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
	assert.Equal(t, "jsmith", seen)
}

func TestRequireRole_NoClaims(t *testing.T) {
	h := RequireRole(RoleTrader)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestKeyPairRoundTrip(t *testing.T) {
	dir := t.TempDir()
	priv := filepath.Join(dir, "keys", "private.pem")
	pub := filepath.Join(dir, "keys", "public.pem")

	key, err := GenerateKeyPair(2048)
	require.NoError(t, err)
	require.NoError(t, SaveKeyPair(key, priv, pub))

	svc, err := NewService(&Config{PrivateKeyPath: priv, PublicKeyPath: pub, Issuer: "i", Audience: "a", Expiration: time.Minute})
	require.NoError(t, err)
	token, err := svc.IssueToken("jsmith", "", RoleTrader)
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	assert.NoError(t, err)

	_, err = NewService(&Config{PrivateKeyPath: filepath.Join(dir, "missing.pem")})
	assert.Error(t, err)
}
