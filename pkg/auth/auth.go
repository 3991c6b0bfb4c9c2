package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/alim08/treasury_line/pkg/logger"
	"github.com/alim08/treasury_line/pkg/metrics"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Desk roles.
const (
	RoleTrader = "trader"
	RoleViewer = "viewer"
	RoleAdmin  = "admin"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims identifies a desk user.
type Claims struct {
	Trader string   `json:"trader"`
	Desk   string   `json:"desk,omitempty"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// HasRole checks if the user has a specific role
func (c *Claims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

// HasAnyRole checks if the user has any of the specified roles
func (c *Claims) HasAnyRole(roles ...string) bool {
	for _, r := range roles {
		if c.HasRole(r) {
			return true
		}
	}
	return false
}

// Service signs and verifies RS256 tokens.
type Service struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	issuer     string
	audience   string
	expiration time.Duration
}

// Config holds authentication configuration
type Config struct {
	PrivateKeyPath string
	PublicKeyPath  string
	Issuer         string
	Audience       string
	Expiration     time.Duration
}

// NewConfig creates a new auth configuration from environment variables
func NewConfig() *Config {
	return &Config{
		PrivateKeyPath: getEnvOrDefault("JWT_PRIVATE_KEY_PATH", "keys/private.pem"),
		PublicKeyPath:  getEnvOrDefault("JWT_PUBLIC_KEY_PATH", "keys/public.pem"),
		Issuer:         getEnvOrDefault("JWT_ISSUER", "treasury-line"),
		Audience:       getEnvOrDefault("JWT_AUDIENCE", "treasury-desk"),
		Expiration:     getEnvDurationOrDefault("JWT_EXPIRATION", 12*time.Hour),
	}
}

// NewService loads the key pair named in config.
func NewService(config *Config) (*Service, error) {
	privateKey, err := LoadPrivateKey(config.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load private key: %w", err)
	}
	publicKey, err := LoadPublicKey(config.PublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load public key: %w", err)
	}
	return NewServiceWithKeys(config, privateKey, publicKey), nil
}

// NewServiceWithKeys builds a service from keys already in memory.
func NewServiceWithKeys(config *Config, privateKey *rsa.PrivateKey, publicKey *rsa.PublicKey) *Service {
	return &Service{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     config.Issuer,
		audience:   config.Audience,
		expiration: config.Expiration,
	}
}

// IssueToken signs a token for trader with the given roles.
func (a *Service) IssueToken(trader, desk string, roles ...string) (string, error) {
	now := time.Now()
	claims := Claims{
		Trader: trader,
		Desk:   desk,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   trader,
			Issuer:    a.issuer,
			Audience:  []string{a.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.expiration)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(a.privateKey)
	metrics.AuthOperations.WithLabelValues("issue_token", metrics.Status(err)).Inc()
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken verifies signature, issuer, audience and expiry.
func (a *Service) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return a.publicKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithAudience(a.audience),
	)
	metrics.AuthOperations.WithLabelValues("validate_token", metrics.Status(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Trader == "" {
		return nil, fmt.Errorf("%w: missing trader", ErrInvalidToken)
	}
	return claims, nil
}

type contextKey struct{}

// WithClaims returns a copy of ctx carrying claims.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, contextKey{}, claims)
}

// ClaimsFromContext extracts user claims from context
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(contextKey{}).(*Claims)
	return claims, ok
}

// Middleware rejects requests without a valid bearer token.
func (a *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			metrics.AuthMiddlewareErrors.WithLabelValues("missing_header").Inc()
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			metrics.AuthMiddlewareErrors.WithLabelValues("invalid_format").Inc()
			http.Error(w, "Invalid authorization format", http.StatusUnauthorized)
			return
		}

		claims, err := a.ValidateToken(tokenString)
		if err != nil {
			logger.Log.Warn("token validation failed", zap.Error(err), zap.String("ip", r.RemoteAddr))
			metrics.AuthMiddlewareErrors.WithLabelValues("invalid_token").Inc()
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// RequireRole lets the request through when the authenticated user holds
// any of roles. It must run after Middleware.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				metrics.AuthMiddlewareErrors.WithLabelValues("no_user_context").Inc()
				http.Error(w, "Authentication required", http.StatusUnauthorized)
				return
			}
			if !claims.HasAnyRole(roles...) {
				logger.Log.Warn("insufficient permissions",
					zap.String("trader", claims.Trader),
					zap.Strings("roles", claims.Roles),
					zap.Strings("required_roles", roles))
				metrics.AuthMiddlewareErrors.WithLabelValues("insufficient_permissions").Inc()
				http.Error(w, "Insufficient permissions", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GenerateKeyPair generates a new RSA key pair for JWT signing
func GenerateKeyPair(bits int) (*rsa.PrivateKey, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}
	return privateKey, nil
}

// SaveKeyPair writes PKCS#1 PEM files, creating parent directories.
func SaveKeyPair(privateKey *rsa.PrivateKey, privatePath, publicPath string) error {
	privatePEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	})
	if err := writeFile(privatePath, privatePEM, 0o600); err != nil {
		return err
	}

	publicPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PUBLIC KEY",
		Bytes: x509.MarshalPKCS1PublicKey(&privateKey.PublicKey),
	})
	return writeFile(publicPath, publicPEM, 0o644)
}

func LoadPrivateKey(filename string) (*rsa.PrivateKey, error) {
	block, err := readPEM(filename)
	if err != nil {
		return nil, err
	}
	return x509.ParsePKCS1PrivateKey(block.Bytes)
}

func LoadPublicKey(filename string) (*rsa.PublicKey, error) {
	block, err := readPEM(filename)
	if err != nil {
		return nil, err
	}
	return x509.ParsePKCS1PublicKey(block.Bytes)
}

func readPEM(filename string) (*pem.Block, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block in %s", filename)
	}
	return block, nil
}

func writeFile(filename string, data []byte, perm os.FileMode) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	return os.WriteFile(filename, data, perm)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
