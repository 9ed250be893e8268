package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"triviakit/core"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	// Admin callers presented an API key and may act for any user.
	Admin bool
	User  core.UserID
}

type principalKey struct{}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the caller stored by the auth middleware.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// Claims are the JWT claims accepted from players. The subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for user. Used by tests and the CLI.
func IssueToken(secret []byte, user core.UserID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   string(user),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func parseToken(secret []byte, token string) (core.UserID, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	parsed, err := parser.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) { return secret, nil })
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return "", errors.New("invalid token")
	}
	return core.NormalizeUserID(core.UserID(claims.Subject))
}

// withAuth accepts either a static API key (admin) or a player JWT. Requests
// without credentials are rejected.
func withAuth(next http.Handler, apiKeys []string, jwtSecret []byte) http.Handler {
	allowed := make(map[string]struct{}, len(apiKeys))
	for _, k := range apiKeys {
		k = strings.TrimSpace(k)
		if k != "" {
			allowed[k] = struct{}{}
		}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := extractAPIKey(r)
		if key == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing credentials", nil)
			return
		}
		if _, ok := allowed[key]; ok {
			next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), Principal{Admin: true})))
			return
		}
		if len(jwtSecret) == 0 {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid API key", nil)
			return
		}
		user, err := parseToken(jwtSecret, key)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), Principal{User: user})))
	})
}

// authorizeUser reports whether the caller may act for user. Unauthenticated
// deployments allow everything.
func authorizeUser(r *http.Request, user core.UserID) bool {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		return true
	}
	return p.Admin || p.User == user
}

func authorizeAdmin(r *http.Request) bool {
	p, ok := PrincipalFrom(r.Context())
	return !ok || p.Admin
}

// withRateLimit applies a simple token-bucket limiter per client key.
func withRateLimit(next http.Handler, rpm int, burst int) http.Handler {
	limiter := newRateLimiter(rpm, burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.allow(clientKey(r), time.Now()) {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractAPIKey(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	// browsers cannot set headers on websocket upgrades
	return r.URL.Query().Get("token")
}

// clientKey uses the credential if present, otherwise the remote IP.
func clientKey(r *http.Request) string {
	if key := extractAPIKey(r); key != "" {
		return key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type rateLimiter struct {
	rpm   float64
	burst float64
	mu    sync.Mutex
	b     map[string]*bucket
}

type bucket struct {
	tokens float64
	last   time.Time
}

func newRateLimiter(rpm, burst int) *rateLimiter {
	return &rateLimiter{rpm: float64(rpm), burst: float64(burst), b: make(map[string]*bucket)}
}

func (l *rateLimiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.b[key]
	if !ok {
		l.b[key] = &bucket{tokens: l.burst - 1, last: now}
		return true
	}
	b.tokens = min(l.burst, b.tokens+now.Sub(b.last).Minutes()*l.rpm)
	b.last = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
