package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

type contextKey string

const AdminContextKey contextKey = "admin"

// AdminTokenHeader carries the shared admin token.
const AdminTokenHeader = "X-Admin-Token"

// AdminSessionTTL is the lifetime of tokens issued by the login endpoint.
const AdminSessionTTL = 7 * 24 * time.Hour

const adminSubject = "admin"

var (
	ErrAdminDisabled   = errors.New("admin token not configured")
	ErrInvalidAdmin    = errors.New("invalid admin token")
	ErrJWTNotAvailable = errors.New("admin JWT secret not configured")
)

// AdminClaims identifies an admin session.
type AdminClaims struct {
	Subject   string
	ExpiresAt time.Time
	// ViaToken is set when the request presented the shared token itself.
	ViaToken bool
}

// AdminAuth gates admin routes behind the shared token or a JWT issued in
// exchange for it. The token itself is only kept as a bcrypt hash.
type AdminAuth struct {
	tokenHash []byte
	jwtSecret []byte
	now       func() time.Time
}

// NewAdminAuth hashes token. An empty token leaves admin routes open.
func NewAdminAuth(token, jwtSecret string) (*AdminAuth, error) {
	a := &AdminAuth{jwtSecret: []byte(jwtSecret), now: time.Now}
	if token == "" {
		return a, nil
	}
	hash, err := bcrypt.GenerateFromPassword(digest(token), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash admin token: %w", err)
	}
	a.tokenHash = hash
	return a, nil
}

// bcrypt only reads 72 bytes; pre-hashing keeps long tokens significant.
func digest(token string) []byte {
	sum := sha256.Sum256([]byte(token))
	return []byte(hex.EncodeToString(sum[:]))
}

// Open reports whether admin routes are unprotected.
func (a *AdminAuth) Open() bool {
	return len(a.tokenHash) == 0
}

// CheckToken compares token with the configured admin token.
func (a *AdminAuth) CheckToken(token string) bool {
	if a.Open() || token == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(a.tokenHash, digest(token)) == nil
}

// Login exchanges the admin token for a signed session token.
func (a *AdminAuth) Login(token string) (string, time.Time, error) {
	if a.Open() {
		return "", time.Time{}, ErrAdminDisabled
	}
	if len(a.jwtSecret) == 0 {
		return "", time.Time{}, ErrJWTNotAvailable
	}
	if !a.CheckToken(token) {
		return "", time.Time{}, ErrInvalidAdmin
	}

	now := a.now()
	expires := now.Add(AdminSessionTTL)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   adminSubject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}).SignedString(a.jwtSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign admin token: %w", err)
	}
	return signed, expires, nil
}

func (a *AdminAuth) parseJWT(tokenString string) (AdminClaims, error) {
	if len(a.jwtSecret) == 0 {
		return AdminClaims{}, ErrJWTNotAvailable
	}
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return a.jwtSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return AdminClaims{}, fmt.Errorf("invalid admin session: %w", err)
	}
	if claims.Subject != adminSubject {
		return AdminClaims{}, ErrInvalidAdmin
	}
	return AdminClaims{Subject: claims.Subject, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// RequireAdmin accepts X-Admin-Token, ?token= or Authorization: Bearer <jwt>.
func (a *AdminAuth) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.Open() {
			next.ServeHTTP(w, r)
			return
		}

		if token := r.Header.Get(AdminTokenHeader); token != "" || r.URL.Query().Has("token") {
			if token == "" {
				token = r.URL.Query().Get("token")
			}
			if !a.CheckToken(token) {
				log.Warn().Str("path", r.URL.Path).Str("remote", r.RemoteAddr).Msg("❌ Invalid admin token")
				writeForbidden(w)
				return
			}
			ctx := context.WithValue(r.Context(), AdminContextKey, AdminClaims{Subject: adminSubject, ViaToken: true})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || bearer == "" {
			writeForbidden(w)
			return
		}
		claims, err := a.parseJWT(bearer)
		if err != nil {
			log.Warn().Err(err).Str("path", r.URL.Path).Msg("❌ Invalid admin session")
			writeForbidden(w)
			return
		}

		ctx := context.WithValue(r.Context(), AdminContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeForbidden(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	w.Write([]byte(`{"status":"forbidden"}`))
}

// GetAdminFromContext extracts admin claims from request context
func GetAdminFromContext(r *http.Request) (AdminClaims, bool) {
	claims, ok := r.Context().Value(AdminContextKey).(AdminClaims)
	return claims, ok
}

// AuthMethod names how the request passed RequireAdmin: "token", "session"
// or "open" when no admin token is configured.
func AuthMethod(r *http.Request) string {
	claims, ok := GetAdminFromContext(r)
	switch {
	case !ok:
		return "open"
	case claims.ViaToken:
		return "token"
	default:
		return "session"
	}
}
