// Package middleware provides the HTTP middleware chain: authentication,
// metrics, request logging, rate limiting and CORS.
package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/auctionhouse/marketplace/internal/domain/market"
	"github.com/auctionhouse/marketplace/internal/errors"
	"github.com/auctionhouse/marketplace/internal/httputil"
	"github.com/auctionhouse/marketplace/internal/logging"
)

// Claims is the accepted JWT payload. Role decides which operations the
// caller may perform.
type Claims struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Auth validates bearer tokens and attaches the principal to the request
// context.
type Auth struct {
	secret       []byte
	audience     string
	log          *logging.Logger
	skipPaths    map[string]bool
	skipPrefixes []string
}

// NewAuth creates an authentication middleware verifying HMAC-signed tokens.
// A skip entry ending in "*" matches by prefix.
func NewAuth(secret []byte, audience string, log *logging.Logger, skipPaths []string) *Auth {
	a := &Auth{secret: secret, audience: audience, log: log, skipPaths: make(map[string]bool)}
	for _, p := range skipPaths {
		if strings.HasSuffix(p, "*") {
			a.skipPrefixes = append(a.skipPrefixes, strings.TrimSuffix(p, "*"))
		} else {
			a.skipPaths[p] = true
		}
	}
	if a.log == nil {
		a.log = logging.New("auth")
	}
	return a
}

func (a *Auth) skip(path string) bool {
	if a.skipPaths[path] {
		return true
	}
	for _, p := range a.skipPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Handler returns the middleware handler.
func (a *Auth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.skip(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" {
			httputil.WriteError(w, errors.Unauthorized("missing Authorization header"))
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			httputil.WriteError(w, errors.Unauthorized("invalid Authorization header format"))
			return
		}

		claims, err := a.validateToken(parts[1])
		if err != nil {
			a.log.WithContext(r.Context()).WithError(err).Warn("token validation failed")
			httputil.WriteError(w, err)
			return
		}

		ctx := logging.WithUser(r.Context(), claims.UserID, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Auth) validateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if a.audience != "" {
		opts = append(opts, jwt.WithAudience(a.audience))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, errors.Unauthorized("invalid token").WithDetails("reason", err.Error())
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.Unauthorized("invalid token")
	}
	if claims.UserID == "" {
		return nil, errors.Unauthorized("token has no subject")
	}
	if !market.Role(claims.Role).Valid() {
		return nil, errors.Unauthorized("token has no recognised role")
	}
	return claims, nil
}

// PrincipalFrom builds the caller's principal from the request context.
// The boolean is false when the request is unauthenticated.
func PrincipalFrom(r *http.Request) (market.Principal, bool) {
	id := logging.GetUserID(r.Context())
	if id == "" {
		return market.Principal{}, false
	}
	return market.Principal{UserID: id, Role: market.Role(logging.GetRole(r.Context()))}, true
}
