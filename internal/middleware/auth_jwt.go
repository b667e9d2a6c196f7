package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// TokenClaims are the HS256 claims carried by API bearer tokens. Sub is the
// credit owner id.
type TokenClaims struct {
	Sub      string `json:"sub"`
	Locale   string `json:"locale,omitempty"`
	Exp      int64  `json:"exp"`
	Issuer   string `json:"iss,omitempty"`
	Audience string `json:"aud,omitempty"`
}

// JWTConfig configures bearer token verification. Empty Issuer or Audience
// skips that check.
type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience string
}

type ownerKey struct{}

// ownerHolder lets the access logger see the owner resolved further down
// the middleware chain.
type ownerHolder struct{ ownerID string }

type ownerHolderKey struct{}

func withOwnerHolder(ctx context.Context, h *ownerHolder) context.Context {
	return context.WithValue(ctx, ownerHolderKey{}, h)
}

// signedClaims is the wire form of TokenClaims.
type signedClaims struct {
	Locale string `json:"locale,omitempty"`
	jwt.RegisteredClaims
}

func (c TokenClaims) signed() signedClaims {
	out := signedClaims{Locale: c.Locale}
	out.Subject = c.Sub
	out.Issuer = c.Issuer
	if c.Audience != "" {
		out.Audience = jwt.ClaimStrings{c.Audience}
	}
	if c.Exp != 0 {
		out.ExpiresAt = jwt.NewNumericDate(time.Unix(c.Exp, 0))
	}
	return out
}

func (c signedClaims) tokenClaims() *TokenClaims {
	out := &TokenClaims{Sub: c.Subject, Locale: c.Locale, Issuer: c.Issuer}
	if len(c.Audience) > 0 {
		out.Audience = c.Audience[0]
	}
	if c.ExpiresAt != nil {
		out.Exp = c.ExpiresAt.Unix()
	}
	return out
}

func SignJWT(secret string, claims TokenClaims) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is empty")
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims.signed()).SignedString([]byte(secret))
}

// VerifyJWT accepts HS256 tokens only. Expiry is checked when exp is set.
func VerifyJWT(cfg JWTConfig, token string) (*TokenClaims, error) {
	var claims signedClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() || cfg.Secret == "" {
			return nil, ErrInvalidToken
		}
		return []byte(cfg.Secret), nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	case err != nil:
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	if cfg.Issuer != "" && !claims.VerifyIssuer(cfg.Issuer, true) {
		return nil, ErrInvalidToken
	}
	if cfg.Audience != "" && !claims.VerifyAudience(cfg.Audience, true) {
		return nil, ErrInvalidToken
	}
	return claims.tokenClaims(), nil
}

// AuthJWT rejects requests without a valid bearer token and stores the owner
// id in the context. A locale claim replaces the negotiated locale.
func AuthJWT(cfg JWTConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				WriteError(w, r, http.StatusUnauthorized, "unauthorized", "missing authorization")
				return
			}
			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") {
				WriteError(w, r, http.StatusUnauthorized, "unauthorized", "invalid authorization")
				return
			}
			claims, err := VerifyJWT(cfg, strings.TrimSpace(token))
			if err != nil {
				WriteError(w, r, http.StatusUnauthorized, "unauthorized", err.Error())
				return
			}
			ctx := context.WithValue(r.Context(), ownerKey{}, claims.Sub)
			if holder, ok := ctx.Value(ownerHolderKey{}).(*ownerHolder); ok {
				holder.ownerID = claims.Sub
			}
			if claims.Locale != "" {
				ctx = context.WithValue(ctx, LocaleKey, NormalizeLocale(claims.Locale))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func OwnerIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ownerKey{}).(string); ok {
		return v
	}
	return ""
}

func ContextWithOwnerID(ctx context.Context, ownerID string) context.Context {
	if strings.TrimSpace(ownerID) == "" {
		return ctx
	}
	return context.WithValue(ctx, ownerKey{}, ownerID)
}
