package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/matheus3301/wisp/internal/apperr"
)

const tokenIssuer = "wispd"

// Claims is the payload of a signed access token.
type Claims struct {
	UID       string `json:"uid"`
	Username  string `json:"username"`
	ExpiresAt int64  `json:"exp"`
	IssuedAt  int64  `json:"iat"`
	Issuer    string `json:"iss"`
}

type ctxKey int

const uidKey ctxKey = 0

// UIDFrom returns the authenticated user id stored by the auth
// middleware.
func UIDFrom(ctx context.Context) string {
	uid, _ := ctx.Value(uidKey).(string)
	return uid
}

// SignToken mints an HS256 token for the user.
func SignToken(secret, uid, username string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UID:       uid,
		Username:  username,
		ExpiresAt: now.Add(ttl).Unix(),
		IssuedAt:  now.Unix(),
		Issuer:    tokenIssuer,
	}
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}
	message := header + "." + base64.RawURLEncoding.EncodeToString(payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return message + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}

// VerifyToken checks the signature, expiry and issuer of a token.
func VerifyToken(secret, token string) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, apperr.Unauthenticated("invalid token format")
	}

	message := parts[0] + "." + parts[1]
	signature, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, apperr.Unauthenticated("invalid token signature encoding")
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	if !hmac.Equal(signature, mac.Sum(nil)) {
		return nil, apperr.Unauthenticated("invalid token signature")
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, apperr.Unauthenticated("invalid token payload encoding")
	}
	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, apperr.Unauthenticated("invalid token payload")
	}
	if time.Now().Unix() > claims.ExpiresAt {
		return nil, apperr.Unauthenticated("token expired")
	}
	if claims.Issuer != tokenIssuer {
		return nil, apperr.Unauthenticated("invalid token issuer")
	}
	return &claims, nil
}

// authMiddleware rejects requests without a valid Bearer token and
// stores the caller's uid on the request context.
func authMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, apperr.Unauthenticated("no authorization header"))
				return
			}
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				writeError(w, apperr.Unauthenticated("invalid authorization header format"))
				return
			}
			claims, err := VerifyToken(secret, parts[1])
			if err != nil {
				writeError(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), uidKey, claims.UID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
