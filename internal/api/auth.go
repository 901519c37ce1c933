package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

var errUnauthorized = errors.New("unauthorized")

// Verifier checks a bearer token.
type Verifier interface {
	Verify(token string) error
}

// StaticToken accepts exactly one shared token.
type StaticToken string

// Verify implements Verifier.
func (s StaticToken) Verify(token string) error {
	if subtle.ConstantTimeCompare([]byte(s), []byte(token)) != 1 {
		return errUnauthorized
	}
	return nil
}

// HMACVerifier accepts HS256 JWTs signed with a shared secret.
type HMACVerifier struct {
	secret []byte
}

// NewHMACVerifier returns a verifier for tokens signed with secret.
func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

// Verify implements Verifier.
func (v *HMACVerifier) Verify(token string) error {
	return parseJWT(token, func(*jwt.Token) (any, error) { return v.secret, nil }, "HS256")
}

// JWKSVerifier accepts RS256/ES256 JWTs signed by a key from a remote JWKS.
// Keys are cached and refreshed by keyfunc.
type JWKSVerifier struct {
	jwks keyfunc.Keyfunc
}

// NewJWKSVerifier fetches the key set at url.
func NewJWKSVerifier(ctx context.Context, url string) (*JWKSVerifier, error) {
	if url == "" {
		return nil, errors.New("auth: JWKS URL cannot be empty")
	}
	k, err := keyfunc.NewDefaultCtx(ctx, []string{url})
	if err != nil {
		return nil, fmt.Errorf("auth: create JWKS client: %w", err)
	}
	return &JWKSVerifier{jwks: k}, nil
}

// Verify implements Verifier.
func (v *JWKSVerifier) Verify(token string) error {
	return parseJWT(token, v.jwks.Keyfunc, "RS256", "ES256")
}

// parseJWT restricts the signing algorithm to prevent algorithm confusion.
func parseJWT(token string, kf jwt.Keyfunc, algs ...string) error {
	parsed, err := jwt.Parse(token, kf, jwt.WithValidMethods(algs))
	if err != nil || !parsed.Valid {
		return errUnauthorized
	}
	if sub, _ := parsed.Claims.GetSubject(); sub == "" {
		return errUnauthorized
	}
	return nil
}
