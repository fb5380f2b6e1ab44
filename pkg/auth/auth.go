// Package auth checks API credentials: HMAC-signed JWTs and a static API
// key kept either in clear or as a bcrypt hash.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"recipelens/pkg/config"
)

// ErrUnauthorized is returned for any credential that does not verify.
var ErrUnauthorized = errors.New("unauthorized")

// Claims are the JWT claims issued to API clients.
type Claims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope,omitempty"`
}

// Verifier holds the configured secrets. A zero field disables that
// credential type.
type Verifier struct {
	secret     []byte
	apiKey     string
	apiKeyHash []byte
	issuer     string
	ttl        time.Duration
}

// NewVerifier builds a verifier from the auth config section.
func NewVerifier(cfg config.AuthConfig) *Verifier {
	v := &Verifier{
		apiKey: cfg.APIKey,
		issuer: cfg.Issuer,
		ttl:    cfg.TokenTTL,
	}
	if cfg.JWTSecret != "" {
		v.secret = []byte(cfg.JWTSecret)
	}
	if cfg.APIKeyHash != "" {
		v.apiKeyHash = []byte(cfg.APIKeyHash)
	}
	if v.ttl <= 0 {
		v.ttl = 24 * time.Hour
	}
	return v
}

// IssueToken signs an HS256 token for subject.
func (v *Verifier) IssueToken(subject, scope string, now time.Time) (string, time.Time, error) {
	if len(v.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("auth.jwt_secret is not set")
	}
	if strings.TrimSpace(subject) == "" {
		return "", time.Time{}, fmt.Errorf("subject required")
	}
	exp := now.Add(v.ttl)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Scope: scope,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate token: %w", err)
	}
	return signed, exp, nil
}

// VerifyToken parses and validates a bearer token.
func (v *Verifier) VerifyToken(tokenString string) (*Claims, error) {
	if len(v.secret) == 0 {
		return nil, ErrUnauthorized
	}
	claims := &Claims{}
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if !token.Valid {
		return nil, ErrUnauthorized
	}
	return claims, nil
}

// VerifyAPIKey compares key against the configured key in constant time, or
// against the bcrypt hash when one is set.
func (v *Verifier) VerifyAPIKey(key string) error {
	if key == "" {
		return ErrUnauthorized
	}
	if len(v.apiKeyHash) > 0 {
		if bcrypt.CompareHashAndPassword(v.apiKeyHash, []byte(key)) == nil {
			return nil
		}
	}
	if v.apiKey != "" && subtle.ConstantTimeCompare([]byte(v.apiKey), []byte(key)) == 1 {
		return nil
	}
	return ErrUnauthorized
}

// HashAPIKey returns the bcrypt hash to store in auth.api_key_hash.
func HashAPIKey(key string) (string, error) {
	if len(key) < 16 {
		return "", fmt.Errorf("api key too short (min 16)")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
