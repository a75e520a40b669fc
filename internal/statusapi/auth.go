// Package statusapi is the read-only operator status/health HTTP surface
// (SPEC_FULL.md §3) — distinct from, and much smaller than, the full
// request API spec.md excludes from scope. It mirrors the teacher's
// pkg/api health/metrics routes and pkg/auth token handling, scaled down
// to a single static operator credential rather than a user database.
package statusapi

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// TokenIssuer exchanges the operator's static bearer token for a short-lived
// JWT, the same two-step shape as the teacher's JWTService but with exactly
// one caller identity instead of a user table.
type TokenIssuer struct {
	tokenHash []byte
	signKey   []byte
	ttl       time.Duration
}

// NewTokenIssuer hashes operatorToken with bcrypt so the plaintext is never
// held in memory longer than this call.
func NewTokenIssuer(operatorToken string, signKey []byte, ttl time.Duration) (*TokenIssuer, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(operatorToken), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash operator token: %w", err)
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenIssuer{tokenHash: hash, signKey: signKey, ttl: ttl}, nil
}

// Exchange validates candidate against the hashed operator token and, on
// success, signs a session JWT good for ttl.
func (i *TokenIssuer) Exchange(candidate string) (string, error) {
	if err := bcrypt.CompareHashAndPassword(i.tokenHash, []byte(candidate)); err != nil {
		return "", fmt.Errorf("invalid operator token")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   "operator",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.signKey)
}

// Validate parses and checks a session JWT previously issued by Exchange.
func (i *TokenIssuer) Validate(tokenString string) error {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.signKey, nil
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return fmt.Errorf("invalid session token")
	}
	return nil
}
