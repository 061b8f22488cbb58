// Package notify issues and verifies stateless unsubscribe tokens. A token
// is an HMAC-signed claim over (user, category, issued_at); verification
// needs no per-token storage. The trade-off is explicit: individual tokens
// cannot be revoked, only a preference change or secret rotation
// invalidates them.
package notify

import (
	"errors"
	"fmt"
	"time"

	"github.com/amaumene/sequelarr/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for tokens that fail signature, expiry or
// claim validation.
var ErrInvalidToken = errors.New("invalid unsubscribe token")

type claims struct {
	UserID   string          `json:"uid"`
	Category models.Category `json:"cat"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies unsubscribe tokens with a server secret
type TokenIssuer struct {
	secret []byte
	maxAge time.Duration
}

// NewTokenIssuer creates a token issuer. The secret is required; tokens
// older than maxAge fail verification.
func NewTokenIssuer(secret string, maxAge time.Duration) (*TokenIssuer, error) {
	if secret == "" {
		return nil, fmt.Errorf("unsubscribe secret is required: %w", models.ErrConfiguration)
	}
	if maxAge <= 0 {
		maxAge = 30 * 24 * time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), maxAge: maxAge}, nil
}

// Issue creates a signed token for (userID, category)
func (t *TokenIssuer) Issue(userID string, category models.Category) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserID:   userID,
		Category: category,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.maxAge)),
		},
	})

	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign unsubscribe token: %w", err)
	}
	return signed, nil
}

// Verify checks the token signature and age and returns the claimed user
// and category.
func (t *TokenIssuer) Verify(tokenString string) (string, models.Category, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return "", "", ErrInvalidToken
	}
	if c.UserID == "" || !models.ValidCategory(c.Category) {
		return "", "", fmt.Errorf("%w: malformed claims", ErrInvalidToken)
	}

	return c.UserID, c.Category, nil
}
