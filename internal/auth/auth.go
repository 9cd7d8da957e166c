// Package auth issues and verifies client API tokens. A token is a
// signed credential carrying the client id it grants access to; the
// status-export API rejects a token unless it maps to the exact client
// being requested.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for tokens that fail verification.
var ErrInvalidToken = errors.New("invalid or unverifiable token")

// Verifier is the credential collaborator the API layer depends on.
type Verifier interface {
	// IssueToken mints a token bound to a client id.
	IssueToken(clientID string) (string, error)
	// VerifyToken returns the client id a token is bound to.
	VerifyToken(token string) (string, error)
}

// HMACVerifier signs client tokens with HMAC-SHA256. Tokens are
// long-lived and revoked by rotating the secret, so they carry no
// expiry.
type HMACVerifier struct {
	secret []byte
}

// NewHMACVerifier creates a verifier from a shared secret.
func NewHMACVerifier(secret string) (*HMACVerifier, error) {
	if secret == "" {
		return nil, errors.New("auth secret is not set")
	}
	return &HMACVerifier{secret: []byte(secret)}, nil
}

// IssueToken mints a signed token whose subject is the client id.
func (v *HMACVerifier) IssueToken(clientID string) (string, error) {
	if clientID == "" {
		return "", errors.New("client id is required")
	}
	claims := jwt.RegisteredClaims{
		Subject:  clientID,
		IssuedAt: jwt.NewNumericDate(time.Now()),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken validates the signature and returns the bound client id.
func (v *HMACVerifier) VerifyToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
