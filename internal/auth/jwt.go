// Package auth guards the debug API with a single static "operator"
// principal instead of the teacher's multi-tenant user/JWT-claims model: an
// end device has one operator, not a table of per-tenant accounts.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Claims is the bearer token payload for the single operator principal.
type Claims struct {
	jwt.RegisteredClaims
	DevEUI string `json:"devEUI"`
}

// Manager issues and validates bearer tokens for the operator principal
// guarding the debug API. The operator's secret is bcrypt-hashed in
// Config.API.OperatorSecretHash; there is no user table to look up.
type Manager struct {
	signingKey     []byte
	accessTokenTTL time.Duration
	secretHash     string
	devEUI         string
}

// NewManager builds a Manager from the configured signing key and the
// bcrypt hash of the operator secret.
func NewManager(signingKey []byte, secretHash string, devEUI string, accessTokenTTL time.Duration) *Manager {
	return &Manager{
		signingKey:     signingKey,
		accessTokenTTL: accessTokenTTL,
		secretHash:     secretHash,
		devEUI:         devEUI,
	}
}

// Authenticate checks the operator secret and, on success, issues a bearer
// token. There is no username: the debug API has exactly one principal.
func (m *Manager) Authenticate(secret string) (string, error) {
	if err := bcrypt.CompareHashAndPassword([]byte(m.secretHash), []byte(secret)); err != nil {
		return "", fmt.Errorf("invalid operator secret: %w", err)
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   m.devEUI,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(m.accessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "lorawan-enddevice",
		},
		DevEUI: m.devEUI,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign operator token: %w", err)
	}
	return signed, nil
}

// ValidateToken validates a bearer token presented to the debug API.
func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.signingKey, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// HashSecret bcrypt-hashes an operator secret into the form stored in
// Config.API.OperatorSecretHash.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash operator secret: %w", err)
	}
	return string(hash), nil
}
