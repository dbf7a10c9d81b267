package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "ngxconfig"

var ErrInvalidToken = errors.New("auth: invalid token")

type SessionClaims struct {
	SessionID uuid.UUID `json:"sid"`
	Mode      ViewMode  `json:"mode"`
	jwt.RegisteredClaims
}

type JWTHandler struct {
	secretKey []byte
	ttl       time.Duration
}

func NewJWTHandler(secretKey string, ttl time.Duration) *JWTHandler {
	return &JWTHandler{
		secretKey: []byte(secretKey),
		ttl:       ttl,
	}
}

// GenerateSessionToken signs a token for a new session in the given mode.
func (j *JWTHandler) GenerateSessionToken(mode ViewMode) (string, *SessionClaims, error) {
	now := time.Now()
	claims := &SessionClaims{
		SessionID: uuid.New(),
		Mode:      mode,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(j.secretKey)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, claims, nil
}

// ValidateSessionToken validates and parses a session token
func (j *JWTHandler) ValidateSessionToken(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secretKey, nil
	}, jwt.WithIssuer(issuer))

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if _, err := ParseViewMode(string(claims.Mode)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}
