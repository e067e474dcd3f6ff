package sessions

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenIssuer = "clinic-booking"

// ErrInvalidToken is returned for cookies that fail verification.
var ErrInvalidToken = errors.New("sessions: invalid session token")

// TokenSigner wraps session ids in short HMAC-signed JWTs so a cookie can
// only name a session this service created. A signer with an empty secret
// passes bare UUIDs through.
type TokenSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenSigner creates a signer whose tokens expire after ttl.
func NewTokenSigner(secret string, ttl time.Duration) *TokenSigner {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TokenSigner{
		secret: []byte(strings.TrimSpace(secret)),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *TokenSigner) enabled() bool {
	return s != nil && len(s.secret) > 0
}

// Sign returns the cookie value for id.
func (s *TokenSigner) Sign(id string) (string, error) {
	if !s.enabled() {
		return id, nil
	}
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   id,
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sessions: sign token: %w", err)
	}
	return signed, nil
}

// Verify returns the session id carried by value.
func (s *TokenSigner) Verify(value string) (string, error) {
	value = strings.TrimSpace(value)
	if !s.enabled() {
		if _, err := uuid.Parse(value); err != nil {
			return "", ErrInvalidToken
		}
		return value, nil
	}
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(value, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
