package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "spotthespy"

// ErrInvalidToken indicates the token failed validation or belongs to
// another player or session.
var ErrInvalidToken = errors.New("invalid player token")

// Claims binds a player (the subject) to one session.
type Claims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 player tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens returns nil when secret is empty, which disables player tokens.
func NewTokens(secret string, ttl time.Duration) *Tokens {
	if secret == "" {
		return nil
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token proving playerID's seat in sessionID.
func (t *Tokens) Issue(playerID, sessionID string) (string, error) {
	now := t.now().UTC()
	claims := Claims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   issuer,
			Subject:  playerID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if t.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(t.ttl))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and that the token was issued to playerID
// for sessionID.
func (t *Tokens) Verify(token, playerID, sessionID string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidToken
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil || !parsed.Valid {
		return ErrInvalidToken
	}
	if claims.Subject != playerID || claims.SessionID != sessionID {
		return ErrInvalidToken
	}
	return nil
}
