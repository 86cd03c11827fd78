package auth

import (
	"fmt"
	"time"

	"stataggg-chat/errors"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "stataggg-chat"

// CustomClaims defines the structure of the data stored inside the JWT.
type CustomClaims struct {
	UserKey string   `json:"user_key"`
	Roles   []string `json:"roles"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and checks the session cookie.
type TokenIssuer struct {
	secret   []byte
	duration time.Duration
	now      func() time.Time
}

func NewTokenIssuer(secret string, duration time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), duration: duration, now: time.Now}
}

// Generate creates a signed HS256 token for a user.
func (t *TokenIssuer) Generate(userKey string, roles []string) (string, error) {
	now := t.now()
	claims := &CustomClaims{
		UserKey: userKey,
		Roles:   roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userKey,
			ExpiresAt: jwt.NewNumericDate(now.Add(t.duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Validate checks signature, algorithm, issuer and expiration.
// Every failure is reported as ErrInvalidToken.
func (t *TokenIssuer) Validate(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid || claims.UserKey == "" {
		return nil, errors.ErrInvalidToken
	}
	return claims, nil
}
