/*
Package gateway - auth bookkeeping collaborator.

JWT shape: HS256, custom Claims embedding jwt.RegisteredClaims. The
secret and TTL are plain fields on Authenticator rather than
package-level vars, so the façade constructs one value once from
Config and hands it to whatever needs to mint or verify a token.
*/
package gateway

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("gateway: invalid auth token")
	ErrTokenExpired = errors.New("gateway: auth token expired")
)

// Claims is the JWT payload minted for an authenticated connection.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Authenticator mints and verifies tokens for connection-layer auth
// bookkeeping.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
}

// NewAuthenticator constructs an Authenticator. ttl defaults to 24h if
// zero.
func NewAuthenticator(secret []byte, ttl time.Duration) *Authenticator {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Authenticator{secret: secret, ttl: ttl}
}

// Issue mints a signed token for userID/username.
func (a *Authenticator) Issue(userID, username string) (string, error) {
	claims := &Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(a.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "imgw",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// Verify parses and validates tokenString, returning the embedded
// Claims on success.
func (a *Authenticator) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
