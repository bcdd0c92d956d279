// Package auth resolves the requesting user from bearer tokens. Usage
// aggregation is per user; everything else on the API is anonymous.
package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rotisserie/eris"
)

// Resolver extracts the user id from a request, if any.
type Resolver interface {
	// UserID returns nil for anonymous requests and an error only for
	// requests that present a token that fails verification.
	UserID(r *http.Request) (*string, error)
}

// TokenService signs and verifies HS256 session tokens.
type TokenService struct {
	Secret   []byte
	Issuer   string
	Duration time.Duration
}

// Claims carried by a session token.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Sign issues a token for the user id.
func (ts TokenService) Sign(userID string) (string, time.Time, error) {
	exp := time.Now().Add(ts.Duration)

	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.Issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString(ts.Secret)
	if err != nil {
		return "", time.Time{}, eris.Wrap(err, "auth: sign token")
	}
	return s, exp, nil
}

// Parse verifies a token and returns its claims.
func (ts TokenService) Parse(tokenString string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		// enforce HS256
		if token.Method != jwt.SigningMethodHS256 {
			return nil, eris.Errorf("auth: unexpected signing method %v", token.Header["alg"])
		}
		return ts.Secret, nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "auth: parse token")
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, eris.New("auth: invalid token claims")
	}
	return claims, nil
}

// UserID implements Resolver. The token is read from the Authorization
// header, falling back to the session cookie the web client sets.
func (ts TokenService) UserID(r *http.Request) (*string, error) {
	raw := ""
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		raw = strings.TrimPrefix(h, "Bearer ")
	} else if c, err := r.Cookie("session"); err == nil {
		raw = c.Value
	}
	if raw == "" {
		return nil, nil
	}

	claims, err := ts.Parse(raw)
	if err != nil {
		return nil, err
	}
	id := claims.UserID
	if id == "" {
		id = claims.Subject
	}
	if id == "" {
		return nil, eris.New("auth: token has no subject")
	}
	return &id, nil
}
