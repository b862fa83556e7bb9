// Package auth implements JWT bearer-token verification for the gateway
// control surface. There are no user accounts in the simulator, so only
// verification is needed, not registration/login.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrTokenExpired = errors.New("auth: token expired")
)

// Claims is the JWT payload verified on every gateway request when a
// secret is configured.
type Claims struct {
	Subject string   `json:"sub"`
	Perms   []string `json:"perms,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks bearer tokens against a shared HMAC secret. A nil
// *Verifier (or one built with an empty secret) means auth is disabled:
// Verify always succeeds with an empty Claims, matching the gateway's
// "no jwtSecret configured" posture.
type Verifier struct {
	secret []byte
}

// New builds a Verifier for secret. An empty secret disables
// verification entirely.
func New(secret string) *Verifier {
	if secret == "" {
		return nil
	}
	return &Verifier{secret: []byte(secret)}
}

// Sign issues a token for subject, valid for ttl.
func (v *Verifier) Sign(subject string, perms []string, ttl time.Duration) (string, error) {
	if v == nil {
		return "", fmt.Errorf("auth: signing disabled, no secret configured")
	}
	claims := &Claims{
		Subject: subject,
		Perms:   perms,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// Verify checks an Authorization header value ("Bearer <token>" or a
// bare token) and returns its claims.
func (v *Verifier) Verify(header string) (*Claims, error) {
	if v == nil {
		return &Claims{}, nil
	}

	tokenString := strings.TrimPrefix(header, "Bearer ")
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
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
