// Package auth issues and checks login sessions for the analytics API.
//
// SESSION FLOW:
//  1. POST /api/auth/login with username + password
//  2. The service checks the bcrypt hash and asks TokenService for a token
//  3. The handler stores the token in an HttpOnly cookie named "token"
//  4. RequireAuth validates the cookie on every protected route and puts an
//     explicit Session value into the request context
//
// There is no server-side session table and no package-level "current user":
// everything a handler needs about the caller travels in the signed token
// and comes back out as a Session.
//
// TOKEN LAYOUT (HS256):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Payload: {"sub":"<user id>","username":"alice","iss":"retail-analytics","exp":...}
//	- Signature: HMAC-SHA256(header+"."+payload, secret)
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// Issuer is written to and required in every token.
	Issuer = "retail-analytics"
	// SessionTTL is how long a login lasts.
	SessionTTL = 12 * time.Hour
)

// Session identifies the logged-in caller of a request.
type Session struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// TokenService handles JWT creation and validation.
//
// It holds the HMAC secret used to both sign and verify tokens, so every
// server instance must be started with the same JWT_SECRET.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService with the given secret.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret), ttl: SessionTTL}, nil
}

// TTL is the lifetime of tokens from Issue; the login cookie uses the same
// value for its Max-Age.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// claims is the JWT payload: the registered claims plus the username, so
// handlers can greet the user without a store lookup.
type claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Issue signs a token for sess valid for TTL.
func (s *TokenService) Issue(sess Session) (string, error) {
	return s.IssueWithDuration(sess, s.ttl)
}

// IssueWithDuration signs a token with a custom lifetime. Tests use a
// negative duration to get an already expired token.
func (s *TokenService) IssueWithDuration(sess Session, d time.Duration) (string, error) {
	if sess.UserID == "" {
		return "", errors.New("auth: session has no user ID")
	}
	now := time.Now()

	c := claims{
		Username: sess.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sess.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a token and returns the session it carries.
//
// The jwt library checks the signature, the expiry and the issuer. Pinning
// the accepted methods to HS256 blocks "alg":"none" and key-confusion
// tokens.
func (s *TokenService) Validate(tokenStr string) (Session, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Session{}, errors.New("auth: token expired")
		}
		return Session{}, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return Session{}, errors.New("auth: invalid token claims")
	}
	if c.Subject == "" {
		return Session{}, errors.New("auth: token has no subject")
	}

	return Session{UserID: c.Subject, Username: c.Username}, nil
}
