// Package auth holds the building blocks of login state: bcrypt password
// hashing, signed session tokens, the identity middleware and the optional
// GitHub OAuth provider.
//
// SESSION FLOW:
//  1. POST /login/ verifies the password and creates a server-side session row
//  2. The server signs a JWT whose subject is the user ID and whose jti is the
//     session ID, and stores it in an HttpOnly cookie
//  3. On every request the Identify middleware validates the token, looks the
//     session up (so logout can revoke it) and loads the user by ID
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: {"alg":"HS256","typ":"JWT"}
//	- Payload: {"sub":"<userID>","jti":"<sessionID>","iss":"snippetbox","exp":...}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "snippetbox"

// ErrInvalidToken is returned by Validate for any token that fails
// signature, issuer, expiry or claim checks.
var ErrInvalidToken = errors.New("auth: invalid token")

// TokenService handles JWT creation and validation.
//
// It holds the HMAC secret key used to sign and verify tokens.
type TokenService struct {
	secret []byte
	now    func() time.Time
}

// NewTokenService creates a TokenService with the given secret.
// Example: SESSION_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: session secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret), now: time.Now}, nil
}

// Claims is what a valid token proves: which user, and which server-side
// session the token was issued for.
type Claims struct {
	UserID    string
	SessionID string
	ExpiresAt time.Time
}

// Generate signs a token for the given user and session that expires after ttl.
func (s *TokenService) Generate(userID, sessionID string, ttl time.Duration) (string, error) {
	if userID == "" || sessionID == "" {
		return "", errors.New("auth: token needs a user ID and a session ID")
	}
	now := s.now()

	c := jwt.RegisteredClaims{
		Subject:   userID,
		ID:        sessionID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		Issuer:    issuer,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate parses and verifies a JWT string.
//
// VALIDATION CHECKS (performed by the jwt library):
//   - Signature is valid (wasn't tampered with)
//   - Token is not expired
//   - Issuer matches "snippetbox"
//   - Algorithm is HS256 (prevents algorithm confusion attacks)
//
// Every failure wraps ErrInvalidToken.
func (s *TokenService) Validate(tokenStr string) (*Claims, error) {
	var rc jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&rc,
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: token expired", ErrInvalidToken)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if rc.Subject == "" || rc.ID == "" {
		return nil, fmt.Errorf("%w: missing subject or session id", ErrInvalidToken)
	}

	return &Claims{
		UserID:    rc.Subject,
		SessionID: rc.ID,
		ExpiresAt: rc.ExpiresAt.Time,
	}, nil
}
