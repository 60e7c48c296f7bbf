// Package sessionx issues and verifies the browser session tokens carried in
// the gateway's session cookie. Tokens are compact HS256 JWTs: a base64url
// payload and signature joined by ".", signed with a single shared secret.
// There is no server-side session state; everything a request needs to prove
// is inside the token.
package sessionx

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidSession covers every verification failure: malformed token,
// signature mismatch, or expiry in the past. Callers get no more detail than
// that on purpose.
var ErrInvalidSession = errors.New("sessionx: invalid session")

// Session is the identity payload minted after a verified OIDC sign-in.
// It is immutable once issued; invalidation happens only through expiry or
// the cookie being cleared.
type Session struct {
	Email   string
	Name    string
	Picture string
	Expiry  time.Time
}

type sessionClaims struct {
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// Codec signs and verifies session tokens with a shared HMAC-SHA256 secret.
type Codec struct {
	secret []byte
	ttl    time.Duration
}

// NewCodec returns a Codec using the given signing secret and session
// lifetime.
func NewCodec(secret string, ttl time.Duration) *Codec {
	return &Codec{secret: []byte(secret), ttl: ttl}
}

// TTL returns the configured session lifetime, used to size the cookie's
// Max-Age alongside the token's own expiry claim.
func (c *Codec) TTL() time.Duration { return c.ttl }

// Sign serializes and signs a session for the given identity. The expiry is
// stamped here from the codec's TTL.
func (c *Codec) Sign(email, name, picture string) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		Name:    name,
		Picture: picture,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Verify parses a session token and returns its payload. It fails closed:
// any decoding failure, a signature that does not match (compared in constant
// time by the library), a signing method other than HS256, or an expiry in
// the past all yield ErrInvalidSession. The signature is checked before any
// claim is trusted.
func (c *Codec) Verify(token string) (Session, error) {
	claims := &sessionClaims{}
	tok, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing algorithm")
		}
		return c.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !tok.Valid {
		return Session{}, ErrInvalidSession
	}

	if claims.Subject == "" {
		return Session{}, ErrInvalidSession
	}

	return Session{
		Email:   claims.Subject,
		Name:    claims.Name,
		Picture: claims.Picture,
		Expiry:  claims.ExpiresAt.Time,
	}, nil
}
