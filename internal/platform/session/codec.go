// Package session implements the signed session cookie shared by every route group.
package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidSession is returned for cookies that are malformed, tampered with or expired.
var ErrInvalidSession = errors.New("invalid session")

// Session is the state carried by the cookie.
type Session struct {
	ID        string // revocation record ID
	Username  string
	LoggedIn  bool
	ExpiresAt time.Time
}

// claims is the signed payload. sub holds the username.
type claims struct {
	SessionID string `json:"sid"`
	LoggedIn  bool   `json:"logged_in"`
	jwt.RegisteredClaims
}

// CookieOptions is the cookie policy.
type CookieOptions struct {
	Name     string
	Path     string
	Lifetime time.Duration
	Secure   bool
	HTTPOnly bool
	SameSite http.SameSite
}

// DefaultCookieOptions returns name "session", SameSite=Lax, Secure, HttpOnly, one hour.
func DefaultCookieOptions() CookieOptions {
	return CookieOptions{
		Name:     "session",
		Path:     "/",
		Lifetime: time.Hour,
		Secure:   true,
		HTTPOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// Codec signs and verifies session cookies with HMAC-SHA256.
type Codec struct {
	secret []byte
	opts   CookieOptions
	now    func() time.Time
}

// NewCodec creates a Codec. The secret must not be empty.
func NewCodec(secret string, opts CookieOptions) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("session secret is empty")
	}
	if opts.Name == "" {
		opts.Name = "session"
	}
	if opts.Path == "" {
		opts.Path = "/"
	}
	if opts.Lifetime <= 0 {
		opts.Lifetime = time.Hour
	}
	return &Codec{secret: []byte(secret), opts: opts, now: time.Now}, nil
}

// Options returns the cookie policy in effect.
func (c *Codec) Options() CookieOptions {
	return c.opts
}

// Encode signs s. ExpiresAt is set from the configured lifetime.
func (c *Codec) Encode(s Session) (string, time.Time, error) {
	now := c.now()
	exp := now.Add(c.opts.Lifetime)
	cl := claims{
		SessionID: s.ID,
		LoggedIn:  s.LoggedIn,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, cl)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session: %w", err)
	}
	return signed, exp, nil
}

// Decode verifies the signature and expiry of a cookie value.
func (c *Codec) Decode(value string) (Session, error) {
	var cl claims
	token, err := jwt.ParseWithClaims(value, &cl, func(t *jwt.Token) (interface{}, error) {
		// HMAC 以外の署名方式は拒否
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(c.now), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return Session{}, ErrInvalidSession
	}

	s := Session{
		ID:       cl.SessionID,
		Username: cl.Subject,
		LoggedIn: cl.LoggedIn,
	}
	if cl.ExpiresAt != nil {
		s.ExpiresAt = cl.ExpiresAt.Time
	}
	return s, nil
}
