package session

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ContextKey is the gin context key holding the current Session.
const ContextKey = "session"

// Validator reports whether a server-side session record is still active.
type Validator interface {
	IsSessionActive(ctx context.Context, id string) bool
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(ctx context.Context, id string) bool

// IsSessionActive calls f.
func (f ValidatorFunc) IsSessionActive(ctx context.Context, id string) bool { return f(ctx, id) }

// Manager reads and writes the session cookie on gin requests.
type Manager struct {
	codec     *Codec
	validator Validator
	log       *zap.Logger
}

// NewManager creates a Manager. validator may be nil, in which case any
// correctly signed, unexpired cookie is accepted.
func NewManager(codec *Codec, validator Validator, log *zap.Logger) *Manager {
	return &Manager{codec: codec, validator: validator, log: log}
}

// Load returns a middleware that puts the request's Session into the gin context.
// Invalid or revoked cookies are cleared; the request always continues.
func (m *Manager) Load() gin.HandlerFunc {
	return func(c *gin.Context) {
		value, err := c.Cookie(m.codec.opts.Name)
		if err != nil || value == "" {
			c.Next()
			return
		}

		s, err := m.codec.Decode(value)
		if err != nil {
			m.log.Debug("discarding invalid session cookie", zap.String("remote_addr", c.ClientIP()))
			m.Clear(c)
			c.Next()
			return
		}

		if m.validator != nil && s.ID != "" && !m.validator.IsSessionActive(c.Request.Context(), s.ID) {
			m.log.Debug("discarding revoked session", zap.String("sid", s.ID))
			m.Clear(c)
			c.Next()
			return
		}

		c.Set(ContextKey, s)
		c.Next()
	}
}

// Save writes s as the session cookie and makes it current for the rest of the request.
func (m *Manager) Save(c *gin.Context, s Session) error {
	value, exp, err := m.codec.Encode(s)
	if err != nil {
		return err
	}
	s.ExpiresAt = exp

	opts := m.codec.opts
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     opts.Name,
		Value:    value,
		Path:     opts.Path,
		Expires:  exp,
		MaxAge:   int(opts.Lifetime.Seconds()),
		Secure:   opts.Secure,
		HttpOnly: opts.HTTPOnly,
		SameSite: opts.SameSite,
	})
	c.Set(ContextKey, s)
	return nil
}

// Clear expires the session cookie.
func (m *Manager) Clear(c *gin.Context) {
	opts := m.codec.opts
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     opts.Name,
		Value:    "",
		Path:     opts.Path,
		MaxAge:   -1,
		Secure:   opts.Secure,
		HttpOnly: opts.HTTPOnly,
		SameSite: opts.SameSite,
	})
	c.Set(ContextKey, Session{})
}

// Current returns the Session loaded for this request.
func Current(c *gin.Context) (Session, bool) {
	v, ok := c.Get(ContextKey)
	if !ok {
		return Session{}, false
	}
	s, ok := v.(Session)
	return s, ok
}

// IsLoggedIn reports whether the request carries a logged-in session.
func IsLoggedIn(c *gin.Context) bool {
	s, ok := Current(c)
	return ok && s.LoggedIn
}

// RequireLogin redirects requests without a logged-in session to loginPath.
func RequireLogin(loginPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsLoggedIn(c) {
			c.Redirect(http.StatusFound, loginPath)
			c.Abort()
			return
		}
		c.Next()
	}
}
