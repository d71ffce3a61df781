// Package session issues the anonymous browser session that keys the
// agent name and the mounted wizard pages.
package session

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const DefaultCookieName = "ghia_session"

type Options struct {
	CookieName string
	TTL        time.Duration
	// Secure is "true", "false" or empty for auto-detection from TLS and
	// X-Forwarded-Proto.
	Secure   string
	SameSite string
}

type Service struct {
	logger *log.Logger

	cookieName string
	ttl        time.Duration
	secure     string
	sameSite   http.SameSite

	newID func() string
	now   func() time.Time
}

func NewService(opts Options, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	name := strings.TrimSpace(opts.CookieName)
	if name == "" {
		name = DefaultCookieName
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 365 * 24 * time.Hour
	}
	return &Service{
		logger:     logger,
		cookieName: name,
		ttl:        ttl,
		secure:     strings.ToLower(strings.TrimSpace(opts.Secure)),
		sameSite:   parseSameSite(opts.SameSite),
		newID:      func() string { return uuid.NewString() },
		now:        time.Now,
	}
}

func parseSameSite(v string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

func (s *Service) CookieName() string { return s.cookieName }

// FromRequest returns the session id carried by the request cookie, if it
// is well formed.
func (s *Service) FromRequest(r *http.Request) (string, bool) {
	c, err := r.Cookie(s.cookieName)
	if err != nil {
		return "", false
	}
	id, err := uuid.Parse(strings.TrimSpace(c.Value))
	if err != nil {
		return "", false
	}
	return id.String(), true
}

func (s *Service) shouldUseSecureCookie(r *http.Request) bool {
	switch s.secure {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	}
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https")
}

func (s *Service) SetSessionCookie(w http.ResponseWriter, r *http.Request, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    id,
		Path:     "/",
		Expires:  s.now().Add(s.ttl),
		HttpOnly: true,
		Secure:   s.shouldUseSecureCookie(r),
		SameSite: s.sameSite,
	})
}

// Ensure gives every request a session, issuing a new cookie when the
// request carries none.
func (s *Service) Ensure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.FromRequest(r)
		if !ok {
			if c, err := r.Cookie(s.cookieName); err == nil && c.Value != "" {
				s.logger.Printf("[session] replacing malformed %s cookie", s.cookieName)
			}
			id = s.newID()
			s.SetSessionCookie(w, r, id)
		}
		next.ServeHTTP(w, r.WithContext(withID(r.Context(), id)))
	})
}

// ID is a resolver for handlers that take a func(*http.Request) string.
func (s *Service) ID(r *http.Request) string {
	if id, ok := IDFromContext(r.Context()); ok {
		return id
	}
	id, _ := s.FromRequest(r)
	return id
}
