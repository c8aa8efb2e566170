package web

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"
	"time"
)

const sessionCookieName = "chathub_session"

type sessionEntry struct {
	username string
	expires  time.Time
}

// sessionStore keeps login sessions in memory for the life of the process.
type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]sessionEntry
	ttl      time.Duration
	secure   bool
	now      func() time.Time
}

func newSessionStore(ttl time.Duration, secure bool) *sessionStore {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &sessionStore{
		sessions: make(map[string]sessionEntry),
		ttl:      ttl,
		secure:   secure,
		now:      time.Now,
	}
}

func (s *sessionStore) create(w http.ResponseWriter, username string) {
	id := generateSessionID()
	expires := s.now().Add(s.ttl)

	s.mu.Lock()
	s.sessions[id] = sessionEntry{username: username, expires: expires}
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    id,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// userFromRequest resolves the session cookie. Expired sessions are dropped.
func (s *sessionStore) userFromRequest(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[cookie.Value]
	if !ok {
		return "", false
	}
	if !s.now().Before(entry.expires) {
		delete(s.sessions, cookie.Value)
		return "", false
	}
	return entry.username, true
}

func (s *sessionStore) destroy(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return
	}

	s.mu.Lock()
	delete(s.sessions, cookie.Value)
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func generateSessionID() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic("failed to generate session id")
	}
	return hex.EncodeToString(buf)
}
