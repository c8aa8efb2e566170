// Package web is the HTTP surface: health, metrics, accounts and the
// websocket endpoint.
package web

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"chathub/internal/logger"
	"chathub/internal/metrics"
	"chathub/internal/store"
)

// Accounts is the user directory behind registration and profile updates.
type Accounts interface {
	CreateUser(ctx context.Context, username, password, avatar string) (store.User, error)
	Authenticate(ctx context.Context, username, password string) (store.User, error)
	SetAvatar(ctx context.Context, username, avatar string) error
	Theme(ctx context.Context, username string) (string, error)
	SetTheme(ctx context.Context, username, theme string) error
}

// Upgrader runs a websocket connection for an optionally authenticated user.
type Upgrader interface {
	Serve(w http.ResponseWriter, r *http.Request, user string)
}

type Options struct {
	AuthRequired  bool
	SessionTTL    time.Duration
	SecureCookie  bool
	MaxAvatarSize int64
	// MetricsPath mounts the Prometheus handler. Empty disables it.
	MetricsPath string
}

type Server struct {
	accounts Accounts
	ws       Upgrader
	sessions *sessionStore
	opts     Options
	router   *mux.Router
}

func New(accounts Accounts, ws Upgrader, opts Options) *Server {
	if opts.MaxAvatarSize <= 0 {
		opts.MaxAvatarSize = 2 << 20
	}
	s := &Server{
		accounts: accounts,
		ws:       ws,
		sessions: newSessionStore(opts.SessionTTL, opts.SecureCookie),
		opts:     opts,
		router:   mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.opts.MetricsPath != "" {
		r.Handle(s.opts.MetricsPath, metrics.Handler()).Methods(http.MethodGet)
	}
	r.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)
	r.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)
	r.HandleFunc("/avatar", s.requireUser(s.handleAvatar)).Methods(http.MethodPut)
	r.HandleFunc("/theme", s.requireUser(s.handleTheme)).Methods(http.MethodPut)
	r.Use(loggingMiddleware)
}

// Handler is the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	user, ok := s.sessions.userFromRequest(r)
	if !ok && s.opts.AuthRequired {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	s.ws.Serve(w, r, user)
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Avatar   string `json:"avatar,omitempty"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decodeJSON(w, r, &in, s.opts.MaxAvatarSize); err != nil {
		writeError(w, statusFor(err), "invalid request body")
		return
	}
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" || in.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	u, err := s.accounts.CreateUser(r.Context(), in.Username, in.Password, in.Avatar)
	switch {
	case errors.Is(err, store.ErrUserExists):
		writeError(w, http.StatusConflict, "username already taken")
		return
	case errors.Is(err, store.ErrInvalidUsername):
		writeError(w, http.StatusBadRequest, "invalid username")
		return
	case err != nil:
		logger.Error("register", "user", in.Username, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to create account")
		return
	}

	s.sessions.create(w, u.Username)
	logger.Info("user registered", "user", u.Username)
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decodeJSON(w, r, &in, 64<<10); err != nil {
		writeError(w, statusFor(err), "invalid request body")
		return
	}

	u, err := s.accounts.Authenticate(r.Context(), strings.TrimSpace(in.Username), in.Password)
	if errors.Is(err, store.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}
	if err != nil {
		logger.Error("login", "user", in.Username, "err", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	s.sessions.create(w, u.Username)
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.destroy(w, r)
	w.WriteHeader(http.StatusNoContent)
}

type userHandler func(w http.ResponseWriter, r *http.Request, user string)

func (s *Server) requireUser(next userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.sessions.userFromRequest(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "login required")
			return
		}
		next(w, r, user)
	}
}

func (s *Server) handleAvatar(w http.ResponseWriter, r *http.Request, user string) {
	var in struct {
		Avatar string `json:"avatar"`
	}
	if err := decodeJSON(w, r, &in, s.opts.MaxAvatarSize); err != nil {
		writeError(w, statusFor(err), "invalid avatar")
		return
	}
	if err := s.accounts.SetAvatar(r.Context(), user, in.Avatar); err != nil {
		s.profileError(w, user, "avatar", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTheme(w http.ResponseWriter, r *http.Request, user string) {
	var in struct {
		Theme string `json:"theme"`
	}
	if err := decodeJSON(w, r, &in, 4<<10); err != nil {
		writeError(w, statusFor(err), "invalid theme")
		return
	}
	theme := strings.TrimSpace(in.Theme)
	if theme == "" {
		writeError(w, http.StatusBadRequest, "theme is required")
		return
	}
	if err := s.accounts.SetTheme(r.Context(), user, theme); err != nil {
		s.profileError(w, user, "theme", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"theme": theme})
}

func (s *Server) profileError(w http.ResponseWriter, user, field string, err error) {
	if errors.Is(err, store.ErrUserNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	logger.Error("update profile", "user", user, "field", field, "err", err)
	writeError(w, http.StatusInternalServerError, "update failed")
}
