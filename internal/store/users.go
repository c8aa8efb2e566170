package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// User is a registered account. The password hash never leaves this package.
type User struct {
	Username  string    `json:"username"`
	Avatar    string    `json:"avatar,omitempty"`
	Theme     string    `json:"theme,omitempty"`
	CreatedAt time.Time `json:"-"`

	passwordHash []byte
}

// Profile is the public view of a user used in presence and user lists.
type Profile struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

// CreateUser registers username with a bcrypt hash of password.
func (s *Store) CreateUser(ctx context.Context, username, password, avatar string) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" || username == SystemSender {
		return User{}, fmt.Errorf("create user %q: %w", username, ErrInvalidUsername)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	u := User{
		Username:     username,
		Avatar:       avatar,
		Theme:        "dark",
		CreatedAt:    time.Now().UTC(),
		passwordHash: hash,
	}
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE username = ?`, username).Scan(&exists); err != nil {
			return err
		}
		if exists > 0 {
			return ErrUserExists
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO users (username, password_hash, avatar, theme, created_at) VALUES (?, ?, ?, ?, ?)`,
			u.Username, u.passwordHash, nullString(u.Avatar), u.Theme, u.CreatedAt)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrUserExists) {
			return User{}, err
		}
		return User{}, fmt.Errorf("create user %s: %w", username, err)
	}
	return u, nil
}

func (s *Store) getUser(ctx context.Context, username string) (User, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT username, password_hash, avatar, theme, created_at FROM users WHERE username = ?`, username)

	var (
		u      User
		avatar sql.NullString
	)
	if err := row.Scan(&u.Username, &u.passwordHash, &avatar, &u.Theme, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, false, nil
		}
		return User{}, false, err
	}
	u.Avatar = avatar.String
	return u, true, nil
}

// Authenticate checks password against the stored hash.
func (s *Store) Authenticate(ctx context.Context, username, password string) (User, error) {
	u, ok, err := s.getUser(ctx, strings.TrimSpace(username))
	if err != nil {
		return User{}, fmt.Errorf("lookup user: %w", err)
	}
	if !ok || bcrypt.CompareHashAndPassword(u.passwordHash, []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

// Exists reports whether username is registered.
func (s *Store) Exists(ctx context.Context, username string) (bool, error) {
	_, ok, err := s.getUser(ctx, username)
	if err != nil {
		return false, fmt.Errorf("lookup user %s: %w", username, err)
	}
	return ok, nil
}

// Avatar returns the user's avatar, or "" for unknown users or users without one.
func (s *Store) Avatar(ctx context.Context, username string) (string, error) {
	var avatar sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT avatar FROM users WHERE username = ?`, username).Scan(&avatar)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("avatar for %s: %w", username, err)
	}
	return avatar.String, nil
}

// SetAvatar replaces the user's avatar.
func (s *Store) SetAvatar(ctx context.Context, username, avatar string) error {
	return s.updateUser(ctx, `UPDATE users SET avatar = ? WHERE username = ?`, nullString(avatar), username)
}

// Theme returns the user's theme preference, "dark" when unknown.
func (s *Store) Theme(ctx context.Context, username string) (string, error) {
	u, ok, err := s.getUser(ctx, username)
	if err != nil {
		return "", fmt.Errorf("theme for %s: %w", username, err)
	}
	if !ok || u.Theme == "" {
		return "dark", nil
	}
	return u.Theme, nil
}

// SetTheme stores the user's theme preference.
func (s *Store) SetTheme(ctx context.Context, username, theme string) error {
	return s.updateUser(ctx, `UPDATE users SET theme = ? WHERE username = ?`, theme, username)
}

func (s *Store) updateUser(ctx context.Context, query string, value any, username string) error {
	res, err := s.db.ExecContext(ctx, query, value, username)
	if err != nil {
		return fmt.Errorf("update user %s: %w", username, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user %s: %w", username, err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ListUsers returns every registered user's public profile, sorted by name.
func (s *Store) ListUsers(ctx context.Context) ([]Profile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT username, avatar FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []Profile{}
	for rows.Next() {
		var (
			p      Profile
			avatar sql.NullString
		)
		if err := rows.Scan(&p.Username, &avatar); err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		p.Avatar = avatar.String
		users = append(users, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}
