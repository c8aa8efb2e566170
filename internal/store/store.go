// Package store persists messages, reactions, pins and user profiles in
// SQLite. It has no routing logic; the broker decides who sees what.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	// SystemSender is the reserved sender of join and welcome messages.
	SystemSender = "System"

	DefaultRoom        = "Lobby"
	DefaultListLimit   = 500
	DefaultPinnedLimit = 50
	DefaultSearchLimit = 200
	DefaultRoomsLimit  = 100
)

var (
	ErrInvalidConversation = errors.New("conversation must name exactly one of room or receiver")
	ErrUserExists          = errors.New("user already exists")
	ErrUserNotFound        = errors.New("user not found")
	ErrInvalidCredentials  = errors.New("invalid username or password")
	ErrInvalidUsername     = errors.New("invalid username")
)

// Options tune Open.
type Options struct {
	DefaultRoom string
	BusyTimeout time.Duration
}

// Store is safe for concurrent use. All access goes through a single pooled
// connection, so every statement and transaction is isolated from the rest.
type Store struct {
	db          *sql.DB
	defaultRoom string
}

// Open opens (creating if needed) the database at path and ensures the schema.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	if opts.DefaultRoom == "" {
		opts.DefaultRoom = DefaultRoom
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 5 * time.Second
	}

	db, err := sql.Open("sqlite", dsn(path, opts.BusyTimeout))
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping store %s: %w", path, err)
	}
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return &Store{db: db, defaultRoom: opts.DefaultRoom}, nil
}

func dsn(path string, busy time.Duration) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + q.Encode()
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DefaultRoom is the room every client lands in when none is named.
func (s *Store) DefaultRoom() string {
	return s.defaultRoom
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	const usersTable = `
    CREATE TABLE IF NOT EXISTS users (
        username TEXT PRIMARY KEY,
        password_hash BLOB NOT NULL,
        avatar TEXT,
        theme TEXT NOT NULL DEFAULT 'dark',
        created_at TIMESTAMP NOT NULL
    );`
	if _, err := db.ExecContext(ctx, usersTable); err != nil {
		return err
	}

	const messagesTable = `
    CREATE TABLE IF NOT EXISTS messages (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        room TEXT,
        sender TEXT NOT NULL,
        receiver TEXT,
        body TEXT NOT NULL DEFAULT '',
        image TEXT,
        reply_to INTEGER,
        created_at TIMESTAMP NOT NULL
    );`
	if _, err := db.ExecContext(ctx, messagesTable); err != nil {
		return err
	}

	const reactionsTable = `
    CREATE TABLE IF NOT EXISTS reactions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        message_id INTEGER NOT NULL,
        username TEXT NOT NULL,
        emoji TEXT NOT NULL,
        UNIQUE(message_id, username, emoji)
    );`
	if _, err := db.ExecContext(ctx, reactionsTable); err != nil {
		return err
	}

	const pinsTable = `
    CREATE TABLE IF NOT EXISTS pins (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        message_id INTEGER NOT NULL,
        room TEXT NOT NULL
    );`
	if _, err := db.ExecContext(ctx, pinsTable); err != nil {
		return err
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room, id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_dm ON messages(sender, receiver, id)`,
		`CREATE INDEX IF NOT EXISTS idx_reactions_message ON reactions(message_id)`,
		`CREATE INDEX IF NOT EXISTS idx_pins_room ON pins(room, id)`,
	}
	for _, stmt := range indexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	return nil
}

func withTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
