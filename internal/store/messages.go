package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Message is a room message or a direct message. Exactly one of Room and
// Receiver is set.
type Message struct {
	ID        int64     `json:"id"`
	Room      string    `json:"room,omitempty"`
	Sender    string    `json:"sender"`
	Receiver  string    `json:"receiver,omitempty"`
	Body      string    `json:"body"`
	Image     string    `json:"image,omitempty"`
	ReplyTo   *int64    `json:"reply_to,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Conversation addresses a message to a room or to a single receiver.
type Conversation struct {
	Room     string
	Receiver string
}

// InRoom addresses a room.
func InRoom(name string) Conversation {
	return Conversation{Room: name}
}

// Direct addresses a DM to receiver.
func Direct(receiver string) Conversation {
	return Conversation{Receiver: receiver}
}

func (c Conversation) valid() bool {
	return (c.Room == "") != (c.Receiver == "")
}

// Result is the outcome of an owner-only mutation.
type Result int

const (
	Applied Result = iota
	Unauthorized
	NotFound
)

func (r Result) String() string {
	switch r {
	case Applied:
		return "applied"
	case Unauthorized:
		return "unauthorized"
	case NotFound:
		return "not_found"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

const messageColumns = `m.id, m.room, m.sender, m.receiver, m.body, m.image, m.reply_to, m.created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (Message, error) {
	var (
		msg      Message
		room     sql.NullString
		receiver sql.NullString
		image    sql.NullString
		replyTo  sql.NullInt64
	)
	if err := row.Scan(&msg.ID, &room, &msg.Sender, &receiver, &msg.Body, &image, &replyTo, &msg.CreatedAt); err != nil {
		return Message{}, err
	}
	msg.Room = room.String
	msg.Receiver = receiver.String
	msg.Image = image.String
	if replyTo.Valid {
		id := replyTo.Int64
		msg.ReplyTo = &id
	}
	return msg, nil
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	defer rows.Close()

	msgs := []Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return msgs, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func getMessage(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, id int64) (Message, bool, error) {
	row := q.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages m WHERE m.id = ?`, id)
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Message{}, false, nil
		}
		return Message{}, false, err
	}
	return msg, true, nil
}

// Append stores a new message and returns it with its id and timestamp.
func (s *Store) Append(ctx context.Context, conv Conversation, sender, body, image string, replyTo *int64) (Message, error) {
	if !conv.valid() {
		return Message{}, ErrInvalidConversation
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (room, sender, receiver, body, image, reply_to, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		nullString(conv.Room), sender, nullString(conv.Receiver), body, nullString(image), nullInt(replyTo), now)
	if err != nil {
		return Message{}, fmt.Errorf("append message: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Message{}, fmt.Errorf("append message: %w", err)
	}

	return Message{
		ID:        id,
		Room:      conv.Room,
		Sender:    sender,
		Receiver:  conv.Receiver,
		Body:      body,
		Image:     image,
		ReplyTo:   replyTo,
		CreatedAt: now,
	}, nil
}

// get returns the message with id, if it exists.
func (s *Store) get(ctx context.Context, id int64) (Message, bool, error) {
	msg, ok, err := getMessage(ctx, s.db, id)
	if err != nil {
		return Message{}, false, fmt.Errorf("get message %d: %w", id, err)
	}
	return msg, ok, nil
}

// ListRoom returns a room's messages in ascending id order. DMs never appear.
func (s *Store) ListRoom(ctx context.Context, room string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx, `
        SELECT `+messageColumns+`
        FROM messages m
        WHERE m.room = ? AND m.receiver IS NULL
        ORDER BY m.id ASC
        LIMIT ?
    `, room, limit)
	if err != nil {
		return nil, fmt.Errorf("list room %s: %w", room, err)
	}
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, fmt.Errorf("list room %s: %w", room, err)
	}
	return msgs, nil
}

// ListDM returns the conversation between a and b in ascending id order,
// regardless of which side sent each message.
func (s *Store) ListDM(ctx context.Context, a, b string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx, `
        SELECT `+messageColumns+`
        FROM messages m
        WHERE (m.sender = ? AND m.receiver = ?) OR (m.sender = ? AND m.receiver = ?)
        ORDER BY m.id ASC
        LIMIT ?
    `, a, b, b, a, limit)
	if err != nil {
		return nil, fmt.Errorf("list dm %s/%s: %w", a, b, err)
	}
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, fmt.Errorf("list dm %s/%s: %w", a, b, err)
	}
	return msgs, nil
}

// Edit replaces the body of a message. Only its sender may edit it.
func (s *Store) Edit(ctx context.Context, id int64, requester, body string) (Message, Result, error) {
	var (
		updated Message
		result  Result
	)
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		msg, ok, err := getMessage(ctx, tx, id)
		if err != nil {
			return err
		}
		if !ok {
			result = NotFound
			return nil
		}
		if requester == "" || msg.Sender != requester {
			result = Unauthorized
			return nil
		}
		if _, err := tx.ExecContext(ctx, `UPDATE messages SET body = ? WHERE id = ?`, body, id); err != nil {
			return err
		}
		msg.Body = body
		updated = msg
		result = Applied
		return nil
	})
	if err != nil {
		return Message{}, NotFound, fmt.Errorf("edit message %d: %w", id, err)
	}
	return updated, result, nil
}

// Delete removes a message and its reactions. Only its sender may delete it.
// Pins pointing at it are left behind and drop out of Pinned.
func (s *Store) Delete(ctx context.Context, id int64, requester string) (Result, error) {
	var result Result
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		msg, ok, err := getMessage(ctx, tx, id)
		if err != nil {
			return err
		}
		if !ok {
			result = NotFound
			return nil
		}
		if requester == "" || msg.Sender != requester {
			result = Unauthorized
			return nil
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM reactions WHERE message_id = ?`, id); err != nil {
			return err
		}
		result = Applied
		return nil
	})
	if err != nil {
		return NotFound, fmt.Errorf("delete message %d: %w", id, err)
	}
	return result, nil
}

// Search finds room messages whose body contains query. Matching uses SQLite
// LIKE, so only ASCII letters are case-folded: "é" does not match "É".
// Wildcards in query match literally. Results are newest first. DMs are
// never searched.
func (s *Store) Search(ctx context.Context, room, query string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	pattern := "%" + escapeLike(query) + "%"
	rows, err := s.db.QueryContext(ctx, `
        SELECT `+messageColumns+`
        FROM messages m
        WHERE m.room = ? AND m.receiver IS NULL AND m.body LIKE ? ESCAPE '\'
        ORDER BY m.id DESC
        LIMIT ?
    `, room, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", room, err)
	}
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", room, err)
	}
	return msgs, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// DistinctRoomNames lists rooms seen in recent messages, most recently active
// first. The default room is always included.
func (s *Store) DistinctRoomNames(ctx context.Context, recentLimit int) ([]string, error) {
	if recentLimit <= 0 {
		recentLimit = DefaultRoomsLimit
	}

	rows, err := s.db.QueryContext(ctx, `
        SELECT room
        FROM messages
        WHERE room IS NOT NULL AND room != ''
        GROUP BY room
        ORDER BY MAX(id) DESC
        LIMIT ?
    `, recentLimit)
	if err != nil {
		return nil, fmt.Errorf("distinct rooms: %w", err)
	}
	defer rows.Close()

	rooms := []string{}
	seenDefault := false
	for rows.Next() {
		var room string
		if err := rows.Scan(&room); err != nil {
			return nil, fmt.Errorf("distinct rooms: %w", err)
		}
		if room == s.defaultRoom {
			seenDefault = true
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("distinct rooms: %w", err)
	}

	if !seenDefault {
		rooms = append([]string{s.defaultRoom}, rooms...)
	}
	return rooms, nil
}

// SeedWelcome posts text to the default room as the system user when the
// store holds no messages yet. It reports whether a message was written.
func (s *Store) SeedWelcome(ctx context.Context, text string) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count); err != nil {
		return false, fmt.Errorf("count messages: %w", err)
	}
	if count > 0 {
		return false, nil
	}
	if _, err := s.Append(ctx, InRoom(s.defaultRoom), SystemSender, text, "", nil); err != nil {
		return false, err
	}
	return true, nil
}
