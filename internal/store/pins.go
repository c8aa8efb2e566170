package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Pin records a pin of messageID in room and returns the message as it is
// now. ok is false, and nothing is recorded, when the message does not exist.
func (s *Store) Pin(ctx context.Context, messageID int64, room string) (Message, bool, error) {
	var (
		msg Message
		ok  bool
	)
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		msg, ok, err = getMessage(ctx, tx, messageID)
		if err != nil || !ok {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO pins (message_id, room) VALUES (?, ?)`, messageID, room)
		return err
	})
	if err != nil {
		return Message{}, false, fmt.Errorf("pin %d in %s: %w", messageID, room, err)
	}
	return msg, ok, nil
}

// Pinned returns the room's pinned messages, most recently pinned first.
// A message pinned more than once is listed at its latest pin. Pins whose
// message was deleted are skipped.
func (s *Store) Pinned(ctx context.Context, room string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = DefaultPinnedLimit
	}

	rows, err := s.db.QueryContext(ctx, `
        SELECT `+messageColumns+`
        FROM (
            SELECT message_id, MAX(id) AS pin_id
            FROM pins
            WHERE room = ?
            GROUP BY message_id
        ) p
        JOIN messages m ON m.id = p.message_id
        ORDER BY p.pin_id DESC
        LIMIT ?
    `, room, limit)
	if err != nil {
		return nil, fmt.Errorf("pinned %s: %w", room, err)
	}
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, fmt.Errorf("pinned %s: %w", room, err)
	}
	return msgs, nil
}
