package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ToggleReaction adds the (message, user, emoji) reaction if absent and
// removes it if present. It returns true when the reaction now exists.
// Reacting to a missing message is a no-op that returns false.
func (s *Store) ToggleReaction(ctx context.Context, messageID int64, username, emoji string) (bool, error) {
	var present bool
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, ok, err := getMessage(ctx, tx, messageID); err != nil || !ok {
			return err
		}

		var id int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM reactions WHERE message_id = ? AND username = ? AND emoji = ?`,
			messageID, username, emoji).Scan(&id)
		switch {
		case err == nil:
			_, err = tx.ExecContext(ctx, `DELETE FROM reactions WHERE id = ?`, id)
			return err
		case errors.Is(err, sql.ErrNoRows):
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO reactions (message_id, username, emoji) VALUES (?, ?, ?)`,
				messageID, username, emoji); err != nil {
				return err
			}
			present = true
			return nil
		default:
			return err
		}
	})
	if err != nil {
		return false, fmt.Errorf("toggle reaction on %d: %w", messageID, err)
	}
	return present, nil
}

// ReactionCounts returns the number of reactions per emoji for a message.
func (s *Store) ReactionCounts(ctx context.Context, messageID int64) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT emoji, COUNT(*) FROM reactions WHERE message_id = ? GROUP BY emoji`, messageID)
	if err != nil {
		return nil, fmt.Errorf("reaction counts for %d: %w", messageID, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			emoji string
			n     int
		)
		if err := rows.Scan(&emoji, &n); err != nil {
			return nil, fmt.Errorf("reaction counts for %d: %w", messageID, err)
		}
		counts[emoji] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reaction counts for %d: %w", messageID, err)
	}
	return counts, nil
}
