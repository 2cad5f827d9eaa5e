package store

import (
	"fmt"
	"time"
)

// ReplaceChats swaps the cached chat list for the given one, preserving the
// order the backend returned. The cache exists so a restarted client shows
// the last-known list before the first refresh completes.
func (db *DB) ReplaceChats(chats []Chat) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM chats`); err != nil {
		return fmt.Errorf("clear chats: %w", err)
	}

	now := time.Now().UnixMilli()
	for i, c := range chats {
		if _, err := tx.Exec(`
			INSERT INTO chats (room_id, counterpart_id, name, is_group, unread_count, last_message, last_message_at, avatar, position, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.RoomID, c.CounterpartID, c.Name, c.IsGroup, c.UnreadCount, c.LastMessage, c.LastMessageAt, c.AvatarRef, i, now); err != nil {
			return fmt.Errorf("insert chat %s: %w", c.RoomID, err)
		}
	}

	return tx.Commit()
}

// UpsertChat updates a single cached summary in place, keeping its position.
func (db *DB) UpsertChat(c *Chat) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO chats (room_id, counterpart_id, name, is_group, unread_count, last_message, last_message_at, avatar, position, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?,
			COALESCE((SELECT position FROM chats WHERE room_id = ?), (SELECT COALESCE(MAX(position), -1) + 1 FROM chats)),
			?)
		ON CONFLICT(room_id) DO UPDATE SET
			counterpart_id = excluded.counterpart_id,
			name = excluded.name,
			is_group = excluded.is_group,
			unread_count = excluded.unread_count,
			last_message = excluded.last_message,
			last_message_at = excluded.last_message_at,
			avatar = excluded.avatar,
			updated_at = excluded.updated_at`,
		c.RoomID, c.CounterpartID, c.Name, c.IsGroup, c.UnreadCount, c.LastMessage, c.LastMessageAt, c.AvatarRef, c.RoomID, now)
	return err
}

// ListChats returns the cached chat list in stored order.
func (db *DB) ListChats() ([]Chat, error) {
	rows, err := db.Query(`
		SELECT room_id, counterpart_id, name, is_group, unread_count, last_message, last_message_at, avatar
		FROM chats
		ORDER BY position ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.RoomID, &c.CounterpartID, &c.Name, &c.IsGroup, &c.UnreadCount, &c.LastMessage, &c.LastMessageAt, &c.AvatarRef); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}
