package store

import (
	"database/sql"
	"errors"
	"time"
)

// UI state keys persisted across restarts.
const (
	KeySelectedChatID    = "selected_chat_id"
	KeySelectedAccountID = "selected_account_id"
)

// SetUIState stores a key/value pair of UI state.
func (db *DB) SetUIState(key, value string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO ui_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now)
	return err
}

// GetUIState retrieves a UI state value. A key that was never written
// returns the empty string, not an error.
func (db *DB) GetUIState(key string) (string, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM ui_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// DeleteUIState removes a UI state key.
func (db *DB) DeleteUIState(key string) error {
	_, err := db.Exec(`DELETE FROM ui_state WHERE key = ?`, key)
	return err
}
