package store

import (
	"database/sql"
	"errors"
	"time"
)

// SaveDraft stores unsent composer text for a conversation. Empty content
// deletes the draft.
func (db *DB) SaveDraft(conversationID, content string) error {
	if content == "" {
		return db.DeleteDraft(conversationID)
	}
	_, err := db.Exec(`
		INSERT INTO drafts (conversation_id, content, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			content = excluded.content,
			updated_at = excluded.updated_at`,
		conversationID, content, time.Now().UnixMilli())
	return err
}

// Draft returns the saved draft, or "" when there is none.
func (db *DB) Draft(conversationID string) (string, error) {
	var content string
	err := db.QueryRow(`SELECT content FROM drafts WHERE conversation_id = ?`, conversationID).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return content, err
}

func (db *DB) DeleteDraft(conversationID string) error {
	_, err := db.Exec(`DELETE FROM drafts WHERE conversation_id = ?`, conversationID)
	return err
}
