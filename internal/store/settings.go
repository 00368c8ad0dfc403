package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/schoolmsg/internal/notify"
)

const (
	keyNotificationSettings = "notification_settings"
	keyLanguage             = "language"

	// DefaultLanguage is returned when no language has been chosen.
	DefaultLanguage = "en"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("setting not found")

// Get returns the raw value stored under key.
func (db *DB) Get(key string) (string, error) {
	var v string
	err := db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return v, err
}

// Put inserts or replaces the value under key.
func (db *DB) Put(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	return err
}

// LoadNotificationSettings returns the stored settings, or the defaults when
// none have been saved yet.
func (db *DB) LoadNotificationSettings() (notify.Settings, error) {
	raw, err := db.Get(keyNotificationSettings)
	if errors.Is(err, ErrNotFound) {
		return notify.DefaultSettings(), nil
	}
	if err != nil {
		return notify.Settings{}, fmt.Errorf("load notification settings: %w", err)
	}
	s := notify.DefaultSettings()
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return notify.Settings{}, fmt.Errorf("decode notification settings: %w", err)
	}
	return s, nil
}

// SaveNotificationSettings persists s.
func (db *DB) SaveNotificationSettings(s notify.Settings) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode notification settings: %w", err)
	}
	if err := db.Put(keyNotificationSettings, string(raw)); err != nil {
		return fmt.Errorf("save notification settings: %w", err)
	}
	return nil
}

func (db *DB) Language() (string, error) {
	v, err := db.Get(keyLanguage)
	if errors.Is(err, ErrNotFound) {
		return DefaultLanguage, nil
	}
	return v, err
}

func (db *DB) SetLanguage(lang string) error {
	if lang == "" {
		return fmt.Errorf("language must not be empty")
	}
	return db.Put(keyLanguage, lang)
}
