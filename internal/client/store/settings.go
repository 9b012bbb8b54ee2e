package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SettingLastSync is the watermark key: the wall-clock time of the last
// fully successful download, sent back to the server as X-Last-Sync.
const SettingLastSync = "last_sync"

// GetSetting returns the stored value for key, or "" when absent.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting[%s]: %w", key, err)
	}
	return value, nil
}

// SetSetting upserts one key/value pair.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set setting[%s]: %w", key, err)
	}
	return nil
}

// LastSync returns the sync watermark, or "" before the first full download.
func (s *Store) LastSync(ctx context.Context) (string, error) {
	return s.GetSetting(ctx, SettingLastSync)
}

// SetLastSync advances the sync watermark.
func (s *Store) SetLastSync(ctx context.Context, t time.Time) error {
	return s.SetSetting(ctx, SettingLastSync, t.UTC().Format(time.RFC3339))
}
