package store

import (
	"context"
	"database/sql"
	"fmt"
)

// PutShared sets a scratch value visible to the other process.
func (s *Store) PutShared(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shared_defaults (key, value)
		VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("put shared %q: %w", key, err)
	}
	return nil
}

// Shared returns the scratch value for key.  ok is false if the key is unset.
func (s *Store) Shared(ctx context.Context, key string) (value string, ok bool, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT value FROM shared_defaults WHERE key = ?
	`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get shared %q: %w", key, err)
	}
	return value, true, nil
}

// DeleteShared unsets key.
func (s *Store) DeleteShared(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM shared_defaults WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("delete shared %q: %w", key, err)
	}
	return nil
}
