package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/blocksync/internal/category"
	"github.com/roach88/blocksync/internal/state"
)

// CreateConfigIfAbsent guarantees that exactly one configuration record exists.
// An existing record is left untouched.
func (s *Store) CreateConfigIfAbsent(ctx context.Context) error {
	def := state.DefaultConfiguration()
	cats, err := marshalCategories(def.EnabledCategories)
	if err != nil {
		return fmt.Errorf("create config: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO configuration (id, mode, enabled_categories, revision)
		VALUES (1, ?, ?, 0)
		ON CONFLICT(id) DO NOTHING
	`, string(def.Mode), cats)
	if err != nil {
		return fmt.Errorf("create config: %w", err)
	}
	return nil
}

// CurrentConfig returns the configuration record.
// Returns ErrNoConfiguration if CreateConfigIfAbsent has not run yet.
func (s *Store) CurrentConfig(ctx context.Context) (state.Configuration, error) {
	var (
		mode string
		cats string
		rev  int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT mode, enabled_categories, revision
		FROM configuration
		WHERE id = 1
	`).Scan(&mode, &cats, &rev)
	if err == sql.ErrNoRows {
		return state.Configuration{}, ErrNoConfiguration
	}
	if err != nil {
		return state.Configuration{}, fmt.Errorf("read config: %w", err)
	}

	m, err := state.ParseMode(mode)
	if err != nil {
		return state.Configuration{}, fmt.Errorf("read config: %w", err)
	}

	ids, err := unmarshalCategories(cats)
	if err != nil {
		return state.Configuration{}, fmt.Errorf("read config: %w", err)
	}

	return state.Configuration{
		Mode:              m,
		EnabledCategories: ids,
		Revision:          rev,
	}, nil
}

// SetMode switches the filtering mode.  The enabled categories are kept.
func (s *Store) SetMode(ctx context.Context, mode state.Mode) error {
	if _, err := state.ParseMode(string(mode)); err != nil {
		return fmt.Errorf("set mode: %w", err)
	}

	return s.updateConfig(ctx, "set mode", `
		UPDATE configuration
		SET mode = ?, revision = revision + 1
		WHERE id = 1
	`, string(mode))
}

// SetEnabledCategories replaces the custom category set.  Duplicates are
// dropped; the order of first occurrence is kept.
func (s *Store) SetEnabledCategories(ctx context.Context, ids []category.ID) error {
	cats, err := marshalCategories(category.Dedup(ids))
	if err != nil {
		return fmt.Errorf("set categories: %w", err)
	}

	return s.updateConfig(ctx, "set categories", `
		UPDATE configuration
		SET enabled_categories = ?, revision = revision + 1
		WHERE id = 1
	`, cats)
}

// updateConfig runs a single-row update in its own transaction and fails with
// ErrNoConfiguration if the record is missing.
func (s *Store) updateConfig(ctx context.Context, op, query string, args ...any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin tx: %w", op, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNoConfiguration)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

// marshalCategories stores categories by wire name so that the enum order can
// change without corrupting persisted data.
func marshalCategories(ids []category.ID) (string, error) {
	names := category.Strings(ids)
	b, err := json.Marshal(names)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// unmarshalCategories drops names that are no longer part of the enumeration.
func unmarshalCategories(s string) ([]category.ID, error) {
	var names []string
	if err := json.Unmarshal([]byte(s), &names); err != nil {
		return nil, fmt.Errorf("decode categories: %w", err)
	}

	ids := make([]category.ID, 0, len(names))
	for _, n := range names {
		id, err := category.Parse(n)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return category.Dedup(ids), nil
}
