package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/adawatch/adasync/internal/chain"
)

// GetToken returns the stored metadata record for a unit.
func (s *Storage) GetToken(ctx context.Context, unit string) (*chain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT unit, policy_id, asset_name, name, ticker, decimals, category, logo, metadata
		FROM tokens WHERE unit = ?`, unit)

	return scanToken(row.Scan)
}

// GetTokens returns the stored records for the given units, keyed by unit.
// Units with no record are simply absent from the result.
func (s *Storage) GetTokens(ctx context.Context, units []string) (map[string]*chain.Token, error) {
	if len(units) == 0 {
		return map[string]*chain.Token{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(units)), ",")
	args := make([]any, len(units))
	for i, u := range units {
		args[i] = u
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT unit, policy_id, asset_name, name, ticker, decimals, category, logo, metadata
		FROM tokens WHERE unit IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tokens: %w", err)
	}
	defer rows.Close()

	result := make(map[string]*chain.Token, len(units))
	for rows.Next() {
		t, err := scanToken(rows.Scan)
		if err != nil {
			return nil, err
		}
		result[t.Unit] = t
	}
	return result, rows.Err()
}

// UpsertToken inserts or replaces a token metadata record.
func (s *Storage) UpsertToken(ctx context.Context, t *chain.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tokens (unit, policy_id, asset_name, name, ticker, decimals, category, logo, metadata, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(unit) DO UPDATE SET
			name = excluded.name,
			ticker = excluded.ticker,
			decimals = excluded.decimals,
			category = excluded.category,
			logo = excluded.logo,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at`,
		t.Unit, t.PolicyID, t.AssetName,
		nullIfEmpty(t.Name), nullIfEmpty(t.Ticker), t.Decimals,
		string(t.Category), nullIfEmpty(t.Logo), nullIfEmpty(t.Metadata),
		s.now().Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert token %s: %w", t.Unit, err)
	}
	return nil
}

func scanToken(scan func(dest ...any) error) (*chain.Token, error) {
	var t chain.Token
	var name, ticker, logo, metadata sql.NullString
	var category string

	err := scan(&t.Unit, &t.PolicyID, &t.AssetName, &name, &ticker, &t.Decimals, &category, &logo, &metadata)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan token: %w", err)
	}

	t.Name = name.String
	t.Ticker = ticker.String
	t.Logo = logo.String
	t.Metadata = metadata.String
	if t.Category, err = chain.ParseTokenCategory(category); err != nil {
		return nil, err
	}
	return &t, nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
