package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/photostack/internal/ir"
)

const assetColumns = `id, owner_id, stack_id, grouping_key, captured_at`

// PutAsset inserts or replaces an asset record. The grouping key is NFC
// normalized. An existing stack assignment is preserved; PutAsset never
// changes membership.
func (s *Store) PutAsset(ctx context.Context, a ir.Asset) error {
	if a.ID == "" || a.OwnerID == "" {
		return fmt.Errorf("put asset: id and owner are required")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assets (id, owner_id, grouping_key, captured_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id,
			grouping_key = excluded.grouping_key,
			captured_at = excluded.captured_at
	`,
		a.ID,
		a.OwnerID,
		nullableString(ir.NormalizeGroupingKey(a.GroupingKey)),
		formatTime(a.CapturedAt),
	)
	if err != nil {
		return fmt.Errorf("put asset %s: %w", a.ID, err)
	}
	return nil
}

// GetAsset retrieves a single asset by id.
// Returns (nil, nil) if the asset does not exist.
func (s *Store) GetAsset(ctx context.Context, id string) (*ir.Asset, error) {
	return getAsset(ctx, s.db, id)
}

func getAsset(ctx context.Context, q querier, id string) (*ir.Asset, error) {
	row := q.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = ?`, id)
	a, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get asset %s: %w", id, err)
	}
	return &a, nil
}

// AssetsByGroupingKey returns every asset of ownerID carrying the grouping key,
// ordered by capture time then id. Returns an empty slice when none match.
func (s *Store) AssetsByGroupingKey(ctx context.Context, ownerID, key string) ([]ir.Asset, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+assetColumns+`
		FROM assets
		WHERE owner_id = ? AND grouping_key = ?
		ORDER BY captured_at ASC, id COLLATE BINARY ASC
	`, ownerID, ir.NormalizeGroupingKey(key))
	if err != nil {
		return nil, fmt.Errorf("query assets by grouping key: %w", err)
	}
	return collectAssets(rows)
}

// ListAssets returns the assets owned by ownerID, ordered by capture time then id.
func (s *Store) ListAssets(ctx context.Context, ownerID string) ([]ir.Asset, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+assetColumns+`
		FROM assets
		WHERE owner_id = ?
		ORDER BY captured_at ASC, id COLLATE BINARY ASC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query assets: %w", err)
	}
	return collectAssets(rows)
}

// DeleteAsset removes an asset and returns the record as it was before
// deletion, so callers can see which stack it belonged to.
// Returns (nil, nil) if the asset does not exist.
func (s *Store) DeleteAsset(ctx context.Context, id string) (*ir.Asset, error) {
	var deleted *ir.Asset
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		a, err := getAsset(ctx, tx, id)
		if err != nil || a == nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM assets WHERE id = ?`, id); err != nil {
			return err
		}
		deleted = a
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("delete asset %s: %w", id, err)
	}
	return deleted, nil
}

// AssetOwners returns the owner of each existing asset id. Missing ids are absent.
func (s *Store) AssetOwners(ctx context.Context, ids []string) (map[string]string, error) {
	return owners(ctx, s.db, "assets", ids)
}

// owners maps id -> owner_id for the rows of table that exist.
func owners(ctx context.Context, q querier, table string, ids []string) (map[string]string, error) {
	result := make(map[string]string, len(ids))
	for _, id := range ids {
		var owner string
		err := q.QueryRowContext(ctx, `SELECT owner_id FROM `+table+` WHERE id = ?`, id).Scan(&owner)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("lookup %s owner %s: %w", table, id, err)
		}
		result[id] = owner
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(row rowScanner) (ir.Asset, error) {
	var (
		a          ir.Asset
		stackID    sql.NullString
		key        sql.NullString
		capturedAt string
	)
	if err := row.Scan(&a.ID, &a.OwnerID, &stackID, &key, &capturedAt); err != nil {
		return ir.Asset{}, err
	}
	t, err := parseTime(capturedAt)
	if err != nil {
		return ir.Asset{}, err
	}
	a.StackID = stackID.String
	a.GroupingKey = key.String
	a.CapturedAt = t
	return a, nil
}

func collectAssets(rows *sql.Rows) ([]ir.Asset, error) {
	defer rows.Close()

	assets := []ir.Asset{}
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assets: %w", err)
	}
	return assets, nil
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
