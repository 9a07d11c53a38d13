package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/photostack/internal/ir"
)

const stackColumns = `id, owner_id, primary_asset_id, created_at, updated_at`

// SearchStacks returns the stacks matching filter, oldest first.
// Returns an empty slice when none match.
func (s *Store) SearchStacks(ctx context.Context, filter ir.StackFilter) ([]ir.Stack, error) {
	query := `SELECT ` + stackColumns + ` FROM stacks WHERE owner_id = ?`
	args := []any{filter.OwnerID}
	if filter.PrimaryAssetID != "" {
		query += ` AND primary_asset_id = ?`
		args = append(args, filter.PrimaryAssetID)
	}
	query += ` ORDER BY created_at ASC, id COLLATE BINARY ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query stacks: %w", err)
	}

	stacks := []ir.Stack{}
	for rows.Next() {
		st, err := scanStack(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan stack: %w", err)
		}
		stacks = append(stacks, st)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate stacks: %w", err)
	}
	rows.Close()

	// Members are loaded after the cursor is closed: the pool has one connection.
	for i := range stacks {
		members, err := loadMembers(ctx, s.db, stacks[i].ID)
		if err != nil {
			return nil, err
		}
		stacks[i].MemberIDs = members
	}
	return stacks, nil
}

// GetStack retrieves a stack with its members.
// Returns (nil, nil) if the stack does not exist.
func (s *Store) GetStack(ctx context.Context, id string) (*ir.Stack, error) {
	return getStack(ctx, s.db, id)
}

func getStack(ctx context.Context, q querier, id string) (*ir.Stack, error) {
	row := q.QueryRowContext(ctx, `SELECT `+stackColumns+` FROM stacks WHERE id = ?`, id)
	st, err := scanStack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get stack %s: %w", id, err)
	}

	st.MemberIDs, err = loadMembers(ctx, q, id)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// GetForAssetRemoval returns the stack that currently claims assetID, or
// (nil, nil) if the asset is not stacked or does not exist.
func (s *Store) GetForAssetRemoval(ctx context.Context, assetID string) (*ir.Stack, error) {
	var stackID sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT stack_id FROM assets WHERE id = ?`, assetID).Scan(&stackID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !stackID.Valid) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get stack for asset %s: %w", assetID, err)
	}
	return s.GetStack(ctx, stackID.String)
}

// CreateStack creates a stack owned by ownerID containing assetIDs.
//
// Any stack already holding one of assetIDs is absorbed: its members move to
// the new stack and the old stack is deleted, so an asset never belongs to two
// stacks. The new stack has no primary.
//
// Returns ErrNotFound if any asset id does not exist.
func (s *Store) CreateStack(ctx context.Context, ownerID string, assetIDs []string) (*ir.Stack, error) {
	ids := ir.SortedIDs(assetIDs)
	if len(ids) == 0 {
		return nil, fmt.Errorf("create stack: no assets")
	}

	var created *ir.Stack
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := owners(ctx, tx, "assets", ids)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if _, ok := existing[id]; !ok {
				return fmt.Errorf("asset %s: %w", id, ErrNotFound)
			}
		}

		absorbed, err := stacksOf(ctx, tx, ids)
		if err != nil {
			return err
		}
		members := append([]string{}, ids...)
		for _, old := range absorbed {
			oldMembers, err := loadMembers(ctx, tx, old)
			if err != nil {
				return err
			}
			members = append(members, oldMembers...)
		}
		for _, old := range absorbed {
			if err := deleteStack(ctx, tx, old); err != nil {
				return err
			}
		}

		id := s.ids.Generate()
		now := s.timestamp()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO stacks (id, owner_id, primary_asset_id, created_at, updated_at) VALUES (?, ?, NULL, ?, ?)`,
			id, ownerID, now, now,
		); err != nil {
			return fmt.Errorf("insert stack: %w", err)
		}
		for _, assetID := range ir.SortedIDs(members) {
			if _, err := tx.ExecContext(ctx, `UPDATE assets SET stack_id = ? WHERE id = ?`, id, assetID); err != nil {
				return fmt.Errorf("attach asset %s: %w", assetID, err)
			}
		}

		created, err = getStack(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create stack: %w", err)
	}
	return created, nil
}

// CreateAutoStack creates the stack for an (owner, grouping key) pair.
//
// The claim row and every membership write are conditional; if another writer
// already claimed the group or stacked one of the assets, nothing is written
// and ErrConflict is returned. A claim whose stack no longer holds any asset
// of the group is stale and is replaced.
func (s *Store) CreateAutoStack(ctx context.Context, req ir.AutoStackRequest) (*ir.Stack, error) {
	if len(req.AssetIDs) < 2 {
		return nil, fmt.Errorf("create auto stack: need at least two assets, got %d", len(req.AssetIDs))
	}
	key := ir.NormalizeGroupingKey(req.GroupingKey)

	var created *ir.Stack
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		id := s.ids.Generate()
		now := s.timestamp()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO stacks (id, owner_id, primary_asset_id, created_at, updated_at) VALUES (?, ?, NULL, ?, ?)`,
			id, req.OwnerID, now, now,
		); err != nil {
			return fmt.Errorf("insert stack: %w", err)
		}

		if err := claimGroup(ctx, tx, req.OwnerID, key, id); err != nil {
			return err
		}

		for _, assetID := range req.AssetIDs {
			res, err := tx.ExecContext(ctx, `
				UPDATE assets SET stack_id = ?
				WHERE id = ? AND owner_id = ? AND stack_id IS NULL
			`, id, assetID, req.OwnerID)
			if err != nil {
				return fmt.Errorf("attach asset %s: %w", assetID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("asset %s already stacked: %w", assetID, ErrConflict)
			}
		}

		if req.PrimaryAssetID != "" {
			if _, err := tx.ExecContext(ctx,
				`UPDATE stacks SET primary_asset_id = ? WHERE id = ?`, req.PrimaryAssetID, id,
			); err != nil {
				return fmt.Errorf("set primary: %w", err)
			}
		}

		var err error
		created, err = getStack(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create auto stack: %w", err)
	}
	return created, nil
}

// claimGroup inserts the (owner, key) claim for stackID.
func claimGroup(ctx context.Context, tx *sql.Tx, ownerID, key, stackID string) error {
	insert := func() (int64, error) {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO auto_stack_groups (group_hash, owner_id, grouping_key, stack_id)
			VALUES (?, ?, ?, ?)
			ON CONFLICT DO NOTHING
		`, ir.GroupHash(ownerID, key), ownerID, key, stackID)
		if err != nil {
			return 0, fmt.Errorf("claim group: %w", err)
		}
		return res.RowsAffected()
	}

	n, err := insert()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	// Claimed already. Live if the claimed stack still holds an asset of the group.
	var live int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM auto_stack_groups g
		JOIN assets a ON a.stack_id = g.stack_id
		WHERE g.owner_id = ? AND g.grouping_key = ? AND a.grouping_key = g.grouping_key
	`, ownerID, key).Scan(&live)
	if err != nil {
		return fmt.Errorf("check claim: %w", err)
	}
	if live > 0 {
		return fmt.Errorf("group already claimed: %w", ErrConflict)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM auto_stack_groups WHERE owner_id = ? AND grouping_key = ?`, ownerID, key,
	); err != nil {
		return fmt.Errorf("drop stale claim: %w", err)
	}
	n, err = insert()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("group already claimed: %w", ErrConflict)
	}
	return nil
}

// AddToStack attaches an unstacked asset to an existing stack.
// Returns ErrConflict if the stack vanished or the asset was stacked meanwhile.
func (s *Store) AddToStack(ctx context.Context, stackID, assetID string) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE assets SET stack_id = ?
			WHERE id = ? AND stack_id IS NULL
			  AND EXISTS (SELECT 1 FROM stacks WHERE id = ?)
		`, stackID, assetID, stackID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("asset %s into stack %s: %w", assetID, stackID, ErrConflict)
		}
		return touchStack(ctx, tx, stackID, s.timestamp())
	})
	if err != nil {
		return fmt.Errorf("add to stack: %w", err)
	}
	return nil
}

// RemoveFromStack detaches assetID from stackID. Membership and the primary
// check are part of the same conditional write, so a concurrent primary
// change cannot slip between them.
//
// Returns ErrNotFound if the stack does not exist, ErrNotMember if the asset
// is not in the stack and ErrPrimaryAsset if it is the stack's primary.
func (s *Store) RemoveFromStack(ctx context.Context, stackID, assetID string) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE assets SET stack_id = NULL
			WHERE id = ? AND stack_id = ?
			  AND NOT EXISTS (
				SELECT 1 FROM stacks WHERE id = ? AND primary_asset_id = ?
			  )
		`, assetID, stackID, stackID, assetID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n > 0 {
			return touchStack(ctx, tx, stackID, s.timestamp())
		}

		st, err := getStack(ctx, tx, stackID)
		if err != nil {
			return err
		}
		switch {
		case st == nil:
			return fmt.Errorf("stack %s: %w", stackID, ErrNotFound)
		case st.HasMember(assetID) && st.PrimaryAssetID == assetID:
			return fmt.Errorf("asset %s: %w", assetID, ErrPrimaryAsset)
		default:
			return fmt.Errorf("asset %s: %w", assetID, ErrNotMember)
		}
	})
	if err != nil {
		return fmt.Errorf("remove from stack: %w", err)
	}
	return nil
}

// UpdateStack applies patch to a stack and returns the updated record.
// Returns ErrNotFound if the stack does not exist and ErrNotMember if the
// requested primary is not one of its members.
func (s *Store) UpdateStack(ctx context.Context, id string, patch ir.StackPatch) (*ir.Stack, error) {
	var updated *ir.Stack
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		st, err := getStack(ctx, tx, id)
		if err != nil {
			return err
		}
		if st == nil {
			return fmt.Errorf("stack %s: %w", id, ErrNotFound)
		}

		if patch.PrimaryAssetID != nil {
			primary := *patch.PrimaryAssetID
			if primary != "" && !st.HasMember(primary) {
				return fmt.Errorf("asset %s: %w", primary, ErrNotMember)
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE stacks SET primary_asset_id = ?, updated_at = ? WHERE id = ?`,
				nullableString(primary), s.timestamp(), id,
			); err != nil {
				return err
			}
		}

		updated, err = getStack(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("update stack: %w", err)
	}
	return updated, nil
}

// DeleteStack removes a stack and clears the stack reference of its members.
// Returns ErrNotFound if the stack does not exist.
func (s *Store) DeleteStack(ctx context.Context, id string) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return deleteStack(ctx, tx, id)
	})
	if err != nil {
		return fmt.Errorf("delete stack: %w", err)
	}
	return nil
}

// DeleteStacks removes several stacks in one transaction.
// Returns ErrNotFound, and deletes nothing, if any stack does not exist.
func (s *Store) DeleteStacks(ctx context.Context, ids []string) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, id := range ir.SortedIDs(ids) {
			if err := deleteStack(ctx, tx, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete stacks: %w", err)
	}
	return nil
}

// StackOwners returns the owner of each existing stack id. Missing ids are absent.
func (s *Store) StackOwners(ctx context.Context, ids []string) (map[string]string, error) {
	return owners(ctx, s.db, "stacks", ids)
}

func deleteStack(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, `UPDATE assets SET stack_id = NULL WHERE stack_id = ?`, id); err != nil {
		return fmt.Errorf("detach members of %s: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM stacks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("stack %s: %w", id, ErrNotFound)
	}
	return nil
}

// stacksOf returns the distinct stacks currently holding any of assetIDs.
func stacksOf(ctx context.Context, q querier, assetIDs []string) ([]string, error) {
	if len(assetIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(assetIDs)), ",")
	args := make([]any, len(assetIDs))
	for i, id := range assetIDs {
		args[i] = id
	}

	rows, err := q.QueryContext(ctx, `
		SELECT DISTINCT stack_id FROM assets
		WHERE stack_id IS NOT NULL AND id IN (`+placeholders+`)
		ORDER BY stack_id COLLATE BINARY ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query stacks of assets: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func loadMembers(ctx context.Context, q querier, stackID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id FROM assets
		WHERE stack_id = ?
		ORDER BY captured_at ASC, id COLLATE BINARY ASC
	`, stackID)
	if err != nil {
		return nil, fmt.Errorf("query members of %s: %w", stackID, err)
	}
	defer rows.Close()

	members := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return members, nil
}

func touchStack(ctx context.Context, q querier, id, now string) error {
	if _, err := q.ExecContext(ctx, `UPDATE stacks SET updated_at = ? WHERE id = ?`, now, id); err != nil {
		return fmt.Errorf("touch stack %s: %w", id, err)
	}
	return nil
}

func scanStack(row rowScanner) (ir.Stack, error) {
	var (
		st                   ir.Stack
		primary              sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&st.ID, &st.OwnerID, &primary, &createdAt, &updatedAt); err != nil {
		return ir.Stack{}, err
	}
	var err error
	if st.CreatedAt, err = parseTime(createdAt); err != nil {
		return ir.Stack{}, err
	}
	if st.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return ir.Stack{}, err
	}
	st.PrimaryAssetID = primary.String
	return st, nil
}
