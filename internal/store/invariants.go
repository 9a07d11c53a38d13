package store

import (
	"context"
	"fmt"
)

// ViolationKind categorizes an invariant violation.
type ViolationKind string

const (
	// ViolationPrimaryNotMember: the stack's primary asset is not one of its members.
	ViolationPrimaryNotMember ViolationKind = "primary_not_member"

	// ViolationEmptyStack: the stack exists but has no members.
	ViolationEmptyStack ViolationKind = "empty_stack"

	// ViolationDanglingStack: an asset references a stack that does not exist.
	ViolationDanglingStack ViolationKind = "dangling_stack"
)

// Violation describes one broken invariant.
type Violation struct {
	Kind    ViolationKind `json:"kind"`
	StackID string        `json:"stackId"`
	AssetID string        `json:"assetId,omitempty"`
}

func (v Violation) String() string {
	if v.AssetID != "" {
		return fmt.Sprintf("%s: stack=%s asset=%s", v.Kind, v.StackID, v.AssetID)
	}
	return fmt.Sprintf("%s: stack=%s", v.Kind, v.StackID)
}

// CheckInvariants scans the whole database for stacking invariant
// violations. Returns an empty slice when the data is consistent.
func (s *Store) CheckInvariants(ctx context.Context) ([]Violation, error) {
	checks := []struct {
		kind  ViolationKind
		query string
	}{
		{ViolationPrimaryNotMember, `
			SELECT s.id, s.primary_asset_id FROM stacks s
			WHERE s.primary_asset_id IS NOT NULL
			  AND NOT EXISTS (
				SELECT 1 FROM assets a WHERE a.id = s.primary_asset_id AND a.stack_id = s.id
			  )
			ORDER BY s.id COLLATE BINARY`},
		{ViolationEmptyStack, `
			SELECT s.id, '' FROM stacks s
			WHERE NOT EXISTS (SELECT 1 FROM assets a WHERE a.stack_id = s.id)
			ORDER BY s.id COLLATE BINARY`},
		{ViolationDanglingStack, `
			SELECT a.stack_id, a.id FROM assets a
			WHERE a.stack_id IS NOT NULL
			  AND NOT EXISTS (SELECT 1 FROM stacks s WHERE s.id = a.stack_id)
			ORDER BY a.id COLLATE BINARY`},
	}

	violations := []Violation{}
	for _, check := range checks {
		rows, err := s.db.QueryContext(ctx, check.query)
		if err != nil {
			return nil, fmt.Errorf("check %s: %w", check.kind, err)
		}
		for rows.Next() {
			v := Violation{Kind: check.kind}
			if err := rows.Scan(&v.StackID, &v.AssetID); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan %s: %w", check.kind, err)
			}
			violations = append(violations, v)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("iterate %s: %w", check.kind, err)
		}
	}

	return violations, nil
}
