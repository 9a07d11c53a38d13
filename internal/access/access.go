// Package access implements ownership-based authorization for stacking
// operations.
//
// An actor may act on an asset or stack only if it owns it. Ids that do not
// exist are not denied here; there is nothing to protect, and the engine
// reports them as not found.
package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/photostack/internal/ir"
)

// ErrForbidden is wrapped by every denial returned from RequireAccess.
var ErrForbidden = errors.New("forbidden")

// OwnerLookup resolves resource ids to their owners. Missing ids are absent
// from the returned map. Implemented by *store.Store.
type OwnerLookup interface {
	AssetOwners(ctx context.Context, ids []string) (map[string]string, error)
	StackOwners(ctx context.Context, ids []string) (map[string]string, error)
}

// Ownership grants a permission when the actor owns every target id.
type Ownership struct {
	owners OwnerLookup
}

// NewOwnership creates an authorizer backed by owners.
func NewOwnership(owners OwnerLookup) *Ownership {
	return &Ownership{owners: owners}
}

// RequireAccess returns nil if actor holds perm on every existing id in ids.
// An empty id list is always granted.
func (o *Ownership) RequireAccess(ctx context.Context, actor ir.Actor, perm ir.Permission, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if actor.UserID == "" {
		return fmt.Errorf("%s: anonymous actor: %w", perm, ErrForbidden)
	}

	var lookup func(context.Context, []string) (map[string]string, error)
	switch perm {
	case ir.PermAssetRead, ir.PermAssetUpdate, ir.PermAssetDelete:
		lookup = o.owners.AssetOwners
	case ir.PermStackRead, ir.PermStackUpdate, ir.PermStackDelete:
		lookup = o.owners.StackOwners
	default:
		return fmt.Errorf("unknown permission %q: %w", perm, ErrForbidden)
	}

	owned, err := lookup(ctx, ir.SortedIDs(ids))
	if err != nil {
		return fmt.Errorf("resolve owners for %s: %w", perm, err)
	}

	for _, id := range ir.SortedIDs(ids) {
		if owner, ok := owned[id]; ok && owner != actor.UserID {
			return fmt.Errorf("%s on %s denied for %s: %w", perm, id, actor.UserID, ErrForbidden)
		}
	}
	return nil
}
