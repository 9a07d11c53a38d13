package engine

import (
	"context"
	"errors"

	"github.com/roach88/photostack/internal/ir"
	"github.com/roach88/photostack/internal/store"
)

// SearchOptions narrows Search.
type SearchOptions struct {
	PrimaryAssetID string // Optional
}

// UpdateRequest is a partial stack update. Nil fields are left untouched.
type UpdateRequest struct {
	PrimaryAssetID *string
}

// Search returns the stacks owned by ownerID. Reads are scoped by the owner
// filter itself, so no permission is checked.
func (e *Engine) Search(ctx context.Context, ownerID string, opts SearchOptions) (stacks []ir.Stack, err error) {
	defer func() { e.metrics.RecordOperation("search", err) }()

	stacks, err = e.stacks.SearchStacks(ctx, ir.StackFilter{
		OwnerID:        ownerID,
		PrimaryAssetID: opts.PrimaryAssetID,
	})
	if err != nil {
		return nil, internalError("search stacks", err)
	}
	return stacks, nil
}

// Create stacks assetIDs for the actor. The new stack has no primary.
// Assets already in another stack are moved and emptied stacks are removed.
//
// Requires asset.update on every asset id. Publishes StackCreate.
func (e *Engine) Create(ctx context.Context, actor ir.Actor, assetIDs []string) (st *ir.Stack, err error) {
	defer func() { e.metrics.RecordOperation("create", err) }()

	ids := ir.SortedIDs(assetIDs)
	if len(ids) == 0 {
		return nil, invalidRequest("at least one asset id is required", "", "")
	}
	if err := e.authorize(ctx, actor, ir.PermAssetUpdate, ids); err != nil {
		return nil, err
	}

	st, err = e.stacks.CreateStack(ctx, actor.UserID, ids)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &Error{Code: ErrCodeInvalidRequest, Message: "asset not found", Err: err}
	}
	if err != nil {
		return nil, internalError("create stack", err)
	}

	e.logger.Info("stack created",
		"stack_id", st.ID,
		"user_id", actor.UserID,
		"assets", len(st.MemberIDs),
	)
	return st, e.publish(ctx, "create", ir.NewStackEvent(ir.EventStackCreate, st.ID, actor.UserID))
}

// Get returns a stack. Requires stack.read.
func (e *Engine) Get(ctx context.Context, actor ir.Actor, id string) (st *ir.Stack, err error) {
	defer func() { e.metrics.RecordOperation("get", err) }()

	if err := e.authorize(ctx, actor, ir.PermStackRead, []string{id}); err != nil {
		return nil, err
	}
	return e.findStack(ctx, id)
}

// Update applies req to a stack. A primary that is not a member is rejected
// without mutation or event.
//
// Requires stack.update. Publishes StackUpdate.
func (e *Engine) Update(ctx context.Context, actor ir.Actor, id string, req UpdateRequest) (st *ir.Stack, err error) {
	defer func() { e.metrics.RecordOperation("update", err) }()

	if err := e.authorize(ctx, actor, ir.PermStackUpdate, []string{id}); err != nil {
		return nil, err
	}
	current, err := e.findStack(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.PrimaryAssetID != nil && *req.PrimaryAssetID != "" && !current.HasMember(*req.PrimaryAssetID) {
		return nil, invalidRequest("primary asset must be a member of the stack", id, *req.PrimaryAssetID)
	}

	st, err = e.stacks.UpdateStack(ctx, id, ir.StackPatch{PrimaryAssetID: req.PrimaryAssetID})
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, stackNotFound(id)
	case errors.Is(err, store.ErrNotMember):
		// Membership changed between the read and the write.
		return nil, invalidRequest("primary asset must be a member of the stack", id, *req.PrimaryAssetID)
	case err != nil:
		return nil, internalError("update stack", err)
	}

	e.logger.Info("stack updated",
		"stack_id", id,
		"user_id", actor.UserID,
		"primary_asset_id", st.PrimaryAssetID,
	)
	return st, e.publish(ctx, "update", ir.NewStackEvent(ir.EventStackUpdate, id, actor.UserID))
}

// Delete removes a stack; its members become unstacked.
//
// Requires stack.delete. Publishes StackDelete.
func (e *Engine) Delete(ctx context.Context, actor ir.Actor, id string) (err error) {
	defer func() { e.metrics.RecordOperation("delete", err) }()

	if err := e.authorize(ctx, actor, ir.PermStackDelete, []string{id}); err != nil {
		return err
	}

	err = e.stacks.DeleteStack(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return stackNotFound(id)
	}
	if err != nil {
		return internalError("delete stack", err)
	}

	e.logger.Info("stack deleted", "stack_id", id, "user_id", actor.UserID)
	return e.publish(ctx, "delete", ir.NewStackEvent(ir.EventStackDelete, id, actor.UserID))
}

// DeleteAll removes several stacks in one batch. Either every stack is
// removed or none is. An empty id list is a no-op and publishes nothing.
//
// Requires stack.delete on every id. Publishes one StackDeleteAll.
func (e *Engine) DeleteAll(ctx context.Context, actor ir.Actor, ids []string) (err error) {
	defer func() { e.metrics.RecordOperation("delete_all", err) }()

	ids = ir.SortedIDs(ids)
	if len(ids) == 0 {
		return nil
	}
	if err := e.authorize(ctx, actor, ir.PermStackDelete, ids); err != nil {
		return err
	}

	err = e.stacks.DeleteStacks(ctx, ids)
	if errors.Is(err, store.ErrNotFound) {
		return &Error{Code: ErrCodeNotFound, Message: "stack not found", Err: err}
	}
	if err != nil {
		return internalError("delete stacks", err)
	}

	e.logger.Info("stacks deleted", "count", len(ids), "user_id", actor.UserID)
	return e.publish(ctx, "delete_all", ir.NewStackDeleteAll(ids, actor.UserID))
}

// RemoveAsset takes assetID out of stackID. The primary asset cannot be
// removed; reassign the primary first. Removing the last member deletes the
// stack.
//
// Requires stack.update. Publishes StackUpdate, or StackDelete when the
// stack was emptied.
func (e *Engine) RemoveAsset(ctx context.Context, actor ir.Actor, stackID, assetID string) (err error) {
	defer func() { e.metrics.RecordOperation("remove_asset", err) }()

	if err := e.authorize(ctx, actor, ir.PermStackUpdate, []string{stackID}); err != nil {
		return err
	}
	if _, err := e.findStack(ctx, stackID); err != nil {
		return err
	}

	holder, err := e.stacks.GetForAssetRemoval(ctx, assetID)
	if err != nil {
		return internalError("find stack for asset", err)
	}
	if holder == nil || holder.ID != stackID {
		return invalidRequest("asset not in stack", stackID, assetID)
	}
	if holder.PrimaryAssetID == assetID {
		return &Error{Code: ErrCodeConflict, Message: "cannot remove primary asset", StackID: stackID, AssetID: assetID}
	}

	if err := e.stacks.RemoveFromStack(ctx, stackID, assetID); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return stackNotFound(stackID)
		case errors.Is(err, store.ErrNotMember):
			return invalidRequest("asset not in stack", stackID, assetID)
		case errors.Is(err, store.ErrPrimaryAsset):
			return &Error{Code: ErrCodeConflict, Message: "cannot remove primary asset", StackID: stackID, AssetID: assetID}
		}
		return internalError("remove asset from stack", err)
	}
	e.logger.Info("asset removed from stack",
		"stack_id", stackID,
		"asset_id", assetID,
		"user_id", actor.UserID,
	)

	emptied, err := e.deleteIfEmpty(ctx, stackID)
	if err != nil {
		return err
	}
	if emptied {
		return e.publish(ctx, "remove_asset", ir.NewStackEvent(ir.EventStackDelete, stackID, actor.UserID))
	}
	return e.publish(ctx, "remove_asset", ir.NewStackEvent(ir.EventStackUpdate, stackID, actor.UserID))
}

// findStack returns the stack or a NOT_FOUND error.
func (e *Engine) findStack(ctx context.Context, id string) (*ir.Stack, error) {
	st, err := e.stacks.GetStack(ctx, id)
	if err != nil {
		return nil, internalError("get stack", err)
	}
	if st == nil {
		return nil, stackNotFound(id)
	}
	return st, nil
}

// deleteIfEmpty deletes stackID when it has no members left.
func (e *Engine) deleteIfEmpty(ctx context.Context, stackID string) (bool, error) {
	st, err := e.stacks.GetStack(ctx, stackID)
	if err != nil {
		return false, internalError("get stack", err)
	}
	if st == nil || len(st.MemberIDs) > 0 {
		return false, nil
	}

	err = e.stacks.DeleteStack(ctx, stackID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return false, internalError("delete empty stack", err)
	}
	e.logger.Info("empty stack deleted", "stack_id", stackID)
	return true, nil
}
