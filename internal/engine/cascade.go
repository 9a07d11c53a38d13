package engine

import (
	"context"
	"fmt"

	"github.com/roach88/photostack/internal/ir"
)

// HandleAssetDelete is the bus handler for AssetDelete. Re-delivery of an
// already deleted asset is a no-op.
func (e *Engine) HandleAssetDelete(ctx context.Context, ev ir.Event) error {
	p, ok := ev.Payload.(ir.AssetEvent)
	if !ok {
		return fmt.Errorf("%s: unexpected payload %T", ev.Name, ev.Payload)
	}
	_, err := e.removeAsset(ctx, p.AssetID, p.UserID)
	return err
}

// DeleteAsset deletes an asset on behalf of actor and repairs its stack.
//
// Requires asset.delete. Publishes StackUpdate for the affected stack, or
// StackDelete when the asset was its last member.
func (e *Engine) DeleteAsset(ctx context.Context, actor ir.Actor, assetID string) (err error) {
	defer func() { e.metrics.RecordOperation("delete_asset", err) }()

	if err := e.authorize(ctx, actor, ir.PermAssetDelete, []string{assetID}); err != nil {
		return err
	}
	found, err := e.removeAsset(ctx, assetID, actor.UserID)
	if err != nil {
		return err
	}
	if !found {
		return assetNotFound(assetID)
	}
	return nil
}

// removeAsset deletes the asset row and fixes up the stack it belonged to:
// an emptied stack is deleted, and a deleted primary is replaced by the
// earliest-captured remaining member. Reports whether the asset existed.
func (e *Engine) removeAsset(ctx context.Context, assetID, userID string) (bool, error) {
	asset, err := e.assets.GetAsset(ctx, assetID)
	if err != nil {
		return false, internalError("load asset", err)
	}
	if asset == nil {
		return false, nil
	}

	var before *ir.Stack
	if asset.Stacked() {
		if before, err = e.stacks.GetStack(ctx, asset.StackID); err != nil {
			return false, internalError("get stack", err)
		}
	}

	deleted, err := e.assets.DeleteAsset(ctx, assetID)
	if err != nil {
		return false, internalError("delete asset", err)
	}
	if deleted == nil {
		// Deleted concurrently by someone else.
		return false, nil
	}
	e.logger.Info("asset deleted", "asset_id", assetID, "user_id", userID)

	if before == nil {
		return true, nil
	}
	stackID := before.ID

	emptied, err := e.deleteIfEmpty(ctx, stackID)
	if err != nil {
		return true, err
	}
	if emptied {
		return true, e.publish(ctx, "delete_asset", ir.NewStackEvent(ir.EventStackDelete, stackID, userID))
	}

	if before.PrimaryAssetID == assetID {
		after, err := e.stacks.GetStack(ctx, stackID)
		if err != nil {
			return true, internalError("get stack", err)
		}
		if after == nil {
			// Removed concurrently; whoever deleted it published the event.
			return true, nil
		}
		if len(after.MemberIDs) == 0 {
			emptied, err := e.deleteIfEmpty(ctx, stackID)
			if err != nil || !emptied {
				return true, err
			}
			return true, e.publish(ctx, "delete_asset", ir.NewStackEvent(ir.EventStackDelete, stackID, userID))
		}
		primary := after.MemberIDs[0]
		if _, err := e.stacks.UpdateStack(ctx, stackID, ir.StackPatch{PrimaryAssetID: &primary}); err != nil {
			return true, internalError("reassign primary", err)
		}
		e.logger.Info("primary reassigned",
			"stack_id", stackID,
			"primary_asset_id", primary,
		)
	}
	return true, e.publish(ctx, "delete_asset", ir.NewStackEvent(ir.EventStackUpdate, stackID, userID))
}
