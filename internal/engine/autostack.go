package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/photostack/internal/ir"
	"github.com/roach88/photostack/internal/metrics"
)

// AutoStackOutcome describes what one auto-stacking run did.
type AutoStackOutcome string

const (
	AutoStackNoop    AutoStackOutcome = metrics.OutcomeNoop
	AutoStackMerged  AutoStackOutcome = metrics.OutcomeMerged
	AutoStackCreated AutoStackOutcome = metrics.OutcomeCreated
)

// AutoStackResult is returned by AutoStack.
type AutoStackResult struct {
	Outcome AutoStackOutcome
	StackID string // Empty for AutoStackNoop
	Reason  string // Why a run was a no-op
}

// HandleAssetMetadataExtracted is the bus handler for AssetMetadataExtracted.
func (e *Engine) HandleAssetMetadataExtracted(ctx context.Context, ev ir.Event) error {
	p, ok := ev.Payload.(ir.AssetEvent)
	if !ok {
		return fmt.Errorf("%s: unexpected payload %T", ev.Name, ev.Payload)
	}
	_, err := e.AutoStack(ctx, p.AssetID, p.UserID)
	return err
}

// AutoStack groups assetID with the other assets of userID that share its
// grouping key.
//
// Idempotent: an asset that is missing, has no grouping key, or is already
// stacked is a no-op, as is a grouping key with a single candidate. If a
// candidate is already stacked the asset joins that stack (StackUpdate);
// otherwise every candidate is stacked together (StackCreate) with the
// earliest-captured candidate as primary.
//
// Runs for the same (userID, grouping key) are serialized in-process and
// retried on storage conflicts, so concurrent triggers converge on one stack.
func (e *Engine) AutoStack(ctx context.Context, assetID, userID string) (result AutoStackResult, err error) {
	defer func() {
		e.metrics.RecordOperation("auto_stack", err)
		if err != nil {
			e.metrics.RecordAutoStack(metrics.OutcomeFailed)
		} else {
			e.metrics.RecordAutoStack(string(result.Outcome))
		}
	}()

	asset, err := e.assets.GetAsset(ctx, assetID)
	if err != nil {
		return AutoStackResult{}, internalError("load asset", err)
	}
	if res, skip := skipAsset(asset, userID); skip {
		e.logger.Debug("auto-stack skipped", "asset_id", assetID, "reason", res.Reason)
		return res, nil
	}

	key := ir.NormalizeGroupingKey(asset.GroupingKey)
	unlock := e.locks.Lock(ir.GroupHash(userID, key))

	onRetry := func(attempt int, err error) {
		e.metrics.RecordConflictRetry()
		e.logger.Debug("auto-stack conflict, retrying",
			"asset_id", assetID,
			"grouping_key", key,
			"attempt", attempt,
			"error", err,
		)
	}
	err = retryOnConflict(ctx, e.retry, onRetry, func() error {
		var attemptErr error
		result, attemptErr = e.autoStackOnce(ctx, assetID, userID)
		return attemptErr
	})
	unlock()

	if errors.Is(err, errRetriesExhausted) {
		e.logger.Error("auto-stack did not converge",
			"asset_id", assetID,
			"grouping_key", key,
			"attempts", e.retry.MaxAttempts,
			"error", err,
		)
		return AutoStackResult{}, &Error{Code: ErrCodeInternal, Message: "auto-stack retries exhausted", AssetID: assetID, Err: err}
	}
	if err != nil {
		if CodeOf(err) != "" {
			return AutoStackResult{}, err
		}
		return AutoStackResult{}, &Error{Code: ErrCodeInternal, Message: "auto-stack", AssetID: assetID, Err: err}
	}

	switch result.Outcome {
	case AutoStackCreated:
		e.logger.Info("auto-stack created",
			"stack_id", result.StackID,
			"user_id", userID,
			"grouping_key", key,
		)
		return result, e.publish(ctx, "auto_stack", ir.NewStackEvent(ir.EventStackCreate, result.StackID, userID))
	case AutoStackMerged:
		e.logger.Info("auto-stack merged",
			"stack_id", result.StackID,
			"asset_id", assetID,
			"user_id", userID,
		)
		return result, e.publish(ctx, "auto_stack", ir.NewStackEvent(ir.EventStackUpdate, result.StackID, userID))
	default:
		e.logger.Debug("auto-stack skipped", "asset_id", assetID, "reason", result.Reason)
		return result, nil
	}
}

// autoStackOnce runs one read-decide-write pass. It re-reads everything, so a
// pass after a lost race sees the winner's writes.
func (e *Engine) autoStackOnce(ctx context.Context, assetID, userID string) (AutoStackResult, error) {
	asset, err := e.assets.GetAsset(ctx, assetID)
	if err != nil {
		return AutoStackResult{}, internalError("load asset", err)
	}
	if res, skip := skipAsset(asset, userID); skip {
		return res, nil
	}

	candidates, err := e.assets.AssetsByGroupingKey(ctx, userID, asset.GroupingKey)
	if err != nil {
		return AutoStackResult{}, internalError("load candidates", err)
	}
	if len(candidates) < 2 {
		return AutoStackResult{Outcome: AutoStackNoop, Reason: "single candidate"}, nil
	}

	// Candidates are ordered by capture time, so the earliest stacked
	// candidate decides the merge target.
	for _, c := range candidates {
		if !c.Stacked() {
			continue
		}
		if err := e.stacks.AddToStack(ctx, c.StackID, assetID); err != nil {
			return AutoStackResult{}, fmt.Errorf("merge into %s: %w", c.StackID, err)
		}
		return AutoStackResult{Outcome: AutoStackMerged, StackID: c.StackID}, nil
	}

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	st, err := e.stacks.CreateAutoStack(ctx, ir.AutoStackRequest{
		OwnerID:        userID,
		GroupingKey:    asset.GroupingKey,
		AssetIDs:       ids,
		PrimaryAssetID: candidates[0].ID,
	})
	if err != nil {
		return AutoStackResult{}, fmt.Errorf("create auto stack: %w", err)
	}
	return AutoStackResult{Outcome: AutoStackCreated, StackID: st.ID}, nil
}

// skipAsset reports whether asset cannot take part in auto-stacking.
func skipAsset(asset *ir.Asset, userID string) (AutoStackResult, bool) {
	noop := func(reason string) (AutoStackResult, bool) {
		return AutoStackResult{Outcome: AutoStackNoop, Reason: reason}, true
	}
	switch {
	case asset == nil:
		return noop("asset not found")
	case asset.OwnerID != userID:
		return noop("asset owned by another user")
	case asset.GroupingKey == "":
		return noop("no grouping key")
	case asset.Stacked():
		return noop("already stacked")
	}
	return AutoStackResult{}, false
}
