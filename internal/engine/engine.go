package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/photostack/internal/access"
	"github.com/roach88/photostack/internal/eventbus"
	"github.com/roach88/photostack/internal/ir"
	"github.com/roach88/photostack/internal/metrics"
)

// AssetStore is the subset of asset storage the engine uses.
type AssetStore interface {
	// GetAsset returns (nil, nil) when the asset does not exist.
	GetAsset(ctx context.Context, id string) (*ir.Asset, error)
	// AssetsByGroupingKey returns the owner's assets with key, ordered by capture time then id.
	AssetsByGroupingKey(ctx context.Context, ownerID, key string) ([]ir.Asset, error)
	// DeleteAsset returns the deleted record, or (nil, nil) when it did not exist.
	DeleteAsset(ctx context.Context, id string) (*ir.Asset, error)
}

// StackStore is the stack storage the engine uses.
type StackStore interface {
	SearchStacks(ctx context.Context, filter ir.StackFilter) ([]ir.Stack, error)
	CreateStack(ctx context.Context, ownerID string, assetIDs []string) (*ir.Stack, error)
	// CreateAutoStack returns store.ErrConflict when it loses a race.
	CreateAutoStack(ctx context.Context, req ir.AutoStackRequest) (*ir.Stack, error)
	// AddToStack returns store.ErrConflict when it loses a race.
	AddToStack(ctx context.Context, stackID, assetID string) error
	// GetStack returns (nil, nil) when the stack does not exist.
	GetStack(ctx context.Context, id string) (*ir.Stack, error)
	UpdateStack(ctx context.Context, id string, patch ir.StackPatch) (*ir.Stack, error)
	DeleteStack(ctx context.Context, id string) error
	DeleteStacks(ctx context.Context, ids []string) error
	// GetForAssetRemoval returns the stack currently holding assetID, or (nil, nil).
	GetForAssetRemoval(ctx context.Context, assetID string) (*ir.Stack, error)
	// RemoveFromStack detaches a non-primary member. It fails with
	// store.ErrNotFound, store.ErrNotMember or store.ErrPrimaryAsset.
	RemoveFromStack(ctx context.Context, stackID, assetID string) error
}

// Authorizer checks an actor's permission on a set of resource ids.
// Denials wrap access.ErrForbidden; any other error is an internal failure.
type Authorizer interface {
	RequireAccess(ctx context.Context, actor ir.Actor, perm ir.Permission, ids []string) error
}

// Publisher publishes domain events.
type Publisher interface {
	Publish(ctx context.Context, ev ir.Event) error
}

// Registrar binds event handlers. Implemented by *eventbus.Bus.
type Registrar interface {
	Register(name ir.EventName, handler eventbus.Handler) error
}

// Engine orchestrates every stack mutation.
//
// Thread-safety: all methods are safe for concurrent use.
type Engine struct {
	assets  AssetStore
	stacks  StackStore
	auth    Authorizer
	bus     Publisher
	logger  *slog.Logger
	metrics *metrics.Collector
	retry   RetryConfig
	locks   *keyLock
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics sets the metrics collector. A nil collector records nothing.
func WithMetrics(m *metrics.Collector) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithRetry sets the auto-stacking retry policy.
//
// Default: DefaultRetryConfig() (5 attempts, 10ms doubling to 250ms).
func WithRetry(cfg RetryConfig) Option {
	return func(e *Engine) {
		e.retry = cfg
	}
}

// New creates an Engine from its collaborators.
func New(assets AssetStore, stacks StackStore, auth Authorizer, bus Publisher, opts ...Option) *Engine {
	e := &Engine{
		assets: assets,
		stacks: stacks,
		auth:   auth,
		bus:    bus,
		logger: slog.Default(),
		retry:  DefaultRetryConfig(),
		locks:  newKeyLock(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register binds the engine's event handlers:
//
//	AssetMetadataExtracted -> HandleAssetMetadataExtracted
//	AssetDelete            -> HandleAssetDelete
func (e *Engine) Register(r Registrar) error {
	handlers := []struct {
		name    ir.EventName
		handler eventbus.Handler
	}{
		{ir.EventAssetMetadataExtracted, e.HandleAssetMetadataExtracted},
		{ir.EventAssetDelete, e.HandleAssetDelete},
	}
	for _, h := range handlers {
		if err := r.Register(h.name, h.handler); err != nil {
			return fmt.Errorf("register engine handlers: %w", err)
		}
	}
	return nil
}

// authorize maps authorizer failures onto engine errors.
func (e *Engine) authorize(ctx context.Context, actor ir.Actor, perm ir.Permission, ids []string) error {
	err := e.auth.RequireAccess(ctx, actor, perm, ids)
	if err == nil {
		return nil
	}
	if errors.Is(err, access.ErrForbidden) {
		return forbiddenError(err)
	}
	return internalError("authorize", err)
}

// publish sends ev after a committed mutation. A failure is logged, counted
// and returned as INTERNAL; the mutation stays committed.
func (e *Engine) publish(ctx context.Context, op string, ev ir.Event) error {
	if err := e.bus.Publish(ctx, ev); err != nil {
		e.metrics.RecordPublishFailure(string(ev.Name))
		e.logger.Error("publish failed after commit",
			"op", op,
			"event", ev.Name,
			"error", err,
		)
		return internalError(fmt.Sprintf("publish %s", ev.Name), err)
	}
	return nil
}
