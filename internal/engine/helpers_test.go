package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/photostack/internal/access"
	"github.com/roach88/photostack/internal/ir"
	"github.com/roach88/photostack/internal/store"
)

var baseTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

var (
	u1 = ir.Actor{UserID: "U1"}
	u2 = ir.Actor{UserID: "U2"}
)

// recorder is a Publisher that keeps every event in memory.
type recorder struct {
	mu     sync.Mutex
	events []ir.Event
	err    error
}

func (r *recorder) Publish(_ context.Context, ev ir.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) all() []ir.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ir.Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) count(name ir.EventName) int {
	n := 0
	for _, ev := range r.all() {
		if ev.Name == name {
			n++
		}
	}
	return n
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

type fixture struct {
	engine *Engine
	store  *store.Store
	events *recorder
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newFixture builds an engine over a temp-dir SQLite store with stack ids
// S1, S2, ... and the ownership authorizer.
func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	gen := ir.NewFixedGenerator("S", "S1", "S2", "S3", "S4", "S5")
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"), store.WithIDGenerator(gen))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	rec := &recorder{}
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	e := New(s, s, access.NewOwnership(s), rec, opts...)
	return &fixture{engine: e, store: s, events: rec}
}

// seed inserts assets for owner with key; the i-th asset is captured i
// seconds after baseTime.
func (f *fixture) seed(t *testing.T, owner, key string, ids ...string) {
	t.Helper()
	for i, id := range ids {
		require.NoError(t, f.store.PutAsset(context.Background(), ir.Asset{
			ID:          id,
			OwnerID:     owner,
			GroupingKey: key,
			CapturedAt:  baseTime.Add(time.Duration(i) * time.Second),
		}))
	}
}

func (f *fixture) asset(t *testing.T, id string) *ir.Asset {
	t.Helper()
	a, err := f.store.GetAsset(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, a, "asset %s", id)
	return a
}

func (f *fixture) stacks(t *testing.T, owner string) []ir.Stack {
	t.Helper()
	stacks, err := f.store.SearchStacks(context.Background(), ir.StackFilter{OwnerID: owner})
	require.NoError(t, err)
	return stacks
}

func (f *fixture) requireInvariants(t *testing.T) {
	t.Helper()
	violations, err := f.store.CheckInvariants(context.Background())
	require.NoError(t, err)
	require.Empty(t, violations)
}

// conflictStacks is a StackStore whose auto-stack writes always lose.
type conflictStacks struct {
	StackStore
	attempts int
	mu       sync.Mutex
}

func (c *conflictStacks) CreateAutoStack(context.Context, ir.AutoStackRequest) (*ir.Stack, error) {
	c.mu.Lock()
	c.attempts++
	c.mu.Unlock()
	return nil, store.ErrConflict
}

// interleavedStacks runs hooks between the engine's reads and writes so a
// concurrent writer can be slotted in at a fixed point.
type interleavedStacks struct {
	StackStore

	mu   sync.Mutex
	gets int

	// afterLookup runs once, after the first GetForAssetRemoval returns.
	afterLookup func()
	// afterGet runs once, after the n-th GetStack call returns.
	afterGet   func()
	afterGetAt int
}

func (s *interleavedStacks) GetForAssetRemoval(ctx context.Context, assetID string) (*ir.Stack, error) {
	st, err := s.StackStore.GetForAssetRemoval(ctx, assetID)
	s.mu.Lock()
	hook := s.afterLookup
	s.afterLookup = nil
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return st, err
}

func (s *interleavedStacks) GetStack(ctx context.Context, id string) (*ir.Stack, error) {
	st, err := s.StackStore.GetStack(ctx, id)
	s.mu.Lock()
	s.gets++
	var hook func()
	if s.afterGet != nil && s.gets == s.afterGetAt {
		hook = s.afterGet
		s.afterGet = nil
	}
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return st, err
}

// interleaved builds a second engine over the fixture's store whose stack
// reads go through wrapper. Events land in the fixture's recorder.
func (f *fixture) interleaved(wrapper *interleavedStacks) *Engine {
	wrapper.StackStore = f.store
	return New(f.store, wrapper, access.NewOwnership(f.store), f.events, WithLogger(quietLogger()))
}

// denyAll rejects every non-empty request.
type denyAll struct{}

func (denyAll) RequireAccess(_ context.Context, _ ir.Actor, perm ir.Permission, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return errors.Join(access.ErrForbidden, errors.New(string(perm)))
}

func ptr(s string) *string { return &s }
