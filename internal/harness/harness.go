package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/roach88/photostack/internal/access"
	"github.com/roach88/photostack/internal/engine"
	"github.com/roach88/photostack/internal/eventbus"
	"github.com/roach88/photostack/internal/ir"
	"github.com/roach88/photostack/internal/store"
	"github.com/roach88/photostack/internal/testutil"
)

// stackIDPool is how many S<n> ids each run predeclares.
const stackIDPool = 64

// drainTimeout bounds how long a step may keep the bus busy.
const drainTimeout = 30 * time.Second

// Harness is the scenario execution engine.
type Harness struct {
	store  *store.Store
	engine *engine.Engine
	bus    *eventbus.Bus
	logger *slog.Logger
}

// Option configures a scenario run.
type Option func(*runConfig)

type runConfig struct {
	logger  *slog.Logger
	workers int
}

// WithLogger routes engine and bus logs to logger. Default: discarded.
func WithLogger(logger *slog.Logger) Option {
	return func(c *runConfig) {
		c.logger = logger
	}
}

// WithWorkers sets the bus worker count. Default: eventbus.DefaultWorkers.
func WithWorkers(n int) Option {
	return func(c *runConfig) {
		c.workers = n
	}
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh temporary SQLite database with the real
// engine, authorizer and event bus. Step expectation and assertion
// failures are reported in the Result; a non-nil error means the
// scenario could not be executed at all.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		workers: eventbus.DefaultWorkers,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	dir, err := os.MkdirTemp("", "photostack-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario directory: %w", err)
	}
	defer os.RemoveAll(dir)

	clock := testutil.NewStepClock(time.Time{}, time.Second)
	st, err := store.Open(filepath.Join(dir, "scenario.db"),
		store.WithIDGenerator(testutil.NewStackIDGenerator(stackIDPool)),
		store.WithNow(clock.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	defer st.Close()

	bus := eventbus.New(
		eventbus.WithJournal(st),
		eventbus.WithLogger(cfg.logger),
		eventbus.WithWorkers(cfg.workers),
	)
	eng := engine.New(st, st, access.NewOwnership(st), bus, engine.WithLogger(cfg.logger))
	if err := eng.Register(bus); err != nil {
		return nil, fmt.Errorf("failed to register handlers: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = bus.Run(runCtx)
	}()
	defer func() {
		bus.Stop()
		cancel()
		<-stopped
	}()

	h := &Harness{store: st, engine: eng, bus: bus, logger: cfg.logger}

	if err := h.seed(ctx, scenario.Assets); err != nil {
		return nil, fmt.Errorf("failed to seed assets: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Kind(), err)
		}
	}

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

// seed writes the scenario's assets. Assets without a capture time are
// spaced one second apart from the epoch in declaration order.
func (h *Harness) seed(ctx context.Context, assets []SeedAsset) error {
	for i, a := range assets {
		captured := testutil.DefaultEpoch.Add(time.Duration(i) * time.Second)
		if a.Captured != "" {
			t, err := time.Parse(time.RFC3339, a.Captured)
			if err != nil {
				return fmt.Errorf("asset %s: %w", a.ID, err)
			}
			captured = t
		}
		if err := h.store.PutAsset(ctx, ir.Asset{
			ID:          a.ID,
			OwnerID:     a.Owner,
			GroupingKey: a.Key,
			CapturedAt:  captured,
		}); err != nil {
			return fmt.Errorf("asset %s: %w", a.ID, err)
		}
	}
	return nil
}

// executeStep applies one step, waits for every event it caused to be
// handled, checks the step's expectation and appends its events to the trace.
func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) error {
	before := h.bus.Seq()

	opErr := h.apply(ctx, step)

	drainCtx, cancel := context.WithTimeout(ctx, drainTimeout)
	defer cancel()
	if err := h.bus.Drain(drainCtx); err != nil {
		return err
	}

	checkExpectation(index, step, opErr, result)

	events, err := h.store.ReadEvents(ctx, before, 0)
	if err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}
	if err := appendStepTrace(result, index, events); err != nil {
		return err
	}

	h.logger.Info("scenario step completed",
		"step", index,
		"kind", step.Kind(),
		"events", len(events),
		"error_code", engine.CodeOf(opErr),
	)
	return nil
}

// apply runs the step's action and returns the operation error, if any.
func (h *Harness) apply(ctx context.Context, step Step) error {
	switch {
	case step.Create != nil:
		_, err := h.engine.Create(ctx, actor(step.Create.User), step.Create.Assets)
		return err
	case step.Update != nil:
		_, err := h.engine.Update(ctx, actor(step.Update.User), step.Update.Stack,
			engine.UpdateRequest{PrimaryAssetID: step.Update.Primary})
		return err
	case step.Delete != nil:
		return h.engine.Delete(ctx, actor(step.Delete.User), step.Delete.Stack)
	case step.DeleteAll != nil:
		return h.engine.DeleteAll(ctx, actor(step.DeleteAll.User), step.DeleteAll.Stacks)
	case step.RemoveAsset != nil:
		return h.engine.RemoveAsset(ctx, actor(step.RemoveAsset.User),
			step.RemoveAsset.Stack, step.RemoveAsset.Asset)
	case step.Extracted != nil:
		ids := step.Extracted.Concurrent
		if step.Extracted.Asset != "" {
			ids = append([]string{step.Extracted.Asset}, ids...)
		}
		for _, id := range ids {
			if err := h.bus.Publish(ctx, ir.NewAssetMetadataExtracted(id, step.Extracted.User)); err != nil {
				return err
			}
		}
		return nil
	case step.DeleteAsset != nil:
		return h.engine.DeleteAsset(ctx, actor(step.DeleteAsset.User), step.DeleteAsset.Asset)
	default:
		return fmt.Errorf("step has no action")
	}
}

func actor(userID string) ir.Actor {
	return ir.Actor{UserID: userID}
}

func checkExpectation(index int, step Step, opErr error, result *Result) {
	code := string(engine.CodeOf(opErr))
	kind := step.Kind()

	switch {
	case step.ExpectError == "" && opErr != nil:
		result.AddError(fmt.Sprintf("step %d (%s): unexpected error: %v", index, kind, opErr))
	case step.ExpectError != "" && opErr == nil:
		result.AddError(fmt.Sprintf("step %d (%s): expected %s, got success", index, kind, step.ExpectError))
	case step.ExpectError != "" && code != step.ExpectError:
		result.AddError(fmt.Sprintf("step %d (%s): expected %s, got %q: %v", index, kind, step.ExpectError, code, opErr))
	}
}

// appendStepTrace adds the step's events to the trace, sorted by name and
// canonical payload. Sorting hides the publish order of racing handlers.
func appendStepTrace(result *Result, index int, events []ir.Event) error {
	type entry struct {
		name    string
		key     string
		payload map[string]any
	}

	entries := make([]entry, 0, len(events))
	for _, ev := range events {
		payload, err := ev.PayloadObject()
		if err != nil {
			return err
		}
		canonical, err := ir.MarshalCanonical(payload)
		if err != nil {
			return fmt.Errorf("event %s: %w", ev.ID, err)
		}
		entries = append(entries, entry{name: string(ev.Name), key: string(canonical), payload: payload})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].name != entries[j].name {
			return entries[i].name < entries[j].name
		}
		return entries[i].key < entries[j].key
	})

	for _, e := range entries {
		result.AddTrace(index, e.name, e.payload)
	}
	return nil
}
