package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/photostack/internal/ir"
	"github.com/roach88/photostack/internal/metrics"
)

var (
	// ErrClosed is returned by Publish after Stop.
	ErrClosed = errors.New("event bus closed")

	// ErrRunning is returned by Register once Run has started.
	ErrRunning = errors.New("event bus already running")
)

// Default worker pool and redelivery settings.
const (
	DefaultWorkers      = 4
	DefaultRedeliveries = 3
)

// Handler processes one event. A returned error triggers redelivery.
type Handler func(ctx context.Context, ev ir.Event) error

// Journal durably records published events and returns the event id.
// Implemented by *store.Store.
type Journal interface {
	AppendEvent(ctx context.Context, ev ir.Event) (string, error)
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		b.logger = logger
	}
}

// WithJournal records every published event before it is queued.
func WithJournal(j Journal) Option {
	return func(b *Bus) {
		b.journal = j
	}
}

// WithMetrics sets the metrics collector. A nil collector records nothing.
func WithMetrics(m *metrics.Collector) Option {
	return func(b *Bus) {
		b.metrics = m
	}
}

// WithWorkers sets the number of dispatch goroutines. Values < 1 are ignored.
func WithWorkers(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.workers = n
		}
	}
}

// WithRedeliveries sets how many times a failed delivery is retried.
// Values < 0 are ignored.
func WithRedeliveries(n int) Option {
	return func(b *Bus) {
		if n >= 0 {
			b.redeliveries = n
		}
	}
}

// WithStartSeq makes the first published event seq+1, typically resuming
// after the last journaled event.
func WithStartSeq(seq int64) Option {
	return func(b *Bus) {
		b.seq.Store(seq)
	}
}

// Bus is an in-process event bus with an explicit handler table.
type Bus struct {
	mu       sync.RWMutex
	handlers map[ir.EventName][]Handler
	running  bool

	queue        *deliveryQueue
	seq          atomic.Int64 // last stamped event seq
	journal      Journal
	workers      int
	redeliveries int
	logger       *slog.Logger
	metrics      *metrics.Collector

	// pending counts deliveries that are queued or being handled.
	// idle is closed whenever pending is zero.
	pendingMu sync.Mutex
	pending   int
	idle      chan struct{}
}

// New creates a Bus. Register handlers, then call Run.
func New(opts ...Option) *Bus {
	idle := make(chan struct{})
	close(idle)

	b := &Bus{
		handlers:     make(map[ir.EventName][]Handler),
		queue:        newDeliveryQueue(),
		workers:      DefaultWorkers,
		redeliveries: DefaultRedeliveries,
		logger:       slog.Default(),
		idle:         idle,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register binds handler to events named name.
// Must be called before Run; returns ErrRunning afterwards.
func (b *Bus) Register(name ir.EventName, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return fmt.Errorf("register %s: %w", name, ErrRunning)
	}
	b.handlers[name] = append(b.handlers[name], handler)
	return nil
}

// Publish stamps ev with the next seq, journals it and queues one delivery
// per registered handler. Events with no handler are journaled only.
func (b *Bus) Publish(ctx context.Context, ev ir.Event) error {
	if b.queue.Closed() {
		return fmt.Errorf("publish %s: %w", ev.Name, ErrClosed)
	}

	ev.Seq = b.seq.Add(1)

	if b.journal != nil {
		id, err := b.journal.AppendEvent(ctx, ev)
		if err != nil {
			return fmt.Errorf("journal %s: %w", ev.Name, err)
		}
		ev.ID = id
	}
	b.metrics.RecordBusEvent(string(ev.Name))

	b.mu.RLock()
	n := len(b.handlers[ev.Name])
	b.mu.RUnlock()

	b.logger.Debug("event published",
		"event", ev.Name,
		"seq", ev.Seq,
		"handlers", n,
	)

	for i := 0; i < n; i++ {
		if err := b.enqueue(delivery{event: ev, handler: i}); err != nil {
			return fmt.Errorf("publish %s: %w", ev.Name, err)
		}
	}
	return nil
}

// Run dispatches deliveries until ctx is cancelled or Stop is called and the
// queue is empty. It blocks until every worker has exited.
func (b *Bus) Run(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return ErrRunning
	}
	b.running = true
	b.mu.Unlock()

	b.logger.Info("event bus started", "workers", b.workers, "redeliveries", b.redeliveries)

	var wg sync.WaitGroup
	for i := 0; i < b.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.work(ctx)
		}()
	}
	wg.Wait()

	b.logger.Info("event bus stopped", "pending", b.Pending())

	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

// Drain waits until no delivery is queued or in flight.
func (b *Bus) Drain(ctx context.Context) error {
	for {
		b.pendingMu.Lock()
		idle := b.idle
		b.pendingMu.Unlock()

		select {
		case <-ctx.Done():
			return fmt.Errorf("drain: %w", ctx.Err())
		case <-idle:
		}

		// A handler may have published between the close and our wake-up.
		if b.Pending() == 0 {
			return nil
		}
	}
}

// Stop closes the bus to new events. Queued deliveries are still handled
// by a running Run loop.
func (b *Bus) Stop() {
	b.queue.Close()
}

// Pending returns the number of queued or in-flight deliveries.
func (b *Bus) Pending() int {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	return b.pending
}

// Seq returns the last stamped sequence number.
func (b *Bus) Seq() int64 {
	return b.seq.Load()
}

func (b *Bus) work(ctx context.Context) {
	for {
		if d, ok := b.queue.TryDequeue(); ok {
			b.dispatch(ctx, d)
			continue
		}
		if b.queue.Done() {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-b.queue.Wait():
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, d delivery) {
	defer b.done()

	b.mu.RLock()
	handler := b.handlers[d.event.Name][d.handler]
	b.mu.RUnlock()

	err := handler(ctx, d.event)
	if err == nil {
		return
	}

	b.metrics.RecordHandlerError(string(d.event.Name))

	if d.attempt < b.redeliveries && ctx.Err() == nil {
		next := d
		next.attempt++
		if qerr := b.enqueue(next); qerr == nil {
			b.logger.Warn("handler failed, redelivering",
				"event", d.event.Name,
				"seq", d.event.Seq,
				"attempt", next.attempt,
				"error", err,
			)
			return
		}
	}

	b.logger.Error("handler failed, giving up",
		"event", d.event.Name,
		"seq", d.event.Seq,
		"attempts", d.attempt+1,
		"error", err,
	)
}

func (b *Bus) enqueue(d delivery) error {
	b.pendingMu.Lock()
	if b.pending == 0 {
		b.idle = make(chan struct{})
	}
	b.pending++
	b.pendingMu.Unlock()

	if !b.queue.Enqueue(d) {
		b.done()
		return ErrClosed
	}
	return nil
}

func (b *Bus) done() {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()

	b.pending--
	if b.pending == 0 {
		close(b.idle)
	}
}
