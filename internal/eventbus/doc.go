// Package eventbus delivers named stacking events to registered handlers.
//
// Handlers are bound through an explicit registration table built at start-up
// (Register), one table entry per event name. Publish stamps each event with
// the next value of a bus-wide counter, appends it to the journal when one
// is configured, and queues one delivery per registered handler.
//
// Run dispatches deliveries on a pool of worker goroutines. Deliveries for
// the same event name run concurrently and in no particular order; a handler
// error causes a bounded number of redeliveries (at-least-once). Handlers must
// therefore be idempotent.
//
// Drain blocks until every queued delivery, including deliveries caused by
// events published from inside handlers, has finished.
package eventbus
