// Package metrics exposes Prometheus counters for the stacking engine and
// the event bus.
//
// A nil *Collector is valid and records nothing, so components can take an
// optional collector without nil checks at every call site.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "photostack"

// Operation results recorded by RecordOperation.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Auto-stack outcomes recorded by RecordAutoStack.
const (
	OutcomeNoop    = "noop"
	OutcomeMerged  = "merged"
	OutcomeCreated = "created"
	OutcomeFailed  = "failed"
)

// Collector holds the registered Prometheus collectors.
type Collector struct {
	operations      *prometheus.CounterVec
	publishFailures *prometheus.CounterVec
	autoStack       *prometheus.CounterVec
	conflictRetries prometheus.Counter
	busEvents       *prometheus.CounterVec
	handlerErrors   *prometheus.CounterVec
}

// New creates a Collector and registers it on reg.
// Uses prometheus.DefaultRegisterer if reg is nil.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "operations_total",
			Help:      "Engine operations by operation name and result (ok,error).",
		}, []string{"op", "result"}),
		publishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "publish_failures_total",
			Help:      "Events that could not be published after a committed mutation.",
		}, []string{"event"}),
		autoStack: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "autostack",
			Name:      "outcomes_total",
			Help:      "Auto-stacking outcomes (noop,merged,created,failed).",
		}, []string{"outcome"}),
		conflictRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "autostack",
			Name:      "conflict_retries_total",
			Help:      "Auto-stacking attempts retried after a storage conflict.",
		}),
		busEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "events_total",
			Help:      "Events published on the bus by name.",
		}, []string{"event"}),
		handlerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "handler_errors_total",
			Help:      "Handler invocations that returned an error, by event name.",
		}, []string{"event"}),
	}

	for _, col := range []prometheus.Collector{
		c.operations,
		c.publishFailures,
		c.autoStack,
		c.conflictRetries,
		c.busEvents,
		c.handlerErrors,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// RecordOperation counts one engine operation.
func (c *Collector) RecordOperation(op string, err error) {
	if c == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	c.operations.WithLabelValues(op, result).Inc()
}

// RecordPublishFailure counts an event lost after its mutation committed.
func (c *Collector) RecordPublishFailure(event string) {
	if c == nil {
		return
	}
	c.publishFailures.WithLabelValues(event).Inc()
}

// RecordAutoStack counts one auto-stacking outcome.
func (c *Collector) RecordAutoStack(outcome string) {
	if c == nil {
		return
	}
	c.autoStack.WithLabelValues(outcome).Inc()
}

// RecordConflictRetry counts one retried auto-stacking attempt.
func (c *Collector) RecordConflictRetry() {
	if c == nil {
		return
	}
	c.conflictRetries.Inc()
}

// RecordBusEvent counts one published event.
func (c *Collector) RecordBusEvent(event string) {
	if c == nil {
		return
	}
	c.busEvents.WithLabelValues(event).Inc()
}

// RecordHandlerError counts one failed handler invocation.
func (c *Collector) RecordHandlerError(event string) {
	if c == nil {
		return
	}
	c.handlerErrors.WithLabelValues(event).Inc()
}
