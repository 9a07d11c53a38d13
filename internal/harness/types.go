package harness

// TraceEvent is one journaled event, attributed to the step that caused it.
type TraceEvent struct {
	Step    int            `json:"step"`
	Event   string         `json:"event"`
	Payload map[string]any `json:"payload"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step matched its expectation and every
	// assertion held.
	Pass bool `json:"pass"`

	// Trace lists published events step by step.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expectation and assertion failures.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends an event to the trace.
func (r *Result) AddTrace(step int, event string, payload map[string]any) {
	r.Trace = append(r.Trace, TraceEvent{Step: step, Event: event, Payload: payload})
}

// Count returns how many trace events have the given name.
func (r *Result) Count(event string) int {
	n := 0
	for _, ev := range r.Trace {
		if ev.Event == event {
			n++
		}
	}
	return n
}
