package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/photostack/internal/ir"
)

// EventsOptions holds flags for the events command.
type EventsOptions struct {
	*RootOptions
	After int64
	Limit int
}

// EventEntry is one journal entry as shown by the events command.
type EventEntry struct {
	Seq     int64          `json:"seq"`
	ID      string         `json:"id"`
	Name    ir.EventName   `json:"name"`
	Payload map[string]any `json:"payload"`
}

// EventLog is the output of the events command.
type EventLog struct {
	Events []EventEntry `json:"events"`
}

func (l EventLog) String() string {
	if len(l.Events) == 0 {
		return "no events"
	}
	rows := make([][]string, 0, len(l.Events))
	for _, ev := range l.Events {
		payload, err := ir.MarshalCanonical(ev.Payload)
		if err != nil {
			payload = []byte(err.Error())
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", ev.Seq),
			string(ev.Name),
			string(payload),
			ev.ID,
		})
	}
	return renderTable(
		[]string{"SEQ", "EVENT", "PAYLOAD", "ID"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
	)
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the event journal",
		Long: `Show journaled events in sequence order.

Examples:
  stackctl events
  stackctl events --after 120 --limit 20 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(opts, cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.After, "after", 0, "only events with seq greater than this")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of events (0 = all)")

	return cmd
}

func runEvents(opts *EventsOptions, cmd *cobra.Command) error {
	if opts.Limit < 0 {
		return NewExitError(ExitCommandError, "--limit must not be negative")
	}

	st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	events, err := st.ReadEvents(commandContext(cmd), opts.After, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	out := EventLog{Events: make([]EventEntry, 0, len(events))}
	for _, ev := range events {
		payload, err := ev.PayloadObject()
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to decode event", err)
		}
		out.Events = append(out.Events, EventEntry{Seq: ev.Seq, ID: ev.ID, Name: ev.Name, Payload: payload})
	}
	return formatter(opts.RootOptions, cmd).Success(out)
}
