package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/photostack/internal/ir"
)

// AppendEvent writes a published event to the journal and returns its
// content-addressed id. Uses ON CONFLICT(id) DO NOTHING for idempotency -
// appending the same (name, payload, seq) twice is silently ignored.
//
// The payload is stored as RFC 8785 canonical JSON.
func (s *Store) AppendEvent(ctx context.Context, ev ir.Event) (string, error) {
	id, err := ir.EventID(ev)
	if err != nil {
		return "", fmt.Errorf("append event: %w", err)
	}

	payload, err := ev.PayloadObject()
	if err != nil {
		return "", fmt.Errorf("append event: %w", err)
	}
	payloadJSON, err := ir.MarshalCanonical(payload)
	if err != nil {
		return "", fmt.Errorf("append event: marshal payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (id, seq, name, payload, recorded_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, ev.Seq, string(ev.Name), string(payloadJSON), s.timestamp())
	if err != nil {
		return "", fmt.Errorf("append event %s: %w", ev.Name, err)
	}

	return id, nil
}

// ReadEvents returns journal entries with seq > afterSeq in deterministic
// order: ORDER BY seq ASC, id ASC COLLATE BINARY. A limit <= 0 means no limit.
//
// Returns an empty slice (not nil) if there are no entries.
func (s *Store) ReadEvents(ctx context.Context, afterSeq int64, limit int) ([]ir.Event, error) {
	query := `
		SELECT id, seq, name, payload FROM events
		WHERE seq > ?
		ORDER BY seq ASC, id COLLATE BINARY ASC`
	args := []any{afterSeq}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []ir.Event{}
	for rows.Next() {
		var (
			ev          ir.Event
			name        string
			payloadJSON string
		)
		if err := rows.Scan(&ev.ID, &ev.Seq, &name, &payloadJSON); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Name = ir.EventName(name)

		var obj map[string]any
		if err := json.Unmarshal([]byte(payloadJSON), &obj); err != nil {
			return nil, fmt.Errorf("decode event %s payload: %w", ev.ID, err)
		}
		if ev.Payload, err = ir.DecodePayload(ev.Name, obj); err != nil {
			return nil, fmt.Errorf("decode event %s payload: %w", ev.ID, err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return events, nil
}

// LastEventSeq returns the highest journaled seq, or 0 for an empty journal.
// Used to resume the bus clock after a restart.
func (s *Store) LastEventSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM events`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last event seq: %w", err)
	}
	return seq, nil
}
