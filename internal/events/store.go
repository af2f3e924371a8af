package events

import (
	"context"
	"fmt"

	"github.com/PILOTO-ORG/cunha-sub000/internal/db"
)

// PGStore persists domain events in the domain_events table.
type PGStore struct {
	DB db.DBTX
}

// Insert stores the event and returns the persisted row.
func (s *PGStore) Insert(ctx context.Context, event Event) (Event, error) {
	row := s.DB.QueryRow(ctx, `
		INSERT INTO domain_events (id, topic, aggregate_id, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, topic, aggregate_id, payload, occurred_at`,
		event.ID, event.Topic, event.AggregateID, event.Payload, event.OccurredAt)
	var out Event
	if err := row.Scan(&out.ID, &out.Topic, &out.AggregateID, &out.Payload, &out.OccurredAt); err != nil {
		return Event{}, fmt.Errorf("insert domain event: %w", err)
	}
	return out, nil
}
