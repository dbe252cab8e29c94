package consumer

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Chirraaa/gymbros/internal/events"
	"github.com/Chirraaa/gymbros/internal/observability"
)

// PersistenceHandler validates consumed events and appends them to the
// gamification_event_log table.
type PersistenceHandler struct {
	pool *pgxpool.Pool
}

// NewPersistenceHandler constructs a handler backed by the provided pool.
func NewPersistenceHandler(pool *pgxpool.Pool) *PersistenceHandler {
	return &PersistenceHandler{pool: pool}
}

// Handle stores the event. Redelivered records are ignored; payloads that do
// not match their event type fail with ErrMalformedEvent.
func (h *PersistenceHandler) Handle(ctx context.Context, msg Message) error {
	event, err := events.Decode(msg.EventType, msg.Payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	tag, err := h.pool.Exec(ctx,
		`INSERT INTO gamification_event_log (event_type, schema_id, schema_subject, topic, partition, record_offset, payload, received_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
         ON CONFLICT (topic, partition, record_offset) DO NOTHING`,
		msg.EventType,
		msg.SchemaID,
		msg.SchemaSubject,
		msg.Topic,
		msg.Partition,
		msg.Offset,
		msg.Payload,
		msg.Timestamp,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		recordLogged(event)
	}
	observability.RecordEventLogged(msg.Timestamp)
	return nil
}
