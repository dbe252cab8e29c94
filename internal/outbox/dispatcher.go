// Package outbox relays engine events from the outbox table to Kafka.
package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Chirraaa/gymbros/internal/events"
)

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

type schemaRegistrar interface {
	EnsureSchema(context.Context, string, string) (int, error)
}

// Store claims pending outbox rows and records their fate.
type Store interface {
	Claim(ctx context.Context, limit int) ([]Message, error)
	MarkPublished(ctx context.Context, ids []int64) error
	MoveToDLQ(ctx context.Context, msg Message, reason string) error
}

// Dispatcher drains the outbox and delivers events to Kafka using Schema Registry metadata.
type Dispatcher struct {
	store            Store
	producer         messageWriter
	registry         schemaRegistrar
	pollInterval     time.Duration
	batchSize        int
	schemaIDCache    sync.Map
	logger           *log.Logger
	shutdownComplete chan struct{}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(store Store, producer messageWriter, registry schemaRegistrar, pollInterval time.Duration, batchSize int) *Dispatcher {
	return &Dispatcher{
		store:            store,
		producer:         producer,
		registry:         registry,
		pollInterval:     pollInterval,
		batchSize:        batchSize,
		logger:           log.New(log.Writer(), "[outbox] ", log.LstdFlags|log.Lshortfile),
		shutdownComplete: make(chan struct{}),
	}
}

// Start launches the polling loop. It should be called in a goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer func() {
		ticker.Stop()
		close(d.shutdownComplete)
	}()

	for {
		if err := d.processBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Printf("dispatcher error: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until the polling loop has stopped.
func (d *Dispatcher) Wait() {
	<-d.shutdownComplete
}

func (d *Dispatcher) processBatch(ctx context.Context) error {
	start := time.Now()

	messages, err := d.store.Claim(ctx, d.batchSize)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}
	defer func() { batchDuration.Observe(time.Since(start).Seconds()) }()

	for _, batch := range d.deliver(ctx, messages) {
		if batch.err != nil {
			d.logger.Printf("delivery failure on %s: %v", batch.topic, batch.err)
			failedCounter.Add(float64(len(batch.messages)))
			if err := d.moveToDLQ(ctx, batch.messages, batch.err.Error()); err != nil {
				return err
			}
		} else {
			deliveredCounter.Add(float64(len(batch.messages)))
		}
		if err := d.store.MarkPublished(ctx, eventIDs(batch.messages)); err != nil {
			return err
		}
	}
	return nil
}

// topicBatch is the slice of a claimed batch bound for one topic. err is set
// when none of its messages reached the broker.
type topicBatch struct {
	topic    string
	messages []Message
	records  []kafka.Message
	err      error
}

// deliver writes each topic's messages independently, in the order topics
// first appear in the claim. A failure only marks the batch it happened in.
func (d *Dispatcher) deliver(ctx context.Context, messages []Message) []*topicBatch {
	batches := make(map[string]*topicBatch)
	order := make([]*topicBatch, 0)

	for _, msg := range messages {
		batch, exists := batches[msg.Topic]
		if !exists {
			batch = &topicBatch{topic: msg.Topic}
			batches[msg.Topic] = batch
			order = append(order, batch)
		}
		batch.messages = append(batch.messages, msg)
		if batch.err != nil {
			continue
		}

		schemaID, err := d.schemaID(ctx, msg)
		if err != nil {
			batch.err = err
			continue
		}
		batch.records = append(batch.records, kafka.Message{
			Key:   []byte(msg.PartitionKey),
			Value: encodeWireFormat(schemaID, msg.Payload),
			Time:  time.Now().UTC(),
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(msg.EventType)},
				{Key: "schema_subject", Value: []byte(msg.SchemaSubject)},
				{Key: "aggregate_id", Value: []byte(msg.AggregateID)},
			},
		})
	}

	for _, batch := range order {
		if batch.err != nil {
			continue
		}
		batch.err = d.producer.WriteMessages(ctx, batch.topic, batch.records...)
	}
	return order
}

func (d *Dispatcher) schemaID(ctx context.Context, msg Message) (int, error) {
	schema, ok := schemaCatalog[msg.EventType]
	if !ok {
		return 0, fmt.Errorf("no schema metadata for event_type=%s", msg.EventType)
	}

	cacheKey := msg.SchemaSubject + "::" + schema
	if id, found := d.schemaIDCache.Load(cacheKey); found {
		return id.(int), nil
	}
	id, err := d.registry.EnsureSchema(ctx, msg.SchemaSubject, schema)
	if err != nil {
		return 0, err
	}
	d.schemaIDCache.Store(cacheKey, id)
	return id, nil
}

func (d *Dispatcher) moveToDLQ(ctx context.Context, messages []Message, reason string) error {
	for _, msg := range messages {
		entryReason := fmt.Sprintf("%s (topic=%s)", reason, msg.Topic)
		if err := d.store.MoveToDLQ(ctx, msg, entryReason); err != nil {
			return err
		}
		dlqCounter.WithLabelValues(msg.Topic).Inc()
	}
	return nil
}

// Message represents a claimed outbox row.
type Message struct {
	EventID       int64
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	SchemaSubject string
	PartitionKey  string
	Payload       json.RawMessage
}

func eventIDs(messages []Message) []int64 {
	ids := make([]int64, 0, len(messages))
	for _, msg := range messages {
		ids = append(ids, msg.EventID)
	}
	return ids
}

// encodeWireFormat applies Confluent framing for Schema Registry aware payloads.
func encodeWireFormat(schemaID int, payload []byte) []byte {
	frame := make([]byte, 5+len(payload))
	frame[0] = 0
	binary.BigEndian.PutUint32(frame[1:5], uint32(schemaID))
	copy(frame[5:], payload)
	return frame
}

var schemaCatalog = map[string]string{
	events.TypeWorkoutCompleted: workoutCompletedSchema,
	events.TypeXPAwarded:        xpAwardedSchema,
	events.TypeHypeToggled:      hypeToggledSchema,
}
