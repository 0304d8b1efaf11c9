package content

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// MongoEventCollection holds content events when MongoDB is the store.
const MongoEventCollection = "content_events"

// Event types recorded by the engine.
const (
	EventSlideBatchUpserted = "slide_batch_upserted"
	EventSlidesTruncated    = "slides_truncated"
	EventQuizReplaced       = "quiz_replaced"
)

// Event is an audit record of a content mutation.
type Event struct {
	TopicID   string
	ContentID string
	EventType string
	Data      map[string]any
	CreatedAt time.Time
}

// EventLogger defines event logging behavior.
type EventLogger interface {
	LogEvent(ctx context.Context, event Event) error
}

// NopEventLogger ignores all events.
type NopEventLogger struct{}

func (NopEventLogger) LogEvent(context.Context, Event) error {
	return nil
}

// MemoryEventLogger stores events in memory for tests.
type MemoryEventLogger struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryEventLogger() *MemoryEventLogger {
	return &MemoryEventLogger{
		events: []Event{},
	}
}

func (l *MemoryEventLogger) LogEvent(_ context.Context, event Event) error {
	if err := checkEvent(event, false); err != nil {
		return err
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()

	return nil
}

func (l *MemoryEventLogger) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event{}, l.events...)
}

// PostgresEventLogger inserts events into the content_events table.
type PostgresEventLogger struct {
	pool *pgxpool.Pool
}

func NewPostgresEventLogger(pool *pgxpool.Pool) *PostgresEventLogger {
	return &PostgresEventLogger{pool: pool}
}

func (l *PostgresEventLogger) LogEvent(ctx context.Context, event Event) error {
	if l == nil || l.pool == nil {
		return fmt.Errorf("event logger pool is nil")
	}
	if err := checkEvent(event, true); err != nil {
		return err
	}

	payload := event.Data
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if _, err := l.pool.Exec(ctx,
		`INSERT INTO content_events (topic_id, content_id, event_type, data, created_at)
		 VALUES ($1, $2, $3, $4::jsonb, $5)`,
		event.TopicID,
		nullIfEmpty(event.ContentID),
		event.EventType,
		string(data),
		createdAt,
	); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	slog.Debug("event logged",
		"type", event.EventType,
		"topic_id", event.TopicID,
		"content_id", event.ContentID,
	)
	return nil
}

// MongoEventLogger inserts events into a MongoDB collection.
type MongoEventLogger struct {
	coll *mongo.Collection
}

func NewMongoEventLogger(db *mongo.Database) *MongoEventLogger {
	return &MongoEventLogger{coll: db.Collection(MongoEventCollection)}
}

// MongoEventIndexes returns the indexes MongoEventLogger relies on.
func MongoEventIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: "topic_id", Value: 1}, {Key: "created_at", Value: 1}}},
	}
}

func (l *MongoEventLogger) LogEvent(ctx context.Context, event Event) error {
	if l == nil || l.coll == nil {
		return fmt.Errorf("event logger collection is nil")
	}
	if err := checkEvent(event, true); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if _, err := l.coll.InsertOne(ctx, eventDoc(event)); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func eventDoc(event Event) bson.M {
	data := bson.M{}
	for k, v := range event.Data {
		data[k] = v
	}
	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	doc := bson.M{
		"topic_id":   event.TopicID,
		"event_type": event.EventType,
		"data":       data,
		"created_at": createdAt,
	}
	if event.ContentID != "" {
		doc["content_id"] = event.ContentID
	}
	return doc
}

func checkEvent(event Event, needTopic bool) error {
	if event.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if needTopic && event.TopicID == "" {
		return fmt.Errorf("topic_id is required")
	}
	return nil
}
