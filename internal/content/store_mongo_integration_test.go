package content_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	tcmongo "github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/p-n-ai/pai-content/internal/content"
	"github.com/p-n-ai/pai-content/internal/platform/docstore"
)

func newMongoStore(t *testing.T) (*content.MongoStore, *docstore.DocStore) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping mongo integration test in short mode")
	}

	ctx := t.Context()
	// Transactions need a replica set.
	ctr, err := tcmongo.Run(ctx, "mongo:7", tcmongo.WithReplicaSet("rs0"))
	if err != nil {
		t.Skipf("mongo container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	endpoint, err := ctr.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("ConnectionString() error = %v", err)
	}
	uri := strings.TrimSuffix(endpoint, "/") + "/?directConnection=true"

	ds, err := docstore.New(ctx, uri, "content_test")
	if err != nil {
		t.Fatalf("docstore.New() error = %v", err)
	}
	t.Cleanup(func() { ds.Close(context.Background()) })

	if err := ds.EnsureIndexes(ctx, content.MongoCollection, content.MongoIndexes()); err != nil {
		t.Fatalf("EnsureIndexes() error = %v", err)
	}
	if err := ds.EnsureIndexes(ctx, content.MongoEventCollection, content.MongoEventIndexes()); err != nil {
		t.Fatalf("EnsureIndexes(events) error = %v", err)
	}

	store, err := content.NewMongoStore(ds.Client, ds.DB)
	if err != nil {
		t.Fatalf("NewMongoStore() error = %v", err)
	}
	return store, ds
}

func TestMongoStore_SlideBatchLifecycle(t *testing.T) {
	store, ds := newMongoStore(t)
	ctx := t.Context()

	svc := content.NewService(content.ServiceConfig{Store: store, Events: content.NewMongoEventLogger(ds.DB)})

	first, err := svc.UpsertSlideBatch(ctx, "F1-01", slideBatch(4, ""))
	if err != nil {
		t.Fatalf("UpsertSlideBatch() error = %v", err)
	}
	if first.Inserted != 4 {
		t.Errorf("Inserted = %d, want 4", first.Inserted)
	}

	retry, err := svc.UpsertSlideBatch(ctx, "F1-01", slideBatch(4, "content.content_html"))
	if err != nil {
		t.Fatalf("UpsertSlideBatch() retry error = %v", err)
	}
	if retry.Inserted != 0 || retry.Updated != 4 {
		t.Errorf("retry inserted=%d updated=%d, want 0/4", retry.Inserted, retry.Updated)
	}
	for i := range first.IDs {
		if retry.IDs[i] != first.IDs[i] {
			t.Errorf("retry IDs[%d] = %s, want %s", i, retry.IDs[i], first.IDs[i])
		}
	}

	shrunk, err := svc.UpsertSlideBatch(ctx, "F1-01", slideBatch(2, ""))
	if err != nil {
		t.Fatalf("UpsertSlideBatch() shrink error = %v", err)
	}
	if shrunk.Deleted != 2 {
		t.Errorf("Deleted = %d, want 2", shrunk.Deleted)
	}

	slides := topLevelSlides(t, store, "F1-01")
	if len(slides) != 2 {
		t.Fatalf("slides = %d, want 2", len(slides))
	}
	for _, sl := range slides {
		if sl.Status != content.StatusHTMLReady {
			t.Errorf("status = %q, want html_ready", sl.Status)
		}
		if sl.Text(content.FieldFullText) == "" || sl.Text(content.FieldContentHTML) == "" {
			t.Errorf("content = %v, want full_text and content_html kept", sl.Content)
		}
		if sl.UpdatedAt.Before(sl.CreatedAt) {
			t.Errorf("created_at %v after updated_at %v", sl.CreatedAt, sl.UpdatedAt)
		}
	}

	n, err := ds.DB.Collection(content.MongoEventCollection).CountDocuments(ctx, bson.M{"topic_id": "F1-01"})
	if err != nil {
		t.Fatalf("count events: %v", err)
	}
	if n == 0 {
		t.Error("no content events recorded")
	}
}

func TestMongoStore_UniqueIndexes(t *testing.T) {
	store, _ := newMongoStore(t)
	ctx := t.Context()
	svc := content.NewService(content.ServiceConfig{Store: store})

	if _, err := svc.CreateContent(ctx, content.CreateRequest{TopicID: "F1-01", ContentType: content.TypeQuiz}); err != nil {
		t.Fatalf("CreateContent(quiz) error = %v", err)
	}
	if _, err := svc.CreateContent(ctx, content.CreateRequest{TopicID: "F1-01", ContentType: content.TypeQuiz}); err != nil {
		t.Fatalf("CreateContent(quiz) replacement error = %v", err)
	}

	_, err := store.InsertOne(ctx, content.Item{
		ID:          "raw-quiz",
		TopicID:     "F1-01",
		ContentType: content.TypeQuiz,
		Status:      content.StatusActive,
	})
	if !errors.Is(err, content.ErrDuplicateKey) {
		t.Errorf("InsertOne(second quiz) error = %v, want ErrDuplicateKey", err)
	}

	batch, err := svc.UpsertSlideBatch(ctx, "F1-01", slideBatch(1, ""))
	if err != nil {
		t.Fatalf("UpsertSlideBatch() error = %v", err)
	}
	_, err = svc.CreateContent(ctx, content.CreateRequest{
		TopicID:     "F1-01",
		ContentType: content.TypeSlide,
		Order:       content.OrderPtr(1),
		Payload:     map[string]any{"full_text": "dup"},
	})
	if !errors.Is(err, content.ErrConflict) {
		t.Errorf("CreateContent(duplicate slot) error = %v, want ErrConflict", err)
	}

	// Attachments sit outside the top-level slot index.
	if _, err := svc.CreateContent(ctx, content.CreateRequest{
		TopicID:         "F1-01",
		ContentType:     content.TypeSlide,
		ParentContentID: batch.IDs[0],
		Order:           content.OrderPtr(1),
		Payload:         map[string]any{"full_text": "sub"},
	}); err != nil {
		t.Errorf("CreateContent(attached slide) error = %v", err)
	}

	// A soft-deleted slot frees its order for a new insert.
	if err := svc.MarkDeleted(ctx, batch.IDs[0]); err != nil {
		t.Fatalf("MarkDeleted() error = %v", err)
	}
	again, err := svc.UpsertSlideBatch(ctx, "F1-01", slideBatch(1, ""))
	if err != nil {
		t.Fatalf("UpsertSlideBatch() after delete error = %v", err)
	}
	if again.Inserted != 1 || again.IDs[0] == batch.IDs[0] {
		t.Errorf("after delete inserted=%d id=%s, want a new slot", again.Inserted, again.IDs[0])
	}
}

func TestMongoStore_TransactionRollsBack(t *testing.T) {
	store, _ := newMongoStore(t)
	ctx := t.Context()

	calls := 0
	boom := errors.New("boom")
	err := store.WithTransaction(ctx, func(ctx context.Context) error {
		calls++
		if _, err := store.InsertOne(ctx, content.Item{
			ID:          "tx-item",
			TopicID:     "F1-01",
			ContentType: content.TypeText,
			Status:      content.StatusActive,
		}); err != nil {
			return err
		}
		// Nested calls join the outer transaction.
		return store.WithTransaction(ctx, func(context.Context) error { return boom })
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTransaction() error = %v, want boom", err)
	}
	if calls != 1 {
		t.Errorf("callback ran %d times, want 1 for a non-transient error", calls)
	}
	if _, err := store.FindOne(ctx, content.Filter{IDs: []string{"tx-item"}, IncludeInactive: true}); !errors.Is(err, content.ErrNotFound) {
		t.Errorf("FindOne(tx-item) error = %v, want ErrNotFound after rollback", err)
	}

	updated, err := store.UpdateOne(ctx, "missing", content.Fields{Status: content.StatusDeleted})
	if updated != nil || !errors.Is(err, content.ErrNotFound) {
		t.Errorf("UpdateOne(missing) = %v, %v, want ErrNotFound", updated, err)
	}
}
