package content

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoCollection is the collection content items are stored in.
const MongoCollection = "content_items"

// mongoItem is the persisted document shape. Partial indexes cannot express
// "status not in (...)" or "field missing", so active and top_level are
// maintained on every write and used as index predicates.
type mongoItem struct {
	ID              string    `bson:"_id"`
	TopicID         string    `bson:"topic_id"`
	ContentType     string    `bson:"content_type"`
	Order           *float64  `bson:"order"`
	ParentContentID *string   `bson:"parent_content_id"`
	Status          string    `bson:"status"`
	Active          bool      `bson:"active"`
	TopLevel        bool      `bson:"top_level"`
	Content         bson.M    `bson:"content"`
	CreatedAt       time.Time `bson:"created_at"`
	UpdatedAt       time.Time `bson:"updated_at"`
}

// MongoIndexes returns the indexes MongoStore relies on.
func MongoIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "topic_id", Value: 1}, {Key: "content_type", Value: 1}, {Key: "order", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName("slide_slot_unique").
				SetPartialFilterExpression(bson.M{"content_type": string(TypeSlide), "top_level": true, "active": true}),
		},
		{
			Keys: bson.D{{Key: "topic_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName("quiz_singleton_unique").
				SetPartialFilterExpression(bson.M{"content_type": string(TypeQuiz), "active": true}),
		},
		{
			Keys: bson.D{{Key: "topic_id", Value: 1}, {Key: "parent_content_id", Value: 1}},
		},
	}
}

// MongoStore is a MongoDB-backed Store.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoStore creates a MongoDB-backed content store on db.
func NewMongoStore(client *mongo.Client, db *mongo.Database) (*MongoStore, error) {
	if client == nil || db == nil {
		return nil, fmt.Errorf("mongo client is nil")
	}
	return &MongoStore{client: client, coll: db.Collection(MongoCollection)}, nil
}

func (s *MongoStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	return err
}

func (s *MongoStore) Find(ctx context.Context, f Filter) ([]Item, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "order", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.coll.Find(ctx, mongoFilter(f), opts)
	if err != nil {
		return nil, fmt.Errorf("find content items: %w", err)
	}
	var docs []mongoItem
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode content items: %w", err)
	}

	items := make([]Item, 0, len(docs))
	for _, d := range docs {
		items = append(items, d.toItem())
	}
	// Mongo sorts missing orders first; keep the store-wide convention.
	sortItems(items)
	return items, nil
}

func (s *MongoStore) FindOne(ctx context.Context, f Filter) (*Item, error) {
	items, err := s.Find(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNotFound
	}
	return &items[0], nil
}

func (s *MongoStore) FindOneAndUpsert(ctx context.Context, key SlotKey, set Fields, onInsert InsertFields) (UpsertResult, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	filter := bson.M{
		"topic_id":     key.TopicID,
		"content_type": string(TypeSlide),
		"order":        float64(key.Order),
		"top_level":    true,
		"active":       true,
	}
	setOps := setFields(set)
	setOnInsert := bson.M{
		"_id":               onInsert.ID,
		"parent_content_id": nil,
		"created_at":        onInsert.CreatedAt,
	}
	if set.Status == "" {
		setOnInsert["status"] = string(StatusDraft)
	}
	if len(set.Content) == 0 {
		setOnInsert["content"] = bson.M{}
	}

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var doc mongoItem
	err := s.coll.FindOneAndUpdate(ctx, filter, bson.M{"$set": setOps, "$setOnInsert": setOnInsert}, opts).Decode(&doc)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("upsert slide slot %s/%d: %w", key.TopicID, key.Order, mongoErr(err))
	}
	// An existing document keeps its own _id, so a match means this call inserted it.
	return UpsertResult{ID: doc.ID, WasInserted: doc.ID == onInsert.ID}, nil
}

func (s *MongoStore) UpdateOne(ctx context.Context, id string, set Fields) (*Item, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc mongoItem
	err := s.coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": setFields(set)}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("content item %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("update content item: %w", mongoErr(err))
	}
	it := doc.toItem()
	return &it, nil
}

func (s *MongoStore) DeleteMany(ctx context.Context, f Filter) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	res, err := s.coll.DeleteMany(ctx, mongoFilter(f))
	if err != nil {
		return 0, fmt.Errorf("delete content items: %w", err)
	}
	return res.DeletedCount, nil
}

func (s *MongoStore) InsertOne(ctx context.Context, item Item) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if item.ID == "" {
		return "", fmt.Errorf("item id is required")
	}
	if _, err := s.coll.InsertOne(ctx, newMongoItem(item)); err != nil {
		return "", fmt.Errorf("insert content item: %w", mongoErr(err))
	}
	return item.ID, nil
}

func (s *MongoStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func newMongoItem(it Item) mongoItem {
	doc := mongoItem{
		ID:          it.ID,
		TopicID:     it.TopicID,
		ContentType: string(it.ContentType),
		Order:       it.Order,
		Status:      string(it.Status),
		Active:      it.Status.Active(),
		TopLevel:    !it.IsAttachment(),
		Content:     bson.M{},
		CreatedAt:   it.CreatedAt,
		UpdatedAt:   it.UpdatedAt,
	}
	if it.IsAttachment() {
		parent := it.ParentContentID
		doc.ParentContentID = &parent
	}
	for k, v := range it.Content {
		doc.Content[k] = v
	}
	return doc
}

func (d mongoItem) toItem() Item {
	it := Item{
		ID:          d.ID,
		TopicID:     d.TopicID,
		ContentType: ContentType(d.ContentType),
		Order:       d.Order,
		Status:      Status(d.Status),
		Content:     map[string]any{},
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
	if d.ParentContentID != nil {
		it.ParentContentID = *d.ParentContentID
	}
	for k, v := range d.Content {
		it.Content[k] = fromBSON(v)
	}
	return it
}

// fromBSON converts decoded BSON containers into plain maps and slices.
func fromBSON(v any) any {
	switch t := v.(type) {
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = fromBSON(e.Value)
		}
		return out
	case bson.M:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = fromBSON(e)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = fromBSON(e)
		}
		return out
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return v
	}
}

func setFields(set Fields) bson.M {
	ops := bson.M{}
	updatedAt := set.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	ops["updated_at"] = updatedAt
	if set.Status != "" {
		ops["status"] = string(set.Status)
		ops["active"] = set.Status.Active()
	}
	for k, v := range set.Content {
		ops[contentPrefix+k] = v
	}
	return ops
}

func mongoFilter(f Filter) bson.M {
	filter := bson.M{}
	if !f.IncludeInactive {
		filter["active"] = true
	}
	if len(f.IDs) > 0 {
		filter["_id"] = bson.M{"$in": f.IDs}
	}
	if f.TopicID != "" {
		filter["topic_id"] = f.TopicID
	}

	typeCond := bson.M{}
	if len(f.Types) > 0 {
		typeCond["$in"] = typeStrings(f.Types)
	}
	if len(f.ExcludeTypes) > 0 {
		typeCond["$nin"] = typeStrings(f.ExcludeTypes)
	}
	if len(typeCond) > 0 {
		filter["content_type"] = typeCond
	}

	orderCond := bson.M{}
	if f.Order != nil {
		orderCond["$eq"] = *f.Order
	}
	if f.OrderGT != nil {
		orderCond["$gt"] = *f.OrderGT
	}
	if len(orderCond) > 0 {
		filter["order"] = orderCond
	}

	switch f.Parent {
	case ParentNone:
		filter["parent_content_id"] = nil
	case ParentSet:
		filter["parent_content_id"] = bson.M{"$ne": nil}
	}
	if f.ParentID != "" {
		filter["parent_content_id"] = f.ParentID
	}
	return filter
}

// mongoErr tags duplicate key errors with ErrDuplicateKey.
func mongoErr(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %w", ErrDuplicateKey, err)
	}
	return err
}
