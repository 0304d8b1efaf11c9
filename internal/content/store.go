package content

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ParentScope restricts a Filter by attachment relationship.
type ParentScope int

const (
	ParentAny ParentScope = iota
	ParentNone
	ParentSet
)

// Filter selects content items. Zero-valued fields do not constrain.
// Inactive (deleted, migrated) items are skipped unless IncludeInactive is set.
type Filter struct {
	IDs             []string
	TopicID         string
	Types           []ContentType
	ExcludeTypes    []ContentType
	Order           *float64
	OrderGT         *float64
	Parent          ParentScope
	ParentID        string
	IncludeInactive bool
}

// SlotKey identifies a top-level slide slot.
type SlotKey struct {
	TopicID string
	Order   int
}

// Fields are the mutable fields written by an update. Content keys are
// merged into the stored content map one by one; an empty Status keeps the
// stored status.
type Fields struct {
	Status    Status
	Content   map[string]any
	UpdatedAt time.Time
}

// InsertFields are written only when an upsert creates the document.
type InsertFields struct {
	ID        string
	CreatedAt time.Time
}

// UpsertResult reports the id of an upserted slot and whether it was created.
type UpsertResult struct {
	ID          string
	WasInserted bool
}

// Store is the document store contract the engine runs on. Implementations
// must enforce a unique index on active top-level slide slots
// (topic_id, content_type, order) and a unique index on the active quiz of a
// topic, reporting violations as ErrDuplicateKey.
type Store interface {
	Find(ctx context.Context, f Filter) ([]Item, error)
	// FindOne returns ErrNotFound when nothing matches.
	FindOne(ctx context.Context, f Filter) (*Item, error)
	FindOneAndUpsert(ctx context.Context, key SlotKey, set Fields, onInsert InsertFields) (UpsertResult, error)
	// UpdateOne returns ErrNotFound when id does not exist.
	UpdateOne(ctx context.Context, id string, set Fields) (*Item, error)
	DeleteMany(ctx context.Context, f Filter) (int64, error)
	InsertOne(ctx context.Context, item Item) (string, error)
	// WithTransaction runs fn atomically. Calls nested inside fn join the outer transaction.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	HealthCheck(ctx context.Context) error
}

// MemoryStore is an in-memory implementation of Store. Transactions are
// serialized and roll back by restoring a snapshot.
type MemoryStore struct {
	items map[string]*Item
	mu    sync.RWMutex
	txMu  sync.RWMutex
}

// NewMemoryStore creates a new in-memory content store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]*Item),
	}
}

type memTxKey struct{}

func (s *MemoryStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := make(map[string]*Item, len(s.items))
	for id, it := range s.items {
		c := it.Clone()
		snapshot[id] = &c
	}
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		s.mu.Lock()
		s.items = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// enter keeps operations outside a transaction from observing one in flight.
func (s *MemoryStore) enter(ctx context.Context, write bool) func() {
	if ctx.Value(memTxKey{}) != nil {
		return func() {}
	}
	if write {
		s.txMu.Lock()
		return s.txMu.Unlock
	}
	s.txMu.RLock()
	return s.txMu.RUnlock
}

func (s *MemoryStore) Find(ctx context.Context, f Filter) ([]Item, error) {
	defer s.enter(ctx, false)()
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Item{}
	for _, it := range s.items {
		if matches(*it, f) {
			out = append(out, it.Clone())
		}
	}
	sortItems(out)
	return out, nil
}

func (s *MemoryStore) FindOne(ctx context.Context, f Filter) (*Item, error) {
	items, err := s.Find(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNotFound
	}
	return &items[0], nil
}

func (s *MemoryStore) FindOneAndUpsert(ctx context.Context, key SlotKey, set Fields, onInsert InsertFields) (UpsertResult, error) {
	defer s.enter(ctx, true)()
	s.mu.Lock()
	defer s.mu.Unlock()

	order := float64(key.Order)
	for _, it := range s.items {
		if isSlideSlot(*it) && it.TopicID == key.TopicID && *it.Order == order {
			applyFields(it, set)
			return UpsertResult{ID: it.ID, WasInserted: false}, nil
		}
	}

	if _, exists := s.items[onInsert.ID]; exists {
		return UpsertResult{}, fmt.Errorf("insert %s: %w", onInsert.ID, ErrDuplicateKey)
	}
	it := &Item{
		ID:          onInsert.ID,
		TopicID:     key.TopicID,
		ContentType: TypeSlide,
		Order:       OrderPtr(order),
		Status:      StatusDraft,
		Content:     map[string]any{},
		CreatedAt:   onInsert.CreatedAt,
	}
	applyFields(it, set)
	s.items[it.ID] = it
	return UpsertResult{ID: it.ID, WasInserted: true}, nil
}

func (s *MemoryStore) UpdateOne(ctx context.Context, id string, set Fields) (*Item, error) {
	defer s.enter(ctx, true)()
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("content item %s: %w", id, ErrNotFound)
	}
	next := it.Clone()
	applyFields(&next, set)
	if err := s.checkUnique(next); err != nil {
		return nil, err
	}
	*it = next
	out := it.Clone()
	return &out, nil
}

func (s *MemoryStore) DeleteMany(ctx context.Context, f Filter) (int64, error) {
	defer s.enter(ctx, true)()
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, it := range s.items {
		if matches(*it, f) {
			delete(s.items, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) InsertOne(ctx context.Context, item Item) (string, error) {
	defer s.enter(ctx, true)()
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.ID == "" {
		return "", fmt.Errorf("item id is required")
	}
	if _, exists := s.items[item.ID]; exists {
		return "", fmt.Errorf("insert %s: %w", item.ID, ErrDuplicateKey)
	}
	if err := s.checkUnique(item); err != nil {
		return "", err
	}
	c := item.Clone()
	s.items[c.ID] = &c
	return c.ID, nil
}

func (s *MemoryStore) HealthCheck(context.Context) error {
	return nil
}

// checkUnique enforces the slide slot and quiz singleton indexes. Caller holds s.mu.
func (s *MemoryStore) checkUnique(next Item) error {
	for _, it := range s.items {
		if it.ID == next.ID || it.TopicID != next.TopicID {
			continue
		}
		if isSlideSlot(next) && isSlideSlot(*it) && *it.Order == *next.Order {
			return fmt.Errorf("slide slot %s/%v: %w", next.TopicID, *next.Order, ErrDuplicateKey)
		}
		if isQuizSlot(next) && isQuizSlot(*it) {
			return fmt.Errorf("quiz for topic %s: %w", next.TopicID, ErrDuplicateKey)
		}
	}
	return nil
}

func isSlideSlot(it Item) bool {
	return it.ContentType == TypeSlide && !it.IsAttachment() && it.Order != nil && it.Status.Active()
}

func isQuizSlot(it Item) bool {
	return it.ContentType == TypeQuiz && it.Status.Active()
}

func applyFields(it *Item, set Fields) {
	if set.Status != "" {
		it.Status = set.Status
	}
	if it.Content == nil {
		it.Content = map[string]any{}
	}
	for k, v := range set.Content {
		it.Content[k] = cloneValue(v)
	}
	if !set.UpdatedAt.IsZero() {
		it.UpdatedAt = set.UpdatedAt
	}
}

func matches(it Item, f Filter) bool {
	if !f.IncludeInactive && !it.Status.Active() {
		return false
	}
	if len(f.IDs) > 0 && !containsString(f.IDs, it.ID) {
		return false
	}
	if f.TopicID != "" && it.TopicID != f.TopicID {
		return false
	}
	if len(f.Types) > 0 && !containsType(f.Types, it.ContentType) {
		return false
	}
	if containsType(f.ExcludeTypes, it.ContentType) {
		return false
	}
	if f.Order != nil && (it.Order == nil || *it.Order != *f.Order) {
		return false
	}
	if f.OrderGT != nil && (it.Order == nil || *it.Order <= *f.OrderGT) {
		return false
	}
	switch f.Parent {
	case ParentNone:
		if it.IsAttachment() {
			return false
		}
	case ParentSet:
		if !it.IsAttachment() {
			return false
		}
	}
	if f.ParentID != "" && it.ParentContentID != f.ParentID {
		return false
	}
	return true
}

// sortItems orders by order ascending with unordered items last, then by id.
func sortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return lessByOrder(items[i], items[j])
	})
}

func lessByOrder(a, b Item) bool {
	switch {
	case a.Order != nil && b.Order != nil:
		if *a.Order != *b.Order {
			return *a.Order < *b.Order
		}
	case a.Order != nil:
		return true
	case b.Order != nil:
		return false
	}
	return a.ID < b.ID
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsType(list []ContentType, v ContentType) bool {
	for _, t := range list {
		if t == v {
			return true
		}
	}
	return false
}
