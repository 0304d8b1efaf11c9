package content

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-content/internal/stats"
	"github.com/p-n-ai/pai-content/internal/tasks"
	"github.com/p-n-ai/pai-content/internal/validation"
)

const (
	defaultStatsTTL = 30 * time.Second

	reasonOrderingConflict = "ordering conflict"
	reasonQuizExists       = "quiz already exists, retry"
	reasonDuplicateItem    = "content item already exists"
)

// Topics resolves topic ids owned by the curriculum.
type Topics interface {
	TopicExists(id string) bool
	PlannedSlides(id string) int
}

// TaskQueue accepts background work scheduled after a successful write.
type TaskQueue interface {
	Enqueue(t tasks.Task) bool
}

// ServiceConfig holds dependencies for the content service.
type ServiceConfig struct {
	Store      Store
	Topics     Topics // nil accepts every topic id
	Cache      stats.Cache
	StatsTTL   time.Duration
	Usage      UsageCounter
	Events     EventLogger
	Tasks      TaskQueue
	Validators map[ContentType]validation.Validator
	Now        func() time.Time
	NewID      func() string
}

// Service is the content persistence and sequencing engine.
type Service struct {
	store      Store
	topics     Topics
	cache      stats.Cache
	statsTTL   time.Duration
	usage      UsageCounter
	events     EventLogger
	tasks      TaskQueue
	validators map[ContentType]validation.Validator
	now        func() time.Time
	newID      func() string

	statsMu  sync.Mutex
	statsGen map[string]uint64
}

// NewService creates a content service.
func NewService(cfg ServiceConfig) *Service {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	cache := cfg.Cache
	if cache == nil {
		cache = stats.NewMemoryCache()
	}
	ttl := cfg.StatsTTL
	if ttl <= 0 {
		ttl = defaultStatsTTL
	}
	usage := cfg.Usage
	if usage == nil {
		usage = NewMemoryUsageCounter()
	}
	events := cfg.Events
	if events == nil {
		events = NopEventLogger{}
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &Service{
		store:      store,
		topics:     cfg.Topics,
		cache:      cache,
		statsTTL:   ttl,
		usage:      usage,
		events:     events,
		tasks:      cfg.Tasks,
		validators: cfg.Validators,
		now:        now,
		newID:      newID,
		statsGen:   make(map[string]uint64),
	}
}

// CreateRequest describes a single content item to create. Payload is the raw
// mutation payload; content fields may arrive at its root, under "content" or
// as "content.<field>" keys.
type CreateRequest struct {
	TopicID         string
	ContentType     ContentType
	Order           *float64
	ParentContentID string
	Status          Status
	Payload         map[string]any
}

// UpdateRequest describes a content mutation. Only content fields and the
// status can change; an empty Status lets slides re-derive theirs.
type UpdateRequest struct {
	Status  Status
	Payload map[string]any
}

// BatchCreateResult reports the outcome of CreateContentBatch. IDs is aligned
// with the request slice; dropped requests have an empty id.
type BatchCreateResult struct {
	IDs     []string
	Dropped []int
}

// CreateContent creates one item. A quiz replaces any existing quiz of its topic.
func (s *Service) CreateContent(ctx context.Context, req CreateRequest) (*Item, error) {
	const op = "create_content"

	item, err := s.prepare(op, req)
	if err != nil {
		return nil, err
	}

	var replaced int64
	err = s.store.WithTransaction(ctx, func(ctx context.Context) error {
		replaced = 0
		if err := s.checkParent(ctx, op, item); err != nil {
			return err
		}
		if item.ContentType == TypeQuiz {
			n, err := s.replaceQuiz(ctx, op, item, nil)
			replaced = n
			return err
		}
		_, err := s.store.InsertOne(ctx, item)
		return storeError(op, conflictReason(item), err)
	})
	if err != nil {
		return nil, storeError(op, conflictReason(item), err)
	}

	if replaced > 0 {
		s.logEvent(ctx, Event{
			TopicID:   item.TopicID,
			ContentID: item.ID,
			EventType: EventQuizReplaced,
			Data:      map[string]any{"replaced": replaced},
		})
	}
	s.afterWrite(ctx, item.TopicID, item.ID)
	return &item, nil
}

// CreateContentBatch creates several items in one transaction. When more
// than one request targets the same topic's quiz, only the last one is kept.
func (s *Service) CreateContentBatch(ctx context.Context, reqs []CreateRequest) (BatchCreateResult, error) {
	const op = "create_content_batch"

	if len(reqs) == 0 {
		return BatchCreateResult{}, validationError(op, "batch is empty")
	}

	dropped := lastWinsQuizzes(reqs)
	skip := make(map[int]bool, len(dropped))
	for _, i := range dropped {
		skip[i] = true
	}

	items := make([]Item, len(reqs))
	for i, req := range reqs {
		if skip[i] {
			continue
		}
		item, err := s.prepare(op, req)
		if err != nil {
			return BatchCreateResult{}, withIndex(err, i)
		}
		items[i] = item
	}

	replaced := map[string]int64{}
	err := s.store.WithTransaction(ctx, func(ctx context.Context) error {
		clear(replaced)
		cleared := map[string]bool{}
		for i, item := range items {
			if skip[i] {
				continue
			}
			if err := s.checkParent(ctx, op, item); err != nil {
				return withIndex(err, i)
			}
			if item.ContentType == TypeQuiz {
				n, err := s.replaceQuiz(ctx, op, item, cleared)
				if err != nil {
					return withIndex(err, i)
				}
				replaced[item.TopicID] += n
				continue
			}
			if _, err := s.store.InsertOne(ctx, item); err != nil {
				return withIndex(storeError(op, conflictReason(item), err), i)
			}
		}
		return nil
	})
	if err != nil {
		return BatchCreateResult{}, storeError(op, reasonDuplicateItem, err)
	}

	res := BatchCreateResult{IDs: make([]string, len(reqs)), Dropped: dropped}
	byTopic := map[string][]string{}
	var topicOrder []string
	for i, item := range items {
		if skip[i] {
			continue
		}
		res.IDs[i] = item.ID
		if _, ok := byTopic[item.TopicID]; !ok {
			topicOrder = append(topicOrder, item.TopicID)
		}
		byTopic[item.TopicID] = append(byTopic[item.TopicID], item.ID)
		if item.ContentType == TypeQuiz && replaced[item.TopicID] > 0 {
			s.logEvent(ctx, Event{
				TopicID:   item.TopicID,
				ContentID: item.ID,
				EventType: EventQuizReplaced,
				Data:      map[string]any{"replaced": replaced[item.TopicID], "batch_index": i},
			})
		}
	}
	for _, topicID := range topicOrder {
		s.afterWrite(ctx, topicID, byTopic[topicID]...)
	}
	return res, nil
}

// UpdateContent merges content fields into an existing item. Slides re-derive
// their status from the merged content unless the request sets one.
func (s *Service) UpdateContent(ctx context.Context, id string, req UpdateRequest) (*Item, error) {
	const op = "update_content"

	if id == "" {
		return nil, validationError(op, "id is required")
	}
	if req.Status != "" && !req.Status.Valid() {
		return nil, validationError(op, "unknown status %q", req.Status)
	}
	payload := Normalize(req.Payload)

	var updated *Item
	err := s.store.WithTransaction(ctx, func(ctx context.Context) error {
		cur, err := s.store.FindOne(ctx, Filter{IDs: []string{id}, IncludeInactive: true})
		if errors.Is(err, ErrNotFound) {
			return notFoundError(op, "content item %s does not exist", id)
		}
		if err != nil {
			return storeError(op, "", err)
		}

		merged := cur.Clone().Content
		for k, v := range payload.Content {
			merged[k] = v
		}
		status := req.Status
		if cur.ContentType == TypeSlide {
			status = DeriveStatus(merged, cur.Status, req.Status)
		}
		if err := s.validate(op, cur.ContentType, merged); err != nil {
			return err
		}

		updated, err = s.store.UpdateOne(ctx, id, Fields{
			Status:    status,
			Content:   payload.Content,
			UpdatedAt: s.now(),
		})
		return storeError(op, conflictReason(*cur), err)
	})
	if err != nil {
		return nil, storeError(op, reasonDuplicateItem, err)
	}

	s.afterWrite(ctx, updated.TopicID, updated.ID)
	return updated, nil
}

// MarkDeleted soft-deletes an item.
func (s *Service) MarkDeleted(ctx context.Context, id string) error {
	const op = "mark_deleted"

	it, err := s.store.UpdateOne(ctx, id, Fields{Status: StatusDeleted, UpdatedAt: s.now()})
	if err != nil {
		return storeError(op, "", err)
	}
	s.invalidateStats(ctx, it.TopicID)
	return nil
}

// GetContent returns an item by id, inactive items included.
func (s *Service) GetContent(ctx context.Context, id string) (*Item, error) {
	it, err := s.store.FindOne(ctx, Filter{IDs: []string{id}, IncludeInactive: true})
	if err != nil {
		return nil, storeError("get_content", "", err)
	}
	return it, nil
}

// ListTopicContent returns every active item of a topic ordered by order, then id.
func (s *Service) ListTopicContent(ctx context.Context, topicID string) ([]Item, error) {
	items, err := s.store.Find(ctx, Filter{TopicID: topicID})
	if err != nil {
		return nil, storeError("list_topic_content", "", err)
	}
	return items, nil
}

// prepare validates a create request and builds the item to persist.
func (s *Service) prepare(op string, req CreateRequest) (Item, error) {
	if !req.ContentType.Valid() {
		return Item{}, validationError(op, "unknown content_type %q", req.ContentType)
	}
	if err := checkExplicitStatus(op, req.Status); err != nil {
		return Item{}, err
	}
	if err := s.resolveTopic(op, req.TopicID); err != nil {
		return Item{}, err
	}
	if req.ContentType == TypeSlide && req.ParentContentID == "" {
		if req.Order == nil {
			return Item{}, validationError(op, "top-level slides require an order")
		}
		if o := *req.Order; o < 1 || o != math.Trunc(o) {
			return Item{}, validationError(op, "slide order must be a positive integer, got %v", o)
		}
	}

	payload := Normalize(req.Payload)
	if err := s.validate(op, req.ContentType, payload.Content); err != nil {
		return Item{}, err
	}

	now := s.now()
	return Item{
		ID:              s.newID(),
		TopicID:         req.TopicID,
		ContentType:     req.ContentType,
		Order:           req.Order,
		ParentContentID: req.ParentContentID,
		Status:          initialStatus(req.ContentType, payload.Content, req.Status),
		Content:         payload.Content,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// checkExplicitStatus accepts an empty status or an active one. New content
// cannot start out deleted or migrated; soft deletion goes through MarkDeleted.
func checkExplicitStatus(op string, st Status) error {
	if st == "" {
		return nil
	}
	if !st.Valid() {
		return validationError(op, "unknown status %q", st)
	}
	if !st.Active() {
		return validationError(op, "status %s cannot be set on write, use mark_deleted", st)
	}
	return nil
}

func (s *Service) resolveTopic(op, topicID string) error {
	if topicID == "" {
		return validationError(op, "topic_id is required")
	}
	if s.topics != nil && !s.topics.TopicExists(topicID) {
		return notFoundError(op, "topic %s does not exist", topicID)
	}
	return nil
}

// checkParent requires an attachment's parent to be a slide of the same topic.
func (s *Service) checkParent(ctx context.Context, op string, item Item) error {
	if !item.IsAttachment() {
		return nil
	}
	parent, err := s.store.FindOne(ctx, Filter{IDs: []string{item.ParentContentID}, TopicID: item.TopicID})
	if errors.Is(err, ErrNotFound) {
		return notFoundError(op, "parent %s does not exist in topic %s", item.ParentContentID, item.TopicID)
	}
	if err != nil {
		return storeError(op, "", err)
	}
	if parent.ContentType != TypeSlide {
		return validationError(op, "parent %s is a %s, not a slide", parent.ID, parent.ContentType)
	}
	return nil
}

func (s *Service) validate(op string, t ContentType, content map[string]any) error {
	v := s.validators[t]
	if v == nil {
		return nil
	}
	if ok, reason := v.Validate(content); !ok {
		return validationError(op, "%s content rejected: %s", t, reason)
	}
	return nil
}

// afterWrite evicts cached aggregates and schedules the background refreshes.
// Neither can fail the write that triggered it.
func (s *Service) afterWrite(ctx context.Context, topicID string, ids ...string) {
	s.invalidateStats(ctx, topicID)
	if s.tasks == nil {
		return
	}
	for _, id := range ids {
		s.tasks.Enqueue(tasks.Task{Kind: tasks.KindLearningStyleRefresh, TopicID: topicID, ContentID: id})
		s.tasks.Enqueue(tasks.Task{Kind: tasks.KindEvaluationRecompute, TopicID: topicID, ContentID: id})
	}
}

func (s *Service) logEvent(ctx context.Context, e Event) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	if err := s.events.LogEvent(ctx, e); err != nil {
		slog.Warn("failed to log content event", "type", e.EventType, "topic_id", e.TopicID, "error", err)
	}
}

func conflictReason(item Item) string {
	switch item.ContentType {
	case TypeQuiz:
		return reasonQuizExists
	case TypeSlide:
		return reasonOrderingConflict
	}
	return reasonDuplicateItem
}

// withIndex prefixes the reason of a classified error with its batch position.
func withIndex(err error, i int) error {
	var ce *Error
	if !errors.As(err, &ce) {
		return err
	}
	out := *ce
	out.Reason = "item " + strconv.Itoa(i) + ": " + ce.Reason
	return &out
}
