package content

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// SlideSpec is one slide of a bulk upsert. TopicID and ContentType may be
// left empty; when set they must match the batch.
type SlideSpec struct {
	TopicID     string
	ContentType ContentType
	Order       int
	Status      Status
	Payload     map[string]any
}

// BatchResult reports the outcome of UpsertSlideBatch. IDs follows the
// order in which slides were submitted.
type BatchResult struct {
	IDs      []string
	Inserted int
	Updated  int
	Deleted  int64
}

type preparedSlide struct {
	order    int
	explicit Status
	content  map[string]any
}

// UpsertSlideBatch makes a topic's top-level slides equal to specs. Each slide
// is written into its order slot, inserting or merging; slides beyond the
// batch's highest order are removed. Resubmitting the same batch is a no-op
// apart from updated_at. Attachments are left untouched.
func (s *Service) UpsertSlideBatch(ctx context.Context, topicID string, specs []SlideSpec) (BatchResult, error) {
	const op = "upsert_slide_batch"

	slides, err := s.prepareSlideBatch(op, topicID, specs)
	if err != nil {
		return BatchResult{}, err
	}
	if err := s.resolveTopic(op, topicID); err != nil {
		return BatchResult{}, err
	}

	now := s.now()
	var res BatchResult
	err = s.store.WithTransaction(ctx, func(ctx context.Context) error {
		res = BatchResult{IDs: make([]string, 0, len(slides))}

		existing, err := s.store.Find(ctx, Filter{
			TopicID: topicID,
			Types:   []ContentType{TypeSlide},
			Parent:  ParentNone,
		})
		if err != nil {
			return storeError(op, reasonOrderingConflict, err)
		}
		prior := make(map[int]Item, len(existing))
		for _, it := range existing {
			if it.Order != nil {
				prior[int(*it.Order)] = it
			}
		}

		maxOrder := 0
		for _, sl := range slides {
			merged := sl.content
			var priorStatus Status
			if old, ok := prior[sl.order]; ok {
				merged = old.Clone().Content
				for k, v := range sl.content {
					merged[k] = v
				}
				priorStatus = old.Status
			}

			r, err := s.store.FindOneAndUpsert(ctx,
				SlotKey{TopicID: topicID, Order: sl.order},
				Fields{
					Status:    DeriveStatus(merged, priorStatus, sl.explicit),
					Content:   sl.content,
					UpdatedAt: now,
				},
				InsertFields{ID: s.newID(), CreatedAt: now},
			)
			if err != nil {
				return storeError(op, reasonOrderingConflict, err)
			}
			if r.WasInserted {
				res.Inserted++
			} else {
				res.Updated++
			}
			res.IDs = append(res.IDs, r.ID)
			maxOrder = max(maxOrder, sl.order)
		}

		cut := float64(maxOrder)
		res.Deleted, err = s.store.DeleteMany(ctx, Filter{
			TopicID: topicID,
			Types:   []ContentType{TypeSlide},
			Parent:  ParentNone,
			OrderGT: &cut,
		})
		return storeError(op, reasonOrderingConflict, err)
	})
	if err != nil {
		return BatchResult{}, storeError(op, reasonOrderingConflict, err)
	}

	slog.Info("slide batch upserted",
		"topic_id", topicID,
		"slides", len(slides),
		"inserted", res.Inserted,
		"updated", res.Updated,
		"deleted", res.Deleted,
	)

	if err := s.usage.Add(ctx, topicID, res.Inserted); err != nil {
		slog.Warn("failed to record slide usage", "topic_id", topicID, "error", err)
	}
	s.logEvent(ctx, Event{
		TopicID:   topicID,
		EventType: EventSlideBatchUpserted,
		Data: map[string]any{
			"slides":   len(slides),
			"inserted": res.Inserted,
			"updated":  res.Updated,
		},
	})
	if res.Deleted > 0 {
		s.logEvent(ctx, Event{
			TopicID:   topicID,
			EventType: EventSlidesTruncated,
			Data:      map[string]any{"deleted": res.Deleted, "max_order": len(slides)},
		})
	}
	s.afterWrite(ctx, topicID, res.IDs...)
	return res, nil
}

// prepareSlideBatch rejects the whole batch before any write when a slide is
// malformed or the orders are not exactly 1..N.
func (s *Service) prepareSlideBatch(op, topicID string, specs []SlideSpec) ([]preparedSlide, error) {
	if len(specs) == 0 {
		return nil, validationError(op, "batch is empty")
	}
	if topicID == "" {
		return nil, validationError(op, "topic_id is required")
	}

	seen := make(map[int]int, len(specs))
	var dups []int
	out := make([]preparedSlide, 0, len(specs))
	for i, sp := range specs {
		if sp.TopicID != "" && sp.TopicID != topicID {
			return nil, validationError(op, "item %d: topic_id %q does not match batch topic %q", i, sp.TopicID, topicID)
		}
		if sp.ContentType != "" && sp.ContentType != TypeSlide {
			return nil, validationError(op, "item %d: content_type must be %s, got %s", i, TypeSlide, sp.ContentType)
		}
		if err := checkExplicitStatus(op, sp.Status); err != nil {
			return nil, withIndex(err, i)
		}
		seen[sp.Order]++
		if seen[sp.Order] == 2 {
			dups = append(dups, sp.Order)
		}

		payload := Normalize(sp.Payload)
		if !present(payload.Content, FieldFullText) {
			return nil, validationError(op, "item %d (order %d): %s is required", i, sp.Order, FieldFullText)
		}
		if err := s.validate(op, TypeSlide, payload.Content); err != nil {
			return nil, withIndex(err, i)
		}
		out = append(out, preparedSlide{order: sp.Order, explicit: sp.Status, content: payload.Content})
	}

	var problems []string
	if len(dups) > 0 {
		sort.Ints(dups)
		problems = append(problems, "duplicate orders "+joinInts(dups))
	}
	var missing []int
	for o := 1; o <= len(specs); o++ {
		if seen[o] == 0 {
			missing = append(missing, o)
		}
	}
	if len(missing) > 0 {
		problems = append(problems, "missing orders "+joinInts(missing))
	}
	var outside []int
	for o := range seen {
		if o < 1 || o > len(specs) {
			outside = append(outside, o)
		}
	}
	if len(outside) > 0 {
		sort.Ints(outside)
		problems = append(problems, "orders out of range "+joinInts(outside))
	}
	if len(problems) > 0 {
		return nil, validationError(op, "slide orders must be exactly 1..%d: %s", len(specs), strings.Join(problems, ", "))
	}
	return out, nil
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ",")
}
