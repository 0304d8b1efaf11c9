package content

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Role is an item's position kind within an assembled sequence.
type Role string

const (
	RoleSlide      Role = "slide"
	RoleAttachment Role = "attachment"
	RoleEvaluation Role = "evaluation"
)

// MaxAttachmentsPerSlide is the number of attachments that fit between two
// consecutive slides with two-decimal display orders. Past it, display
// orders are spread evenly over the interval instead.
const MaxAttachmentsPerSlide = 99

// View is an item as presented in a topic's sequence.
type View struct {
	Item         Item    `json:"item"`
	Role         Role    `json:"role"`
	DisplayOrder float64 `json:"display_order"`
}

// IntegrityReport lists the ordering defects found in a topic. An empty
// report is OK.
type IntegrityReport struct {
	TopicID    string   `json:"topic_id"`
	OK         bool     `json:"ok"`
	Violations []string `json:"violations"`
}

// BuildSequence returns the ordered learner-facing sequence of a topic:
// top-level slides by order, each followed by its attachments, then the
// topic's evaluations.
func (s *Service) BuildSequence(ctx context.Context, topicID string) ([]View, error) {
	const op = "build_sequence"

	if topicID == "" {
		return nil, validationError(op, "topic_id is required")
	}

	var slides, attachments, evaluations []Item
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		slides, err = s.store.Find(gctx, Filter{TopicID: topicID, Types: []ContentType{TypeSlide}, Parent: ParentNone})
		return err
	})
	g.Go(func() error {
		var err error
		attachments, err = s.store.Find(gctx, Filter{TopicID: topicID, Parent: ParentSet, ExcludeTypes: EvaluationTypes})
		return err
	})
	g.Go(func() error {
		var err error
		evaluations, err = s.store.Find(gctx, Filter{TopicID: topicID, Types: EvaluationTypes, Parent: ParentNone})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, storeError(op, "", err)
	}

	return AssembleSequence(slides, attachments, evaluations), nil
}

// AssembleSequence orders already-loaded items. The result depends only on
// the items, not on the order they are passed in. Attachments whose parent is
// not among slides are left out.
func AssembleSequence(slides, attachments, evaluations []Item) []View {
	slides = sortedCopy(slides)
	evaluations = sortedCopy(evaluations)

	byParent := make(map[string][]Item)
	for _, a := range attachments {
		byParent[a.ParentContentID] = append(byParent[a.ParentContentID], a)
	}

	out := make([]View, 0, len(slides)+len(attachments)+len(evaluations))
	for _, sl := range slides {
		base := orderOf(sl)
		out = append(out, View{Item: sl, Role: RoleSlide, DisplayOrder: base})

		atts := sortedCopy(byParent[sl.ID])
		for i, a := range atts {
			out = append(out, View{
				Item:         a,
				Role:         RoleAttachment,
				DisplayOrder: attachmentOrder(base, i, len(atts)),
			})
		}
	}
	for _, ev := range evaluations {
		out = append(out, View{Item: ev, Role: RoleEvaluation, DisplayOrder: orderOf(ev)})
	}
	return out
}

// attachmentOrder places the i-th of n attachments strictly between the
// parent slide's order and the next integer.
func attachmentOrder(base float64, i, n int) float64 {
	if n <= MaxAttachmentsPerSlide {
		return (base*100 + float64(i+1)) / 100
	}
	step := float64(n + 1)
	return (base*step + float64(i+1)) / step
}

// ValidateSequenceIntegrity reports gaps, duplicates, non-integer and missing
// slide orders, and attachments whose parent slide is gone.
func (s *Service) ValidateSequenceIntegrity(ctx context.Context, topicID string) (IntegrityReport, error) {
	const op = "validate_sequence_integrity"

	if topicID == "" {
		return IntegrityReport{}, validationError(op, "topic_id is required")
	}

	var slides, attachments []Item
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		slides, err = s.store.Find(gctx, Filter{TopicID: topicID, Types: []ContentType{TypeSlide}, Parent: ParentNone})
		return err
	})
	g.Go(func() error {
		var err error
		attachments, err = s.store.Find(gctx, Filter{TopicID: topicID, Parent: ParentSet})
		return err
	})
	if err := g.Wait(); err != nil {
		return IntegrityReport{}, storeError(op, "", err)
	}

	report := CheckIntegrity(slides, attachments)
	report.TopicID = topicID
	if !report.OK {
		slog.Warn("sequence integrity violations",
			"topic_id", topicID,
			"count", len(report.Violations),
		)
	}
	return report, nil
}

// CheckIntegrity inspects top-level slides and attachments of one topic.
func CheckIntegrity(slides, attachments []Item) IntegrityReport {
	slides = sortedCopy(slides)
	attachments = sortedCopy(attachments)

	violations := []string{}
	ids := make(map[string]bool, len(slides))
	counts := map[int]int{}
	maxOrder := 0
	for _, sl := range slides {
		ids[sl.ID] = true
		if sl.Order == nil {
			violations = append(violations, fmt.Sprintf("slide %s has no order", sl.ID))
			continue
		}
		o := *sl.Order
		if o != math.Trunc(o) {
			violations = append(violations, fmt.Sprintf("slide %s has non-integer order %v", sl.ID, o))
			continue
		}
		if o < 1 {
			violations = append(violations, fmt.Sprintf("slide %s has order %v below 1", sl.ID, o))
			continue
		}
		n := int(o)
		counts[n]++
		maxOrder = max(maxOrder, n)
	}

	orders := make([]int, 0, len(counts))
	for o := range counts {
		orders = append(orders, o)
	}
	sort.Ints(orders)
	for _, o := range orders {
		if counts[o] > 1 {
			violations = append(violations, fmt.Sprintf("duplicate slide order %d (%d slides)", o, counts[o]))
		}
	}
	for o := 1; o <= maxOrder; o++ {
		if counts[o] == 0 {
			violations = append(violations, fmt.Sprintf("gap in slide orders: %d missing", o))
		}
	}

	for _, a := range attachments {
		if !ids[a.ParentContentID] {
			violations = append(violations, fmt.Sprintf("attachment %s references missing parent %s", a.ID, a.ParentContentID))
		}
	}

	return IntegrityReport{OK: len(violations) == 0, Violations: violations}
}

func sortedCopy(items []Item) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	sortItems(out)
	return out
}

func orderOf(it Item) float64 {
	if it.Order == nil {
		return 0
	}
	return *it.Order
}
