// Package content implements the content persistence and sequencing engine:
// the content item model, payload normalization, slide status derivation,
// idempotent slide batches, the per-topic quiz singleton and the structured
// learning sequence.
package content

import "time"

// ContentType tags what kind of content an item holds.
type ContentType string

const (
	TypeSlide      ContentType = "slide"
	TypeQuiz       ContentType = "quiz"
	TypeExam       ContentType = "exam"
	TypeProject    ContentType = "project"
	TypeAssignment ContentType = "assignment"
	TypeText       ContentType = "text"
	TypeVideo      ContentType = "video"
	TypeExercise   ContentType = "exercise"
	TypeImage      ContentType = "image"
)

var knownTypes = map[ContentType]bool{
	TypeSlide:      true,
	TypeQuiz:       true,
	TypeExam:       true,
	TypeProject:    true,
	TypeAssignment: true,
	TypeText:       true,
	TypeVideo:      true,
	TypeExercise:   true,
	TypeImage:      true,
}

// EvaluationTypes are the content types appended after all slides in a sequence.
var EvaluationTypes = []ContentType{TypeQuiz, TypeExam, TypeProject, TypeAssignment}

// Valid reports whether t belongs to the closed set of content types.
func (t ContentType) Valid() bool {
	return knownTypes[t]
}

// IsEvaluation reports whether t is an evaluation-class type.
func (t ContentType) IsEvaluation() bool {
	for _, e := range EvaluationTypes {
		if t == e {
			return true
		}
	}
	return false
}

// Status is the lifecycle status of a content item.
type Status string

const (
	StatusDraft          Status = "draft"
	StatusSkeleton       Status = "skeleton"
	StatusHTMLReady      Status = "html_ready"
	StatusNarrativeReady Status = "narrative_ready"
	StatusActive         Status = "active"
	StatusDeleted        Status = "deleted"
	StatusMigrated       Status = "migrated"
)

var knownStatuses = map[Status]bool{
	StatusDraft:          true,
	StatusSkeleton:       true,
	StatusHTMLReady:      true,
	StatusNarrativeReady: true,
	StatusActive:         true,
	StatusDeleted:        true,
	StatusMigrated:       true,
}

// Valid reports whether s belongs to the closed set of statuses.
func (s Status) Valid() bool {
	return knownStatuses[s]
}

// InactiveStatuses take an item out of every uniqueness scope and every sequence read.
var InactiveStatuses = []Status{StatusDeleted, StatusMigrated}

// Active reports whether s counts as a non-deleted state.
func (s Status) Active() bool {
	for _, in := range InactiveStatuses {
		if s == in {
			return false
		}
	}
	return true
}

// Canonical slide fields, stored under the item's content map.
const (
	FieldFullText      = "full_text"
	FieldSlidePlan     = "slide_plan"
	FieldContentHTML   = "content_html"
	FieldNarrativeText = "narrative_text"
)

// SlideFields lists the slide-specific fields that must live under content.
var SlideFields = []string{FieldFullText, FieldSlidePlan, FieldContentHTML, FieldNarrativeText}

// Item is a stored unit of educational content.
type Item struct {
	ID              string         `json:"id"`
	TopicID         string         `json:"topic_id"`
	ContentType     ContentType    `json:"content_type"`
	Order           *float64       `json:"order,omitempty"`
	ParentContentID string         `json:"parent_content_id,omitempty"`
	Status          Status         `json:"status"`
	Content         map[string]any `json:"content"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// IsAttachment reports whether the item is anchored to a parent slide.
func (it Item) IsAttachment() bool {
	return it.ParentContentID != ""
}

// Text returns the string value of a content field, or "" when absent.
func (it Item) Text(field string) string {
	s, _ := it.Content[field].(string)
	return s
}

// Clone returns a copy whose content map can be mutated independently.
func (it Item) Clone() Item {
	out := it
	if it.Order != nil {
		o := *it.Order
		out.Order = &o
	}
	out.Content = cloneMap(it.Content)
	return out
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// OrderPtr is a convenience for building items with a numeric order.
func OrderPtr(v float64) *float64 {
	return &v
}
