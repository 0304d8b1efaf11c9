package content

import (
	"reflect"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestMongoFilter(t *testing.T) {
	gt := 3.0
	tests := []struct {
		name string
		f    Filter
		want bson.M
	}{
		{
			name: "active by default",
			f:    Filter{TopicID: "F1-01"},
			want: bson.M{"active": true, "topic_id": "F1-01"},
		},
		{
			name: "top-level slides past an order",
			f: Filter{
				TopicID: "F1-01",
				Types:   []ContentType{TypeSlide},
				Parent:  ParentNone,
				OrderGT: &gt,
			},
			want: bson.M{
				"active":            true,
				"topic_id":          "F1-01",
				"content_type":      bson.M{"$in": []string{"slide"}},
				"order":             bson.M{"$gt": 3.0},
				"parent_content_id": nil,
			},
		},
		{
			name: "attachments without evaluations",
			f: Filter{
				TopicID:         "F1-01",
				ExcludeTypes:    EvaluationTypes,
				Parent:          ParentSet,
				IncludeInactive: true,
			},
			want: bson.M{
				"topic_id":          "F1-01",
				"content_type":      bson.M{"$nin": []string{"quiz", "exam", "project", "assignment"}},
				"parent_content_id": bson.M{"$ne": nil},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mongoFilter(tt.f); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("mongoFilter() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFromBSON(t *testing.T) {
	in := bson.D{
		{Key: "full_text", Value: "x"},
		{Key: "count", Value: int32(2)},
		{Key: "tags", Value: bson.A{"a", int64(3)}},
		{Key: "meta", Value: bson.M{"k": bson.D{{Key: "n", Value: int32(1)}}}},
	}
	want := map[string]any{
		"full_text": "x",
		"count":     2.0,
		"tags":      []any{"a", 3.0},
		"meta":      map[string]any{"k": map[string]any{"n": 1.0}},
	}
	if got := fromBSON(in); !reflect.DeepEqual(got, want) {
		t.Errorf("fromBSON() = %v, want %v", got, want)
	}
}

func TestNewMongoItem_IndexFlags(t *testing.T) {
	tests := []struct {
		name         string
		item         Item
		wantActive   bool
		wantTopLevel bool
	}{
		{"active slide", Item{ID: "a", ContentType: TypeSlide, Status: StatusDraft}, true, true},
		{"deleted slide", Item{ID: "b", ContentType: TypeSlide, Status: StatusDeleted}, false, true},
		{"attachment", Item{ID: "c", ContentType: TypeImage, ParentContentID: "a", Status: StatusActive}, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newMongoItem(tt.item)
			if d.Active != tt.wantActive || d.TopLevel != tt.wantTopLevel {
				t.Errorf("active=%v top_level=%v, want %v/%v", d.Active, d.TopLevel, tt.wantActive, tt.wantTopLevel)
			}
			if back := d.toItem(); back.ID != tt.item.ID || back.ParentContentID != tt.item.ParentContentID {
				t.Errorf("toItem() = %+v, want round trip of %+v", back, tt.item)
			}
		})
	}
}

func TestEventDoc(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	doc := eventDoc(Event{
		TopicID:   "F1-01",
		EventType: EventQuizReplaced,
		Data:      map[string]any{"replaced": int64(1)},
		CreatedAt: at,
	})

	if doc["topic_id"] != "F1-01" || doc["event_type"] != EventQuizReplaced {
		t.Errorf("eventDoc() = %v", doc)
	}
	if _, ok := doc["content_id"]; ok {
		t.Error("content_id set for an event without content")
	}
	if doc["created_at"] != at {
		t.Errorf("created_at = %v, want %v", doc["created_at"], at)
	}
	if data := doc["data"].(bson.M); data["replaced"] != int64(1) {
		t.Errorf("data = %v", data)
	}
}

func TestMongoEventLogger_RequiresTopic(t *testing.T) {
	l := &MongoEventLogger{}
	if err := l.LogEvent(t.Context(), Event{EventType: EventQuizReplaced}); err == nil {
		t.Error("LogEvent() error = nil, want error for nil collection")
	}
	if err := checkEvent(Event{EventType: EventQuizReplaced}, true); err == nil {
		t.Error("checkEvent() error = nil, want error for missing topic_id")
	}
}
