package curriculum_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/p-n-ai/pai-content/internal/curriculum"
)

func TestCatalog_LoadTopics(t *testing.T) {
	dir := setupTestCurriculum(t)

	catalog, err := curriculum.NewCatalog(dir)
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}

	topics := catalog.AllTopics()
	if len(topics) != 2 {
		t.Fatalf("AllTopics() = %d topics, want 2", len(topics))
	}
	if topics[0].ID != "F1-01" || topics[1].ID != "F1-02" {
		t.Errorf("AllTopics() order = %s,%s, want F1-01,F1-02", topics[0].ID, topics[1].ID)
	}
}

func TestCatalog_TopicExists(t *testing.T) {
	catalog, err := curriculum.NewCatalog(setupTestCurriculum(t))
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}

	if !catalog.TopicExists("F1-01") {
		t.Error("TopicExists(F1-01) = false, want true")
	}
	if catalog.TopicExists("NONEXISTENT") {
		t.Error("TopicExists(NONEXISTENT) = true, want false")
	}
}

func TestCatalog_PlannedSlides(t *testing.T) {
	catalog, err := curriculum.NewCatalog(setupTestCurriculum(t))
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}

	tests := []struct {
		id   string
		want int
	}{
		{"F1-01", 6},
		{"F1-02", 2},
		{"NONEXISTENT", 0},
	}
	for _, tt := range tests {
		if got := catalog.PlannedSlides(tt.id); got != tt.want {
			t.Errorf("PlannedSlides(%s) = %d, want %d", tt.id, got, tt.want)
		}
	}
}

func TestCatalog_SkipsNonTopicYAML(t *testing.T) {
	dir := setupTestCurriculum(t)

	topicsDir := filepath.Join(dir, "curricula", "malaysia", "kssm", "topics", "algebra")
	os.WriteFile(filepath.Join(topicsDir, "01-variables.assessments.yaml"), []byte(`
id: F1-01-assessments
questions:
  - id: Q1
    text: "What is 3x when x=2?"
`), 0o644)
	os.WriteFile(filepath.Join(topicsDir, "broken.yaml"), []byte("id: [unterminated"), 0o644)

	catalog, err := curriculum.NewCatalog(dir)
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}
	if got := len(catalog.AllTopics()); got != 2 {
		t.Errorf("AllTopics() = %d topics, want 2", got)
	}
}

func TestCatalog_EmptyDir(t *testing.T) {
	catalog, err := curriculum.NewCatalog(t.TempDir())
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}
	if got := len(catalog.AllTopics()); got != 0 {
		t.Errorf("AllTopics() = %d, want 0 for empty dir", got)
	}
}

func setupTestCurriculum(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	topicsDir := filepath.Join(dir, "curricula", "malaysia", "kssm", "topics", "algebra")
	os.MkdirAll(topicsDir, 0o755)

	os.WriteFile(filepath.Join(topicsDir, "01-variables.yaml"), []byte(`
id: F1-01
name: "Variables & Algebraic Expressions"
subject_id: algebra
syllabus_id: malaysia-kssm-matematik-tingkatan1
learning_objectives:
  - id: LO1
    text: "Use letters to represent unknown quantities"
planned_slides: 6
outline:
  - title: "Mystery numbers"
`), 0o644)

	os.WriteFile(filepath.Join(topicsDir, "02-expressions.yml"), []byte(`
id: F1-02
name: "Algebraic Expressions"
subject_id: algebra
outline:
  - title: "Terms"
    full_text: "A term is a number, a variable, or their product."
  - title: "Like terms"
`), 0o644)

	return dir
}
