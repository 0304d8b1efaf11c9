package curriculum

// Topic is a curriculum topic loaded from YAML. Content items reference it by ID.
type Topic struct {
	ID                 string              `yaml:"id"`
	Name               string              `yaml:"name"`
	SubjectID          string              `yaml:"subject_id"`
	SyllabusID         string              `yaml:"syllabus_id"`
	LearningObjectives []LearningObjective `yaml:"learning_objectives"`
	PlannedSlides      int                 `yaml:"planned_slides"`
	Outline            []OutlineEntry      `yaml:"outline"`
}

// LearningObjective is a learning objective within a topic.
type LearningObjective struct {
	ID   string `yaml:"id"`
	Text string `yaml:"text"`
}

// OutlineEntry is one planned slide of a topic.
type OutlineEntry struct {
	Title    string `yaml:"title"`
	FullText string `yaml:"full_text"`
}

// SlideCount returns the number of slides planned for the topic. An explicit
// planned_slides value wins over the outline length.
func (t Topic) SlideCount() int {
	if t.PlannedSlides > 0 {
		return t.PlannedSlides
	}
	return len(t.Outline)
}
