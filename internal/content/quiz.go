package content

import (
	"context"
	"log/slog"
)

// replaceQuiz removes every quiz of the item's topic and inserts item in its
// place. Inside a batch, cleared records topics whose old quizzes are already
// gone so a topic is cleared at most once. It returns the number of quizzes removed.
func (s *Service) replaceQuiz(ctx context.Context, op string, item Item, cleared map[string]bool) (int64, error) {
	var removed int64
	if !cleared[item.TopicID] {
		n, err := s.store.DeleteMany(ctx, Filter{
			TopicID:         item.TopicID,
			Types:           []ContentType{TypeQuiz},
			IncludeInactive: true,
		})
		if err != nil {
			return 0, storeError(op, reasonQuizExists, err)
		}
		removed = n
		if cleared != nil {
			cleared[item.TopicID] = true
		}
	}

	if _, err := s.store.InsertOne(ctx, item); err != nil {
		return 0, storeError(op, reasonQuizExists, err)
	}
	return removed, nil
}

// lastWinsQuizzes returns the indices of quiz requests superseded by a later
// quiz for the same topic in the same batch.
func lastWinsQuizzes(reqs []CreateRequest) []int {
	last := map[string]int{}
	for i, r := range reqs {
		if r.ContentType == TypeQuiz {
			last[r.TopicID] = i
		}
	}

	var dropped []int
	for i, r := range reqs {
		if r.ContentType != TypeQuiz || last[r.TopicID] == i {
			continue
		}
		dropped = append(dropped, i)
		slog.Info("quiz replaced in batch",
			"topic_id", r.TopicID,
			"dropped_index", i,
			"kept_index", last[r.TopicID],
		)
	}
	return dropped
}
