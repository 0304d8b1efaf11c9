package tasks

import (
	"context"
	"log/slog"
)

// LearningStyleRefresher recomputes the learning-style statistics derived
// from a topic's content.
type LearningStyleRefresher interface {
	RefreshLearningStyle(ctx context.Context, topicID, contentID string) error
}

// EvaluationRecomputer recomputes evaluations that depend on a content item.
type EvaluationRecomputer interface {
	RecomputeEvaluations(ctx context.Context, topicID, contentID string) error
}

// Collaborators are the services notified after content is persisted.
// Nil fields fall back to Nop.
type Collaborators struct {
	LearningStyles LearningStyleRefresher
	Evaluations    EvaluationRecomputer
}

// Nop satisfies every collaborator and does nothing.
type Nop struct{}

func (Nop) RefreshLearningStyle(context.Context, string, string) error { return nil }

func (Nop) RecomputeEvaluations(context.Context, string, string) error { return nil }

// RegisterCollaborators binds the post-write task kinds to c.
func (p *Pool) RegisterCollaborators(c Collaborators) {
	ls := c.LearningStyles
	if ls == nil {
		slog.Info("no learning-style refresher configured")
		ls = Nop{}
	}
	ev := c.Evaluations
	if ev == nil {
		slog.Info("no evaluation recomputer configured")
		ev = Nop{}
	}

	p.Register(KindLearningStyleRefresh, func(ctx context.Context, t Task) error {
		return ls.RefreshLearningStyle(ctx, t.TopicID, t.ContentID)
	})
	p.Register(KindEvaluationRecompute, func(ctx context.Context, t Task) error {
		return ev.RecomputeEvaluations(ctx, t.TopicID, t.ContentID)
	})
}
