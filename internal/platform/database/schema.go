package database

import (
	"context"
	"fmt"
)

// schema creates the content tables. Each statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS content_items (
		id                text PRIMARY KEY,
		topic_id          text NOT NULL,
		content_type      text NOT NULL,
		order_num         double precision,
		parent_content_id text,
		status            text NOT NULL,
		content           jsonb NOT NULL DEFAULT '{}'::jsonb,
		created_at        timestamptz NOT NULL DEFAULT now(),
		updated_at        timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS content_items_slide_slot_key
		ON content_items (topic_id, content_type, order_num)
		WHERE content_type = 'slide' AND parent_content_id IS NULL AND status NOT IN ('deleted', 'migrated')`,
	`CREATE UNIQUE INDEX IF NOT EXISTS content_items_quiz_key
		ON content_items (topic_id)
		WHERE content_type = 'quiz' AND status NOT IN ('deleted', 'migrated')`,
	`CREATE INDEX IF NOT EXISTS content_items_topic_parent_idx
		ON content_items (topic_id, parent_content_id)`,
	`CREATE TABLE IF NOT EXISTS content_events (
		id         bigserial PRIMARY KEY,
		topic_id   text NOT NULL,
		content_id text,
		event_type text NOT NULL,
		data       jsonb NOT NULL DEFAULT '{}'::jsonb,
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS content_events_topic_idx
		ON content_events (topic_id, created_at)`,
}

// Migrate applies the content schema.
func (db *DB) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d: %w", i+1, err)
		}
	}
	return nil
}
