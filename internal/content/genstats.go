package content

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
)

// StatsQuery selects the aggregate returned by GenerationStats.
type StatsQuery struct {
	TopicID            string
	IncludeAttachments bool
}

func (q StatsQuery) key() string {
	return fmt.Sprintf("%sattachments=%t", statsPrefix(q.TopicID), q.IncludeAttachments)
}

func statsPrefix(topicID string) string {
	return "gen_stats:" + topicID + ":"
}

// GenerationProgress summarises how far slide generation has come for a topic.
type GenerationProgress struct {
	TopicID         string         `json:"topic_id"`
	Total           int            `json:"total"`
	ByStatus        map[Status]int `json:"by_status"`
	Planned         int            `json:"planned"`
	PercentComplete float64        `json:"percent_complete"`
}

// GenerationStats returns slide counts per status for a topic, served from
// the stats cache while fresh.
func (s *Service) GenerationStats(ctx context.Context, q StatsQuery) (GenerationProgress, error) {
	const op = "generation_stats"

	if q.TopicID == "" {
		return GenerationProgress{}, validationError(op, "topic_id is required")
	}

	key := q.key()
	if b, ok, err := s.cache.Get(ctx, key); err != nil {
		slog.Warn("stats cache read failed", "key", key, "error", err)
	} else if ok {
		var p GenerationProgress
		if err := json.Unmarshal(b, &p); err == nil {
			return p, nil
		}
		slog.Warn("discarding undecodable stats cache entry", "key", key)
	}

	gen := s.statsGeneration(q.TopicID)

	f := Filter{TopicID: q.TopicID, Types: []ContentType{TypeSlide}, Parent: ParentNone}
	if q.IncludeAttachments {
		f = Filter{TopicID: q.TopicID, ExcludeTypes: EvaluationTypes}
	}
	items, err := s.store.Find(ctx, f)
	if err != nil {
		return GenerationProgress{}, storeError(op, "", err)
	}

	p := GenerationProgress{
		TopicID:  q.TopicID,
		Total:    len(items),
		ByStatus: map[Status]int{},
	}
	for _, it := range items {
		p.ByStatus[it.Status]++
	}
	if s.topics != nil {
		p.Planned = s.topics.PlannedSlides(q.TopicID)
	}
	if denom := max(p.Planned, p.Total); denom > 0 {
		pct := float64(p.ByStatus[StatusNarrativeReady]) / float64(denom) * 100
		p.PercentComplete = math.Round(pct*100) / 100
	}

	b, err := json.Marshal(p)
	if err != nil {
		return p, nil
	}
	s.storeStats(ctx, q.TopicID, gen, key, b)
	return p, nil
}

func (s *Service) statsGeneration(topicID string) uint64 {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.statsGen[topicID]
}

// storeStats caches a computed aggregate unless a write to the topic evicted
// the cache while it was being computed.
func (s *Service) storeStats(ctx context.Context, topicID string, gen uint64, key string, value []byte) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	if s.statsGen[topicID] != gen {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.statsTTL); err != nil {
		slog.Warn("stats cache write failed", "key", key, "error", err)
	}
}

// invalidateStats bumps the topic's generation before evicting, so a
// computation that read the old state cannot store it afterwards.
func (s *Service) invalidateStats(ctx context.Context, topicID string) {
	s.statsMu.Lock()
	s.statsGen[topicID]++
	s.statsMu.Unlock()

	if err := s.cache.Invalidate(ctx, statsPrefix(topicID)); err != nil {
		slog.Warn("stats cache invalidation failed", "topic_id", topicID, "error", err)
	}
}
