// Package curriculum loads the topic catalog that content items belong to.
package curriculum

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Catalog holds the topics loaded from a curriculum directory.
type Catalog struct {
	rootDir string
	topics  map[string]Topic
	mu      sync.RWMutex
}

// NewCatalog walks rootDir and loads every topic YAML file.
func NewCatalog(rootDir string) (*Catalog, error) {
	c := &Catalog{
		rootDir: rootDir,
		topics:  make(map[string]Topic),
	}

	if err := c.loadAll(); err != nil {
		return nil, fmt.Errorf("loading curriculum: %w", err)
	}

	slog.Info("curriculum loaded", "topics", len(c.topics))
	return c, nil
}

// GetTopic returns a topic by ID.
func (c *Catalog) GetTopic(id string) (Topic, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.topics[id]
	return t, ok
}

// TopicExists reports whether id names a loaded topic.
func (c *Catalog) TopicExists(id string) bool {
	_, ok := c.GetTopic(id)
	return ok
}

// PlannedSlides returns the planned slide count of a topic, or 0 if unknown.
func (c *Catalog) PlannedSlides(id string) int {
	t, ok := c.GetTopic(id)
	if !ok {
		return 0
	}
	return t.SlideCount()
}

// AllTopics returns all loaded topics sorted by ID.
func (c *Catalog) AllTopics() []Topic {
	c.mu.RLock()
	defer c.mu.RUnlock()
	topics := make([]Topic, 0, len(c.topics))
	for _, t := range c.topics {
		topics = append(topics, t)
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i].ID < topics[j].ID })
	return topics
}

func (c *Catalog) loadAll() error {
	return filepath.WalkDir(c.rootDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".yaml") && !strings.HasSuffix(path, ".yml") {
			return nil
		}
		if strings.HasSuffix(path, ".assessments.yaml") || strings.HasSuffix(path, ".examples.yaml") {
			return nil
		}
		return c.loadTopic(path)
	})
}

func (c *Catalog) loadTopic(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var topic Topic
	if err := yaml.Unmarshal(data, &topic); err != nil {
		slog.Warn("skipping invalid topic YAML", "path", path, "error", err)
		return nil
	}
	if topic.ID == "" {
		return nil
	}

	c.mu.Lock()
	if _, dup := c.topics[topic.ID]; dup {
		slog.Warn("duplicate topic id, keeping last", "id", topic.ID, "path", path)
	}
	c.topics[topic.ID] = topic
	c.mu.Unlock()

	return nil
}
