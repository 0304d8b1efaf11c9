package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/p-n-ai/pai-content/internal/content"
	"github.com/p-n-ai/pai-content/internal/platform/config"
	"github.com/p-n-ai/pai-content/internal/tasks"
)

func TestHealthEndpoints(t *testing.T) {
	healthy := map[string]healthCheck{
		"database": func(context.Context) error { return nil },
	}
	failing := map[string]healthCheck{
		"database": func(context.Context) error { return nil },
		"cache":    func(context.Context) error { return errors.New("connection refused") },
	}

	tests := []struct {
		name       string
		checks     map[string]healthCheck
		path       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "healthz returns 200",
			checks:     failing,
			path:       "/healthz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ok"}`,
		},
		{
			name:       "readyz returns 200",
			checks:     healthy,
			path:       "/readyz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ready"}`,
		},
		{
			name:       "readyz reports failing dependency",
			checks:     failing,
			path:       "/readyz",
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   `"cache":"connection refused"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newMux(tt.checks)
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()

			mux.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %q, want it to contain %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestNewApp_MemoryStore(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "topic.yaml"), []byte("id: F1-01\nname: Variables\nplanned_slides: 3\n"), 0o644)

	cfg := &config.Config{
		Store:          config.StoreConfig{Driver: config.StoreMemory},
		Cache:          config.CacheConfig{Driver: config.CacheMemory},
		Tasks:          config.TasksConfig{Workers: 1, QueueSize: 16},
		CurriculumPath: dir,
	}
	collab := &recordingCollaborators{}
	a, err := newApp(t.Context(), cfg, tasks.Collaborators{LearningStyles: collab, Evaluations: collab})
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer a.Close()

	_, err = a.svc.UpsertSlideBatch(t.Context(), "F1-01", []content.SlideSpec{
		{Order: 1, Payload: map[string]any{"full_text": "one"}},
		{Order: 2, Payload: map[string]any{"full_text": "two"}},
	})
	if err != nil {
		t.Fatalf("UpsertSlideBatch() error = %v", err)
	}

	_, err = a.svc.UpsertSlideBatch(t.Context(), "UNKNOWN", []content.SlideSpec{
		{Order: 1, Payload: map[string]any{"full_text": "one"}},
	})
	if !errors.Is(err, content.ErrNotFound) {
		t.Errorf("UpsertSlideBatch(unknown topic) error = %v, want ErrNotFound", err)
	}

	a.sweepIntegrity(t.Context())

	// Close drains the task queue.
	a.Close()
	collab.mu.Lock()
	defer collab.mu.Unlock()
	if collab.styles != 2 || collab.evaluations != 2 {
		t.Errorf("collaborator calls styles=%d evaluations=%d, want 2/2", collab.styles, collab.evaluations)
	}
}

type recordingCollaborators struct {
	mu          sync.Mutex
	styles      int
	evaluations int
}

func (r *recordingCollaborators) RefreshLearningStyle(context.Context, string, string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.styles++
	return nil
}

func (r *recordingCollaborators) RecomputeEvaluations(context.Context, string, string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evaluations++
	return nil
}
