package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/p-n-ai/pai-content/internal/platform/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.LogConfig
		wantDebug bool
		wantJSON  bool
	}{
		{"debug text", config.LogConfig{Level: "debug", Format: "text"}, true, false},
		{"warn json", config.LogConfig{Level: "warn", Format: "json"}, false, true},
		{"invalid level falls back to info", config.LogConfig{Level: "bogus"}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := New(&buf, tt.cfg)
			if got := l.Enabled(context.Background(), slog.LevelDebug); got != tt.wantDebug {
				t.Errorf("debug enabled = %v, want %v", got, tt.wantDebug)
			}
			l.Error("export failed", "topic_id", "F1-01")
			if got := strings.HasPrefix(buf.String(), "{"); got != tt.wantJSON {
				t.Errorf("output %q, want json = %v", buf.String(), tt.wantJSON)
			}
		})
	}
}
