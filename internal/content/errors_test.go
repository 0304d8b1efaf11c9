package content_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/p-n-ai/pai-content/internal/content"
)

func TestError_IsKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &content.Error{Kind: content.KindConflict, Op: "upsert", Reason: "ordering conflict"})

	if !errors.Is(err, content.ErrConflict) {
		t.Error("errors.Is(err, ErrConflict) = false, want true")
	}
	if errors.Is(err, content.ErrValidation) {
		t.Error("errors.Is(err, ErrValidation) = true, want false")
	}
	if got := content.Reason(err); got != "ordering conflict" {
		t.Errorf("Reason() = %q, want ordering conflict", got)
	}
}

func TestError_Retriable(t *testing.T) {
	tests := []struct {
		kind content.Kind
		want bool
	}{
		{content.KindValidation, false},
		{content.KindNotFound, false},
		{content.KindConflict, true},
		{content.KindStore, true},
	}
	for _, tt := range tests {
		e := &content.Error{Kind: tt.kind}
		if got := e.Retriable(); got != tt.want {
			t.Errorf("Retriable(%s) = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestReason_Unclassified(t *testing.T) {
	if got := content.Reason(errors.New("boom")); got != "internal error" {
		t.Errorf("Reason() = %q, want internal error", got)
	}
	if got := content.Reason(nil); got != "" {
		t.Errorf("Reason(nil) = %q, want empty", got)
	}
}
