package engine_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/pmccbot/position-engine/internal/engine"
)

func TestPredicatesClassifyExactly(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name       string
		err        error
		validation bool
		notFound   bool
		upstream   bool
		storage    bool
	}{
		{"validation", engine.Validationf("strike", "must be positive"), true, false, false, false},
		{"not found", engine.NotFound("short call", "abc"), false, true, false, false},
		{"upstream", engine.Upstream("quote SPY", cause), false, false, true, false},
		{"storage", engine.Storage("create leaps", cause), false, false, false, true},
		{"plain error", cause, false, false, false, false},
		{"nil", nil, false, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := engine.IsValidation(tt.err); got != tt.validation {
				t.Errorf("IsValidation = %v, want %v", got, tt.validation)
			}
			if got := engine.IsNotFound(tt.err); got != tt.notFound {
				t.Errorf("IsNotFound = %v, want %v", got, tt.notFound)
			}
			if got := engine.IsUpstream(tt.err); got != tt.upstream {
				t.Errorf("IsUpstream = %v, want %v", got, tt.upstream)
			}
			if got := engine.IsStorage(tt.err); got != tt.storage {
				t.Errorf("IsStorage = %v, want %v", got, tt.storage)
			}
		})
	}
}

func TestClassificationSurvivesWrapping(t *testing.T) {
	wrapped := fmt.Errorf("evaluate position: %w", engine.Upstream("quote SPY", errors.New("timeout")))
	if !engine.IsUpstream(wrapped) {
		t.Error("wrapped UpstreamError no longer classified as upstream")
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("connection refused")
	if !errors.Is(engine.Upstream("quote", cause), cause) {
		t.Error("UpstreamError should unwrap to its cause")
	}
	if !errors.Is(engine.Storage("insert", cause), cause) {
		t.Error("StorageError should unwrap to its cause")
	}
}

func TestMessages(t *testing.T) {
	if got := engine.Validationf("strike", "must be positive, got %s", "-1").Error(); got != "validation: strike: must be positive, got -1" {
		t.Errorf("validation message = %q", got)
	}
	if got := engine.NotFound("leaps position", "abc").Error(); got != "leaps position abc not found" {
		t.Errorf("not-found message = %q", got)
	}
}
