// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNew(t *testing.T) {
	cause := errors.New("connection refused")
	ae := New(CodeStoreError, "plan save failed", cause)

	if ae.Code != CodeStoreError {
		t.Errorf("expected CodeStoreError, got %v", ae.Code)
	}
	if ae.Message != "plan save failed" {
		t.Errorf("expected message 'plan save failed', got %q", ae.Message)
	}
	if ae.Err != cause {
		t.Errorf("expected cause to be preserved")
	}
	if !errors.Is(ae, cause) {
		t.Errorf("expected errors.Is to work with wrapped error")
	}
}

func TestWithContext(t *testing.T) {
	ae := New(CodePlanGeneration, "empty decomposition", nil)
	ae.WithContext("agent_id", "agent-1").
		WithContext("snapshot_messages", 4)

	if ae.Context["agent_id"] != "agent-1" {
		t.Errorf("expected context agent_id to be 'agent-1'")
	}
	if ae.Context["snapshot_messages"] != 4 {
		t.Errorf("expected context snapshot_messages to be set")
	}
}

func TestWithRecoverable(t *testing.T) {
	ae := New(CodeTimeout, "planning cycle timed out", nil)
	if ae.Recoverable {
		t.Errorf("expected recoverable to be false by default")
	}

	ae.WithRecoverable(true)
	if !ae.Recoverable {
		t.Errorf("expected recoverable to be true after WithRecoverable")
	}
}

func TestError(t *testing.T) {
	tests := []struct {
		name     string
		ae       *AgentError
		expected string
	}{
		{
			name:     "with cause",
			ae:       New(CodeTimeout, "operation timed out", errors.New("deadline exceeded")),
			expected: "[TIMEOUT] operation timed out: deadline exceeded",
		},
		{
			name:     "without cause",
			ae:       New(CodeInvalidInput, "plan is required", nil),
			expected: "[INVALID_INPUT] plan is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ae.Error(); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestAsAgentError(t *testing.T) {
	ae := New(CodeNotFound, "no current plan", nil)
	if got := AsAgentError(ae); got != ae {
		t.Errorf("expected same AgentError back")
	}

	plain := errors.New("boom")
	wrapped := AsAgentError(plain)
	if wrapped.Code != CodeInternal {
		t.Errorf("expected plain error wrapped as CodeInternal, got %v", wrapped.Code)
	}
	if !errors.Is(wrapped, plain) {
		t.Errorf("expected cause chain to be preserved")
	}

	if AsAgentError(nil) != nil {
		t.Errorf("expected nil for nil error")
	}
}

func TestHasCode(t *testing.T) {
	ae := New(CodeInvalidInput, "plan is required", nil)
	if !HasCode(ae, CodeInvalidInput) {
		t.Errorf("expected HasCode to match")
	}
	if HasCode(ae, CodeInternal) {
		t.Errorf("expected HasCode to reject other codes")
	}
	if HasCode(errors.New("plain"), CodeInternal) {
		t.Errorf("expected HasCode to reject plain errors")
	}
}

func TestMarshalJSON(t *testing.T) {
	ae := New(CodeMemoryError, "append failed", errors.New("disk full")).
		WithRecoverable(true)

	data, err := json.Marshal(ae)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["code"] != "MEMORY_ERROR" {
		t.Errorf("expected code MEMORY_ERROR, got %v", decoded["code"])
	}
	if decoded["recoverable"] != true {
		t.Errorf("expected recoverable true")
	}
}
