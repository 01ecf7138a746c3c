package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestState_CanStart(t *testing.T) {
	tests := []struct {
		state  State
		start  bool
		active bool
	}{
		{StateIdle, true, false},
		{StateStarting, false, true},
		{StateHosting, false, true},
		{StateJoining, false, true},
		{StateConnected, false, true},
		{StateFailed, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			if got := tt.state.CanStart(); got != tt.start {
				t.Errorf("CanStart() = %v, want %v", got, tt.start)
			}
			if got := tt.state.IsActive(); got != tt.active {
				t.Errorf("IsActive() = %v, want %v", got, tt.active)
			}
		})
	}
}

func TestSnapshot_JSON(t *testing.T) {
	in := Snapshot{State: StateConnected, Role: RoleJoiner, ConnectedPeer: "p1", ConnectedPeerCount: 1}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if raw["state"] != "Connected" || raw["role"] != "Joiner" {
		t.Errorf("JSON = %s", data)
	}

	var out Snapshot
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if out.State != StateConnected || out.Role != RoleJoiner || out.ConnectedPeer != "p1" {
		t.Errorf("round trip = %+v", out)
	}

	if err := json.Unmarshal([]byte(`{"state":"Bogus"}`), &out); err == nil {
		t.Error("Unmarshal() expected error for unknown state")
	}
}

func TestKindOf(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", newError(KindTransport, "connect", errBoom))
	if got := KindOf(err); got != KindTransport {
		t.Errorf("KindOf() = %v, want KindTransport", got)
	}
	if !errors.Is(err, errBoom) {
		t.Error("errors.Is(err, errBoom) = false")
	}
	if got := KindOf(errBoom); got != 0 {
		t.Errorf("KindOf(plain) = %v, want 0", got)
	}
	if got := KindTransport.String(); got != "TransportError" {
		t.Errorf("String() = %q, want TransportError", got)
	}
}
