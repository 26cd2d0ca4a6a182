package chrome

import "testing"

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateIdle, "idle"},
		{StateConfiguring, "configuring"},
		{StateNavigating, "navigating"},
		{StateAwaitingReady, "awaiting_ready"},
		{StateExtracting, "extracting"},
		{StateResetting, "resetting"},
		{StateDead, "dead"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.state.String(); got != tt.expected {
				t.Errorf("String() = %q, want %q", got, tt.expected)
			}
		})
	}
}
