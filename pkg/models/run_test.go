package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunState_IsKnown(t *testing.T) {
	tests := []struct {
		name  string
		state RunState
		want  bool
	}{
		{name: "running", state: RunStateRunning, want: true},
		{name: "success", state: RunStateSuccess, want: true},
		{name: "failure", state: RunStateFailure, want: true},
		{name: "cancelled", state: RunStateCancelled, want: true},
		{name: "executor-introduced state", state: RunState("paused"), want: false},
		{name: "empty", state: RunState(""), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.IsKnown())
		})
	}
}

func TestNodeState_IsKnown(t *testing.T) {
	for _, state := range []NodeState{
		NodeStateWaiting, NodeStateRunning, NodeStateSuccess,
		NodeStateFailure, NodeStateSkipped, NodeStateCancelled,
	} {
		assert.True(t, state.IsKnown(), "state %q", state)
	}

	assert.False(t, NodeState("retrying").IsKnown())
	assert.False(t, NodeState("").IsKnown())
}
