package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_EmptyIsHealthy(t *testing.T) {
	tr := NewTracker()
	assert.Equal(t, StateHealthy, tr.Status().State)
}

func TestTracker_WorstComponentWins(t *testing.T) {
	tr := NewTracker()
	tr.Set("channel:ch1", StateHealthy, "")
	tr.Set("channel:ch2", StateDegraded, "reconnect scheduled")

	st := tr.Status()
	assert.Equal(t, StateDegraded, st.State)
	require.Len(t, st.Components, 2)
	assert.Equal(t, "reconnect scheduled", st.Components["channel:ch2"].Detail)

	tr.Set("channel:ch3", StateUnhealthy, "dial refused")
	assert.Equal(t, StateUnhealthy, tr.Status().State)
}

func TestTracker_RecoveryAndRemoval(t *testing.T) {
	tr := NewTracker()
	tr.Set("channel:ch1", StateUnhealthy, "down")
	tr.Set("channel:ch1", StateHealthy, "")
	assert.Equal(t, StateHealthy, tr.Status().State)

	tr.Set("channel:ch2", StateUnhealthy, "down")
	tr.Remove("channel:ch2")
	assert.Equal(t, StateHealthy, tr.Status().State)
}
