// Package health aggregates per-component health into one overall status for
// the gateway's health endpoint.
package health

import (
	"sync"
	"time"
)

// State is a component or overall health level.
type State string

const (
	// StateHealthy means operating normally.
	StateHealthy State = "healthy"
	// StateDegraded means operating with reduced capability, e.g. a channel
	// awaiting reconnect.
	StateDegraded State = "degraded"
	// StateUnhealthy means not operating.
	StateUnhealthy State = "unhealthy"
)

// severity orders states for overall aggregation.
func severity(s State) int {
	switch s {
	case StateHealthy:
		return 0
	case StateDegraded:
		return 1
	default:
		return 2
	}
}

// Component is one tracked component's health.
type Component struct {
	State     State     `json:"state"`
	Detail    string    `json:"detail,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Status is the aggregated health report.
type Status struct {
	State      State                `json:"state"`
	Components map[string]Component `json:"components"`
	Timestamp  time.Time            `json:"timestamp"`
}

// Tracker collects component health reports. The zero value is not usable;
// use NewTracker.
type Tracker struct {
	mu         sync.Mutex
	components map[string]Component
}

// NewTracker creates an empty tracker; with no components reported the
// overall state is healthy.
func NewTracker() *Tracker {
	return &Tracker{components: make(map[string]Component)}
}

// Set records the health of one component.
func (t *Tracker) Set(name string, state State, detail string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.components[name] = Component{State: state, Detail: detail, UpdatedAt: time.Now().UTC()}
}

// Remove forgets a component, used when a channel is torn down.
func (t *Tracker) Remove(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.components, name)
}

// Status returns the aggregated report. The overall state is the worst state
// of any component.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	overall := StateHealthy
	components := make(map[string]Component, len(t.components))
	for name, c := range t.components {
		components[name] = c
		if severity(c.State) > severity(overall) {
			overall = c.State
		}
	}
	return Status{
		State:      overall,
		Components: components,
		Timestamp:  time.Now().UTC(),
	}
}
