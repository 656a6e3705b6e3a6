package monitor

import (
	"strings"
)

// Actions a cycle can take.
const (
	ActionNone  = "none"
	ActionPause = "pause"
)

// Policy controls when the monitor intervenes.
type Policy struct {
	// PauseOnCritical pauses the run after this many consecutive CRITICAL
	// cycles, counting the current one. 0 never pauses.
	PauseOnCritical int
}

// Decision is what the monitor does this cycle and why.
type Decision struct {
	Action    string
	Rationale string
}

// Decide picks an action from the current health and previous cycles of
// the same run. A paused or aborted run is never paused again.
func Decide(snap *Snapshot, h *Health, mem *CycleMemory, p Policy) Decision {
	rationale := strings.Join(h.Reasons, "; ")
	if h.Level < Critical || p.PauseOnCritical <= 0 {
		return Decision{Action: ActionNone, Rationale: rationale}
	}
	if h.Aborted || snap.Status.Speed == 0 || !snap.Status.Running {
		return Decision{Action: ActionNone, Rationale: rationale}
	}
	if mem.Streak(snap.Status.RunID, Critical)+1 < p.PauseOnCritical {
		return Decision{Action: ActionNone, Rationale: rationale}
	}
	return Decision{Action: ActionPause, Rationale: rationale}
}
