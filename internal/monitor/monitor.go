package monitor

import (
	"context"
	"fmt"
	"log/slog"
)

// Monitor runs observe, triage, decide, act cycles against one server.
type Monitor struct {
	Observer *Observer
	Actor    *Actor // Optional: without it the monitor only reports
	Memory   *CycleMemory
	Policy   Policy
}

// RunCycle executes one cycle and records it in Memory.
func (m *Monitor) RunCycle(ctx context.Context) (CycleRecord, error) {
	snap, err := m.Observer.Observe(ctx)
	if err != nil {
		return CycleRecord{}, fmt.Errorf("observe: %w", err)
	}
	h := Triage(snap)
	d := Decide(snap, h, m.Memory, m.Policy)

	slog.Info("monitor cycle",
		"run", snap.Status.RunID,
		"tick", h.Tick,
		"time", snap.Status.SimTime,
		"level", h.Level,
		"population", h.Population,
		"population_change", fmt.Sprintf("%+.1f%%", h.PopulationChange*100),
		"gini", fmt.Sprintf("%.3f", h.Gini),
		"active", fmt.Sprintf("%d/%d", len(snap.Settlements)-h.EmptySettlements, len(snap.Settlements)),
		"action", d.Action,
	)
	if d.Rationale != "" && h.Level > Healthy {
		slog.Warn("run health degraded", "level", h.Level, "reasons", d.Rationale)
	}

	rec := CycleRecord{
		RunID:      snap.Status.RunID,
		Tick:       h.Tick,
		Level:      h.Level,
		Population: h.Population,
		Gini:       h.Gini,
		Action:     d.Action,
		Rationale:  d.Rationale,
	}

	if d.Action == ActionPause {
		if m.Actor == nil {
			rec.Action = ActionNone
		} else {
			speed, err := m.Actor.SetSpeed(ctx, 0)
			if err != nil {
				m.Memory.Record(rec)
				return rec, fmt.Errorf("pause run: %w", err)
			}
			slog.Warn("run paused", "run", rec.RunID, "tick", rec.Tick, "speed", speed)
		}
	}

	m.Memory.Record(rec)
	return rec, nil
}
