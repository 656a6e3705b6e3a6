package monitor

import (
	"fmt"
)

// Level grades the health of a run.
type Level int

const (
	Healthy Level = iota
	Watch
	Warning
	Critical
)

func (l Level) String() string {
	switch l {
	case Healthy:
		return "HEALTHY"
	case Watch:
		return "WATCH"
	case Warning:
		return "WARNING"
	case Critical:
		return "CRITICAL"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// Thresholds for Triage. Declines are fractions of the population at the
// start of the observed window.
const (
	watchDecline    = 0.05
	warningDecline  = 0.20
	criticalDecline = 0.50

	watchGini   = 0.6
	warningGini = 0.8

	// Fraction of settlements still holding households.
	criticalActive = 0.25
)

// Health holds derived diagnostic signals computed from a Snapshot.
// Computed before any action; deterministic and free.
type Health struct {
	Tick             uint64
	Population       int
	PopulationChange float64 // Relative change across the history window
	WealthChange     float64
	Gini             float64
	ActiveFraction   float64
	EmptySettlements int
	Aborted          bool
	Level            Level
	Reasons          []string
}

// Triage computes a Health from the snapshot's data.
func Triage(snap *Snapshot) *Health {
	st := snap.Status
	h := &Health{
		Tick:       st.Tick,
		Population: st.Population,
		Gini:       st.Gini,
		Aborted:    st.Error != "",
	}

	for _, s := range snap.Settlements {
		if !s.Active {
			h.EmptySettlements++
		}
	}
	if n := len(snap.Settlements); n > 0 {
		h.ActiveFraction = float64(n-h.EmptySettlements) / float64(n)
	}

	if len(snap.History) >= 2 {
		oldest := snap.History[0]
		newest := snap.History[len(snap.History)-1]
		h.PopulationChange = change(float64(oldest.TotalPopulation), float64(newest.TotalPopulation))
		h.WealthChange = change(oldest.TotalWealth, newest.TotalWealth)
	}

	raise := func(l Level, format string, args ...any) {
		if l > h.Level {
			h.Level = l
		}
		h.Reasons = append(h.Reasons, fmt.Sprintf(format, args...))
	}

	switch {
	case h.Aborted:
		raise(Critical, "run aborted: %s", st.Error)
	case st.Settlements > 0 && st.Population == 0:
		raise(Critical, "population extinct")
	}
	if len(snap.Settlements) > 0 && h.ActiveFraction < criticalActive {
		raise(Critical, "only %.0f%% of settlements active", h.ActiveFraction*100)
	}

	switch decline := -h.PopulationChange; {
	case decline > criticalDecline:
		raise(Critical, "population down %.0f%%", decline*100)
	case decline > warningDecline:
		raise(Warning, "population down %.0f%%", decline*100)
	case decline > watchDecline:
		raise(Watch, "population down %.0f%%", decline*100)
	}

	switch {
	case h.Gini > warningGini:
		raise(Warning, "gini %.2f", h.Gini)
	case h.Gini > watchGini:
		raise(Watch, "gini %.2f", h.Gini)
	}

	return h
}

// change is (to - from) / from, or 0 when from is 0.
func change(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to - from) / from
}
