package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/talgya/nile-sim/internal/world"
)

// ErrInvariant is matched by every invariant violation.
var ErrInvariant = errors.New("engine: invariant violation")

// InvariantError reports a broken invariant and where it was detected.
type InvariantError struct {
	Tick   uint64
	Phase  string
	Detail string
	Err    error
}

func (e *InvariantError) Error() string {
	msg := fmt.Sprintf("invariant violation at tick %d (%s)", e.Tick, e.Phase)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both ErrInvariant and the underlying cause.
func (e *InvariantError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvariant}
	}
	return []error{ErrInvariant, e.Err}
}

func invariant(tick uint64, phase string, err error) error {
	var ie *InvariantError
	if errors.As(err, &ie) {
		return err
	}
	return &InvariantError{Tick: tick, Phase: phase, Err: err}
}

// abort records err as fatal for the run and returns it.
func (s *Simulation) abort(tick uint64, phase string, err error) error {
	s.aborted = invariant(tick, phase, err)
	slog.Error("simulation aborted", "seed", s.Config.Seed, "tick", tick, "phase", phase, "error", err)
	return s.aborted
}

// Aborted returns the error that stopped the run, if any.
func (s *Simulation) Aborted() error {
	return s.aborted
}

func violation(tick uint64, format string, args ...any) error {
	return &InvariantError{Tick: tick, Phase: "check", Detail: fmt.Sprintf(format, args...)}
}

// CheckInvariants verifies the structural and economic invariants of the
// current state and returns the first violation found.
func (s *Simulation) CheckInvariants() error {
	tick := s.LastTick
	cfg := s.Config

	if len(s.HouseholdIndex) != len(s.Households) {
		return violation(tick, "household index holds %d entries for %d households", len(s.HouseholdIndex), len(s.Households))
	}

	members := 0
	for _, st := range s.Settlements {
		if occ := s.Grid.Occupant(st.Position); occ != (world.Occupant{Kind: world.KindSettlement, ID: st.ID}) {
			return violation(tick, "settlement %d not on its cell %v", st.ID, st.Position)
		}
		for _, h := range st.Households {
			if h.SettlementID != st.ID {
				return violation(tick, "household %d listed under settlement %d but belongs to %d", h.ID, st.ID, h.SettlementID)
			}
		}
		members += len(st.Households)
	}
	if members != len(s.Households) {
		return violation(tick, "settlements list %d households, model holds %d", members, len(s.Households))
	}

	owned := 0
	for _, h := range s.Households {
		switch {
		case h.Workers < 0:
			return violation(tick, "household %d has %d workers", h.ID, h.Workers)
		case h.Grain < 0:
			return violation(tick, "household %d has negative grain %f", h.ID, h.Grain)
		case h.Competency < cfg.MinCompetency || h.Competency > 1:
			return violation(tick, "household %d competency %f outside [%f, 1]", h.ID, h.Competency, cfg.MinCompetency)
		case h.Ambition < cfg.MinAmbition || h.Ambition > 1:
			return violation(tick, "household %d ambition %f outside [%f, 1]", h.ID, h.Ambition, cfg.MinAmbition)
		}
		for _, f := range h.Fields {
			if f.OwnerID != h.ID {
				return violation(tick, "field %d listed by household %d but owned by %d", f.ID, h.ID, f.OwnerID)
			}
			if _, ok := s.FieldIndex[f.ID]; !ok {
				return violation(tick, "field %d of household %d missing from model", f.ID, h.ID)
			}
			if occ := s.Grid.Occupant(f.Position); occ != (world.Occupant{Kind: world.KindField, ID: f.ID}) {
				return violation(tick, "field %d not on its cell %v", f.ID, f.Position)
			}
		}
		owned += len(h.Fields)
	}
	if owned != len(s.Fields) || owned != len(s.FieldIndex) {
		return violation(tick, "households own %d fields, model lists %d (index %d)", owned, len(s.Fields), len(s.FieldIndex))
	}
	if want := len(s.Settlements) + len(s.Fields); s.Grid.OccupiedCount() != want {
		return violation(tick, "grid has %d occupied cells, want %d", s.Grid.OccupiedCount(), want)
	}
	return nil
}
