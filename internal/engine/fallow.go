// Field fallow accounting — unworked land is eventually abandoned.
package engine

import "github.com/talgya/nile-sim/internal/agents"

// fieldChangeover closes the year for every field and releases those that
// have reached the fallow limit.
func (s *Simulation) fieldChangeover() error {
	fields := make([]*agents.Field, len(s.Fields))
	copy(fields, s.Fields)

	for _, f := range fields {
		if !f.Changeover(s.Config.FallowLimit) {
			continue
		}
		if err := s.releaseField(f); err != nil {
			return err
		}
		s.addEvent("fallow", "field %d at (%d,%d) abandoned after %d fallow years",
			f.ID, f.Position.X, f.Position.Y, f.YearsFallowed)
	}
	return nil
}

// ReleaseField abandons a field immediately. Exposed for tooling and tests
// that drive fields by hand.
func (s *Simulation) ReleaseField(f *agents.Field) error {
	if _, ok := s.FieldIndex[f.ID]; !ok {
		return nil
	}
	return s.releaseField(f)
}

// ChangeoverField runs the fallow state machine for a single field and
// releases it if it expired. Returns true when released.
func (s *Simulation) ChangeoverField(f *agents.Field) (bool, error) {
	if !f.Changeover(s.Config.FallowLimit) {
		return false, nil
	}
	return true, s.releaseField(f)
}
