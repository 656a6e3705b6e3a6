package agents

// Changeover closes the farming year for a field. A harvested field has its
// fallow counter reset; an unharvested one ages by a year. Returns true when
// the field has lain fallow for limit years and must be released.
// The harvested flag is always cleared.
func (f *Field) Changeover(limit int) bool {
	expired := false
	if f.Harvested {
		f.YearsFallowed = 0
	} else {
		f.YearsFallowed++
		expired = f.YearsFallowed >= limit
	}
	f.Harvested = false
	return expired
}

// MarkHarvested records a harvest this tick, by the owner or a renter.
func (f *Field) MarkHarvested() {
	f.Harvested = true
	f.YearsFallowed = 0
}
