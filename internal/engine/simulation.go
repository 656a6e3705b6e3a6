// Simulation ties the grid, settlements, households, and fields together and
// advances them one simulated year per Step.
package engine

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/talgya/nile-sim/internal/agents"
	"github.com/talgya/nile-sim/internal/config"
	"github.com/talgya/nile-sim/internal/entropy"
	"github.com/talgya/nile-sim/internal/social"
	"github.com/talgya/nile-sim/internal/stats"
	"github.com/talgya/nile-sim/internal/world"
)

// maxEvents bounds the in-memory event log.
const maxEvents = 1000

// Simulation holds the complete state of one run. It is single-threaded:
// callers that share it across goroutines must serialize access.
type Simulation struct {
	Config      config.Config
	Grid        *world.Grid
	Settlements []*social.Settlement
	Households  []*agents.Household
	Fields      []*agents.Field
	Events      []Event // Recent events, oldest first
	LastTick    uint64  // Number of completed steps
	LastFlood   world.FloodParams
	LastStats   TickStats // Counters for the most recent step

	// Lookups. Back-references (household → settlement, field → household)
	// are ids resolved through these.
	SettlementIndex map[social.SettlementID]*social.Settlement
	HouseholdIndex  map[agents.HouseholdID]*agents.Household
	FieldIndex      map[agents.FieldID]*agents.Field

	// OnStep, if set, is called after every successful step.
	OnStep func(snap stats.Snapshot, ts TickStats)

	rng               *entropy.Stream
	flooder           *world.Flooder
	spawner           *agents.Spawner
	initialPopulation int
	history           []stats.Snapshot
	aborted           error
}

// Event is a notable occurrence in the run.
type Event struct {
	Tick        uint64 `json:"tick"`
	Description string `json:"description"`
	Category    string `json:"category"` // "extinction", "fallow"
}

// TickStats counts what happened during one step.
type TickStats struct {
	Claims         int `json:"claims"`
	Harvests       int `json:"harvests"`
	Rentals        int `json:"rentals"`
	Starvations    int `json:"starvations"`
	Extinctions    int `json:"extinctions"`
	FieldsReleased int `json:"fields_released"`
	Changeovers    int `json:"changeovers"`
	Births         int `json:"births"`
}

// NewSimulation validates cfg and builds the initial world: one flood,
// settlements on random empty cells, and their households.
func NewSimulation(cfg config.Config) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = entropy.CryptoSeed()
	}

	rng := entropy.New(cfg.Seed)
	s := &Simulation{
		Config:            cfg,
		Grid:              world.NewGrid(cfg.Width, cfg.Height),
		SettlementIndex:   make(map[social.SettlementID]*social.Settlement, cfg.StartingSettlements),
		HouseholdIndex:    make(map[agents.HouseholdID]*agents.Household),
		FieldIndex:        make(map[agents.FieldID]*agents.Field),
		rng:               rng,
		flooder:           world.NewFlooder(cfg.Seed, cfg.FloodRoughness),
		spawner:           agents.NewSpawner(rng),
		initialPopulation: cfg.InitialPopulation(),
	}
	s.LastFlood = s.flooder.Flood(s.Grid, rng, 0)

	spawn := agents.SpawnConfig{
		Workers:       cfg.StartingHouseholdSize,
		Grain:         cfg.StartingGrain,
		MinCompetency: cfg.MinCompetency,
		MinAmbition:   cfg.MinAmbition,
	}
	for i := 0; i < cfg.StartingSettlements; i++ {
		cells, err := world.PlaceRandom(s.Grid, 1, rng)
		if err != nil {
			return nil, fmt.Errorf("place settlement %d: %w", i+1, err)
		}
		sett := social.NewSettlement(social.SettlementID(i+1), cells[0])
		if err := s.Grid.Place(sett.Position, world.Occupant{Kind: world.KindSettlement, ID: sett.ID}); err != nil {
			return nil, invariant(0, "settlement placement", err)
		}
		s.Settlements = append(s.Settlements, sett)
		s.SettlementIndex[sett.ID] = sett

		for _, h := range s.spawner.SpawnHouseholds(cfg.StartingHouseholds, sett.ID, sett.Position, spawn) {
			sett.AddHousehold(h)
			s.Households = append(s.Households, h)
			s.HouseholdIndex[h.ID] = h
		}
	}

	s.history = append(s.history, s.Snapshot())

	slog.Debug("simulation created",
		"seed", cfg.Seed,
		"grid", s.Grid.String(),
		"settlements", len(s.Settlements),
		"households", len(s.Households),
		"population", s.TotalPopulation(),
	)
	return s, nil
}

// Step advances the run by one simulated year. Phase order is fixed:
// flood, claim (wealthiest first), farm, rent (most ambitious first),
// consume, storage loss, field changeover, generation changeover,
// population growth, then the metrics snapshot. An invariant violation
// aborts the run; every later call returns the same error.
func (s *Simulation) Step() error {
	if s.aborted != nil {
		return s.aborted
	}
	s.LastStats = TickStats{}
	tick := s.LastTick

	s.LastFlood = s.flooder.Flood(s.Grid, s.rng, tick)

	order := s.schedulerOrder()

	for _, h := range byDescending(order, func(h *agents.Household) float64 { return h.Grain }) {
		if err := s.claimFields(h); err != nil {
			return s.abort(tick, "claim", err)
		}
	}

	for _, h := range order {
		h.WorkersWorked = 0
	}
	for _, h := range order {
		s.farm(h)
	}

	if s.Config.AllowRental {
		for _, h := range byDescending(order, func(h *agents.Household) float64 { return h.Ambition }) {
			s.rentLand(h)
		}
	}

	for _, h := range order {
		if err := s.consume(h); err != nil {
			return s.abort(tick, "consume", err)
		}
	}
	order = s.living(order)

	for _, h := range order {
		h.StorageLoss()
	}

	if err := s.fieldChangeover(); err != nil {
		return s.abort(tick, "field changeover", err)
	}

	s.generationChangeover(order)
	s.populationShift(order)

	s.LastTick++
	snap := s.Snapshot()
	s.history = append(s.history, snap)

	if err := s.CheckInvariants(); err != nil {
		return s.abort(s.LastTick, "post-step check", err)
	}

	slog.Debug("tick complete",
		"tick", s.LastTick,
		"flood_mu", s.LastFlood.Mu,
		"flood_sigma", s.LastFlood.Sigma,
		"population", snap.TotalPopulation,
		"wealth", snap.TotalWealth,
		"gini", snap.Gini,
		"claims", s.LastStats.Claims,
		"harvests", s.LastStats.Harvests,
		"rentals", s.LastStats.Rentals,
		"extinctions", s.LastStats.Extinctions,
	)

	if s.OnStep != nil {
		s.OnStep(snap, s.LastStats)
	}
	return nil
}

// Run performs n steps, stopping at the first error.
func (s *Simulation) Run(n int) error {
	for i := 0; i < n; i++ {
		if err := s.Step(); err != nil {
			return err
		}
	}
	return nil
}

// schedulerOrder returns the living households in a fresh random order.
// Phases without a metric-dependent order use it.
func (s *Simulation) schedulerOrder() []*agents.Household {
	order := make([]*agents.Household, len(s.Households))
	copy(order, s.Households)
	s.rng.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})
	return order
}

// living filters out households removed earlier in the step.
func (s *Simulation) living(order []*agents.Household) []*agents.Household {
	out := order[:0:0]
	for _, h := range order {
		if _, ok := s.HouseholdIndex[h.ID]; ok {
			out = append(out, h)
		}
	}
	return out
}

// byDescending returns a copy of order sorted by key, largest first. The sort
// is stable so equal keys keep scheduler order.
func byDescending(order []*agents.Household, key func(*agents.Household) float64) []*agents.Household {
	out := make([]*agents.Household, len(order))
	copy(out, order)
	sort.SliceStable(out, func(i, j int) bool {
		return key(out[i]) > key(out[j])
	})
	return out
}

func (s *Simulation) addEvent(category, format string, args ...any) {
	s.Events = append(s.Events, Event{
		Tick:        s.LastTick,
		Description: fmt.Sprintf(format, args...),
		Category:    category,
	})
	if len(s.Events) > maxEvents {
		s.Events = s.Events[len(s.Events)-maxEvents:]
	}
}

// ── Read-only queries ────────────────────────────────────────────────

// Seed returns the seed of the run's random stream.
func (s *Simulation) Seed() int64 {
	return s.Config.Seed
}

// CurrentTick returns the number of completed steps.
func (s *Simulation) CurrentTick() uint64 {
	return s.LastTick
}

// InitialPopulation returns the worker count the run started with.
func (s *Simulation) InitialPopulation() int {
	return s.initialPopulation
}

// View returns the immutable household view the aggregates are computed on.
func (s *Simulation) View() []stats.Household {
	out := make([]stats.Household, len(s.Households))
	for i, h := range s.Households {
		out[i] = stats.Household{Workers: h.Workers, Grain: h.Grain}
	}
	return out
}

// ActiveSettlements counts settlements that still have households.
func (s *Simulation) ActiveSettlements() int {
	n := 0
	for _, st := range s.Settlements {
		if st.Active() {
			n++
		}
	}
	return n
}

// TotalPopulation returns the total worker count.
func (s *Simulation) TotalPopulation() int {
	return stats.TotalPopulation(s.View())
}

// MeanPopulation returns workers per active settlement.
func (s *Simulation) MeanPopulation() float64 {
	return stats.PerSettlement(float64(s.TotalPopulation()), s.ActiveSettlements())
}

// TotalWealth returns the total grain held.
func (s *Simulation) TotalWealth() float64 {
	return stats.TotalWealth(s.View())
}

// MeanWealth returns grain per active settlement.
func (s *Simulation) MeanWealth() float64 {
	return stats.PerSettlement(s.TotalWealth(), s.ActiveSettlements())
}

// Gini returns the Gini coefficient of household grain.
func (s *Simulation) Gini() float64 {
	return stats.Gini(s.View())
}

// Snapshot computes the aggregate metrics for the current state.
func (s *Simulation) Snapshot() stats.Snapshot {
	return stats.Collect(s.LastTick, s.View(), s.ActiveSettlements(), len(s.Fields))
}

// History returns a copy of every snapshot recorded so far, starting with
// the state at construction.
func (s *Simulation) History() []stats.Snapshot {
	out := make([]stats.Snapshot, len(s.history))
	copy(out, s.history)
	return out
}
