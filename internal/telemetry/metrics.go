// Package telemetry exports simulation progress as Prometheus metrics.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/talgya/nile-sim/internal/engine"
	"github.com/talgya/nile-sim/internal/stats"
)

var (
	ticksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nilesim_ticks_total",
		Help: "Simulated years completed across all runs",
	})

	actionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nilesim_household_actions_total",
		Help: "Household actions by kind",
	}, []string{"action"})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nilesim_runs_total",
		Help: "Finished runs by outcome",
	}, []string{"outcome"})

	stepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nilesim_step_duration_seconds",
		Help:    "Wall time of one simulation step",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	})

	population = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nilesim_population",
		Help: "Total workers in the most recently observed run",
	})

	wealth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nilesim_wealth_grain",
		Help: "Total grain held in the most recently observed run",
	})

	gini = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nilesim_gini",
		Help: "Gini coefficient of household grain",
	})

	entities = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "nilesim_entities",
		Help: "Live entities by kind",
	}, []string{"kind"})
)

// ObserveStep records one completed step. Its signature matches
// engine.Simulation.OnStep.
func ObserveStep(snap stats.Snapshot, ts engine.TickStats) {
	ticksTotal.Inc()

	actionsTotal.WithLabelValues("claim").Add(float64(ts.Claims))
	actionsTotal.WithLabelValues("harvest").Add(float64(ts.Harvests))
	actionsTotal.WithLabelValues("rent").Add(float64(ts.Rentals))
	actionsTotal.WithLabelValues("starve").Add(float64(ts.Starvations))
	actionsTotal.WithLabelValues("extinction").Add(float64(ts.Extinctions))
	actionsTotal.WithLabelValues("release_field").Add(float64(ts.FieldsReleased))
	actionsTotal.WithLabelValues("changeover").Add(float64(ts.Changeovers))
	actionsTotal.WithLabelValues("birth").Add(float64(ts.Births))

	population.Set(float64(snap.TotalPopulation))
	wealth.Set(snap.TotalWealth)
	gini.Set(snap.Gini)
	entities.WithLabelValues("household").Set(float64(snap.Households))
	entities.WithLabelValues("field").Set(float64(snap.Fields))
	entities.WithLabelValues("active_settlement").Set(float64(snap.ActiveSettlements))
}

// ObserveRun counts a finished run.
func ObserveRun(err error) {
	if err != nil {
		runsTotal.WithLabelValues("aborted").Inc()
		return
	}
	runsTotal.WithLabelValues("completed").Inc()
}

// Timed wraps step so that each call's duration is recorded.
func Timed(step func() error) func() error {
	return func() error {
		start := time.Now()
		err := step()
		stepDuration.Observe(time.Since(start).Seconds())
		return err
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
