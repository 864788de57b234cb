package app

import (
	"log/slog"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
)

// counterTotals sums every counter family in g across its label sets.
// Families of other types are skipped.
func counterTotals(g prometheus.Gatherer) (map[string]float64, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, err
	}
	totals := make(map[string]float64, len(families))
	for _, mf := range families {
		var sum float64
		counted := false
		for _, m := range mf.GetMetric() {
			if c := m.GetCounter(); c != nil {
				sum += c.GetValue()
				counted = true
			}
		}
		if counted {
			totals[mf.GetName()] = sum
		}
	}
	return totals, nil
}

// reportMetrics logs one summary line of the run's counters when the
// registerer can also be gathered.
func (e *Entry) reportMetrics() {
	g, ok := e.Registerer.(prometheus.Gatherer)
	if !ok {
		return
	}
	totals, err := counterTotals(g)
	if err != nil {
		e.Logger.Warn("gather metrics", "err", err)
		return
	}
	names := make([]string, 0, len(totals))
	for name := range totals {
		names = append(names, name)
	}
	sort.Strings(names)
	attrs := make([]any, 0, len(names))
	for _, name := range names {
		attrs = append(attrs, slog.Float64(name, totals[name]))
	}
	e.Logger.Info("run summary", attrs...)
}
