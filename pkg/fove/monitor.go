package fove

// monitor.go: statistics and metrics for inference runs

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Stats holds statistics about one inference run
type Stats struct {
	RunID uuid.UUID // Identifier shared with every log line of the run

	// Scheduling statistics
	Steps      int            // Macro-operations executed
	Operations map[string]int // Executions per operation kind
	TotalCost  float64        // Sum of the chosen operations' costs

	// Normalization statistics
	ShatterPasses int // Calls to the shattering fixpoint
	Splits        int // Splits and expansions performed while shattering

	Elapsed time.Duration // Wall time from construction to the final factor
}

// Monitor collects Stats for a driver
type Monitor struct {
	mu        sync.Mutex
	stats     *Stats
	startTime time.Time
}

// NewMonitor creates a monitor for the run identified by id
func NewMonitor(id uuid.UUID) *Monitor {
	return &Monitor{
		stats: &Stats{
			RunID:      id,
			Operations: make(map[string]int),
		},
		startTime: time.Now(),
	}
}

// GetStats returns a copy of the current statistics
func (m *Monitor) GetStats() *Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := *m.stats
	stats.Operations = make(map[string]int, len(m.stats.Operations))
	for k, v := range m.stats.Operations {
		stats.Operations[k] = v
	}
	return &stats
}

// RecordOperation records executing a macro-operation
func (m *Monitor) RecordOperation(name string, cost float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Steps++
	m.stats.Operations[name]++
	m.stats.TotalCost += cost
}

// RecordShatter records one shattering pass
func (m *Monitor) RecordShatter() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.ShatterPasses++
}

// RecordSplit records one split or expansion
func (m *Monitor) RecordSplit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Splits++
}

// Finish marks the end of the run
func (m *Monitor) Finish() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Elapsed = time.Since(m.startTime)
}

// String returns a formatted summary of the statistics
func (s *Stats) String() string {
	kinds := make([]string, 0, len(s.Operations))
	for k := range s.Operations {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = fmt.Sprintf("%s=%d", k, s.Operations[k])
	}
	return fmt.Sprintf(
		"Inference Statistics (run %s):\n"+
			"  Scheduling: %d steps, total cost %g [%s]\n"+
			"  Shattering: %d passes, %d splits\n"+
			"  Elapsed: %v",
		s.RunID, s.Steps, s.TotalCost, strings.Join(parts, " "),
		s.ShatterPasses, s.Splits,
		s.Elapsed,
	)
}

// metrics are the prometheus collectors of one driver.
type metrics struct {
	operations *prometheus.CounterVec
	cost       prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fove_macro_operations_total",
			Help: "Macro-operations executed by the lifted inference scheduler.",
		}, []string{"operation"}),
		cost: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fove_macro_operation_cost",
			Help:    "Estimated factor size of each executed macro-operation.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}),
	}
	if reg == nil {
		return m, nil
	}
	if err := reg.Register(m.operations); err != nil {
		are := &prometheus.AlreadyRegisteredError{}
		if !errors.As(err, are) {
			return nil, errors.Wrap(err, "registering operation counter")
		}
		m.operations = are.ExistingCollector.(*prometheus.CounterVec)
	}
	if err := reg.Register(m.cost); err != nil {
		are := &prometheus.AlreadyRegisteredError{}
		if !errors.As(err, are) {
			return nil, errors.Wrap(err, "registering cost histogram")
		}
		m.cost = are.ExistingCollector.(prometheus.Histogram)
	}
	return m, nil
}

func (m *metrics) observe(op MacroOperation) {
	m.operations.WithLabelValues(op.Name()).Inc()
	m.cost.Observe(op.Cost())
}
