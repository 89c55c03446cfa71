package store

// Aggregate names the reduction applied to a metric's per-row values.
type Aggregate string

const (
	AggSum   Aggregate = "sum"
	AggCount Aggregate = "count"
	AggAvg   Aggregate = "avg"
	AggMin   Aggregate = "min"
	AggMax   Aggregate = "max"
)

// ValueFn extracts the per-row contribution to a metric.
type ValueFn func(get RowGetter) float64

type metricDef struct {
	name    string
	table   string
	agg     Aggregate
	valueFn ValueFn

	value float64
	rows  int
}

// One returns 1 for every row, turning a sum into a row count.
func One(RowGetter) float64 { return 1 }

// SetMetricDefinition declares (or replaces) a scalar aggregate over the
// table, recomputed on every commit touching it.
func (s *Store) SetMetricDefinition(name, table string, agg Aggregate, valueFn ValueFn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	def := &metricDef{name: name, table: table, agg: agg, valueFn: valueFn}
	s.metrics[name] = def
	s.deriveMetricLocked(def)
}

// Metric returns the metric's current value. The second result is false when
// the metric is undefined: unknown name, or an empty table for aggregates
// with no identity (avg, min, max).
func (s *Store) Metric(name string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.metrics[name]
	if !ok {
		return 0, false
	}
	if def.rows == 0 {
		switch def.agg {
		case AggAvg, AggMin, AggMax:
			return 0, false
		}
	}
	return def.value, true
}

func (s *Store) deriveMetricLocked(def *metricDef) {
	def.rows = 0
	def.value = 0
	var sum, min, max float64
	first := true
	for _, cells := range s.tables[def.table] {
		c := cells
		v := def.valueFn(func(column string) any { return c[column] })
		def.rows++
		sum += v
		if first || v < min {
			min = v
		}
		if first || v > max {
			max = v
		}
		first = false
	}
	switch def.agg {
	case AggSum:
		def.value = sum
	case AggCount:
		def.value = float64(def.rows)
	case AggAvg:
		if def.rows > 0 {
			def.value = sum / float64(def.rows)
		}
	case AggMin:
		def.value = min
	case AggMax:
		def.value = max
	}
}
