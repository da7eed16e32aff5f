// Package simulate implements the simulation routine invoked by
// `SIMULATE ENTITY`: a static scenario catalog, a seedable engine running
// one of three modes, and a scoring helper.
package simulate

import "strings"

// MetricRange is the inclusive [Min, Max] bound a scenario declares for
// one metric.
type MetricRange struct {
	Min float64
	Max float64
}

// Event is a named occurrence a scenario may emit, gated by Probability.
type Event struct {
	Name        string
	Probability float64
}

// Modifier multiplies an existing metric by Factor. Condition is carried
// on the struct but not currently interpreted; modifiers apply
// unconditionally.
type Modifier struct {
	Metric    string
	Factor    float64
	Condition string
}

// Scenario bundles the metric ranges, probabilistic events, and
// modifiers used by the Scenario simulation mode (and, for its metric
// midpoints and probability-1.0 events, by Deterministic). Random mode
// does not read the scenario.
type Scenario struct {
	Name        string
	Description string
	Metrics     map[string]MetricRange
	Events      []Event
	Modifiers   []Modifier
}

// catalog is the static, built-in scenario set.
var catalog = map[string]Scenario{
	"high_performance": {
		Name:        "high_performance",
		Description: "High-performance scenario with abundant resources",
		Metrics: map[string]MetricRange{
			"success_rate":    {Min: 0.9, Max: 1.0},
			"processing_time": {Min: 5.0, Max: 50.0},
			"resource_usage":  {Min: 0.1, Max: 0.4},
		},
		Events: []Event{
			{Name: "process_start", Probability: 1.0},
			{Name: "optimization_applied", Probability: 0.8},
			{Name: "process_complete", Probability: 0.95},
		},
		Modifiers: []Modifier{
			{Metric: "processing_time", Factor: 0.8, Condition: "event:optimization_applied"},
		},
	},
	"low_performance": {
		Name:        "low_performance",
		Description: "Low-performance scenario with scarce resources",
		Metrics: map[string]MetricRange{
			"success_rate":    {Min: 0.4, Max: 0.7},
			"processing_time": {Min: 200.0, Max: 800.0},
			"resource_usage":  {Min: 0.7, Max: 0.95},
		},
		Events: []Event{
			{Name: "process_start", Probability: 0.9},
			{Name: "resource_exhausted", Probability: 0.6},
			{Name: "process_timeout", Probability: 0.4},
			{Name: "process_complete", Probability: 0.6},
		},
		Modifiers: []Modifier{
			{Metric: "success_rate", Factor: 0.5, Condition: "event:resource_exhausted"},
			{Metric: "processing_time", Factor: 1.5, Condition: "metrics.resource_usage > 0.85"},
		},
	},
	"normal": {
		Name:        "normal",
		Description: "Normal scenario with average behavior",
		Metrics: map[string]MetricRange{
			"success_rate":    {Min: 0.7, Max: 0.9},
			"processing_time": {Min: 50.0, Max: 200.0},
			"resource_usage":  {Min: 0.4, Max: 0.7},
		},
		Events: []Event{
			{Name: "process_start", Probability: 1.0},
			{Name: "validation_complete", Probability: 0.8},
			{Name: "process_complete", Probability: 0.85},
		},
	},
}

// LoadScenario returns the named built-in scenario.
func LoadScenario(name string) (Scenario, bool) {
	s, ok := catalog[name]
	return s, ok
}

// ListScenarios returns the names of every built-in scenario.
func ListScenarios() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	return names
}

// DefaultScenarioForType picks the scenario Run uses when Config.Scenario
// is empty, keyed by the entity's registry type:
// CONTRACT -> high_performance, IDEA -> normal, anything else -> normal.
func DefaultScenarioForType(entityType string) Scenario {
	switch strings.ToUpper(entityType) {
	case "CONTRACT":
		return catalog["high_performance"]
	default:
		return catalog["normal"]
	}
}
