package simulate

import (
	"reflect"
	"testing"
)

func TestRun_IdenticalSeedsProduceIdenticalSequences(t *testing.T) {
	seed := uint64(42)
	cfg := Config{Mode: ScenarioMode, Rounds: 5, Seed: &seed, Scenario: "normal"}

	first, err := Run("entity-1", "IDEA", cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	second, err := Run("entity-1", "IDEA", cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("round count mismatch: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if !reflect.DeepEqual(first[i].Metrics, second[i].Metrics) {
			t.Fatalf("round %d metrics diverged: %v vs %v", i, first[i].Metrics, second[i].Metrics)
		}
		if !reflect.DeepEqual(first[i].Events, second[i].Events) {
			t.Fatalf("round %d events diverged: %v vs %v", i, first[i].Events, second[i].Events)
		}
	}
}

func TestRun_UnknownScenarioFails(t *testing.T) {
	_, err := Run("entity-1", "IDEA", Config{Mode: ScenarioMode, Rounds: 1, Scenario: "does-not-exist"})
	if err != ErrScenarioNotFound {
		t.Fatalf("expected ErrScenarioNotFound, got %v", err)
	}
}

func TestDefaultScenarioForType(t *testing.T) {
	if got := DefaultScenarioForType("CONTRACT"); got.Name != "high_performance" {
		t.Fatalf("expected high_performance for CONTRACT, got %q", got.Name)
	}
	if got := DefaultScenarioForType("contract"); got.Name != "high_performance" {
		t.Fatalf("expected case-insensitive match, got %q", got.Name)
	}
	if got := DefaultScenarioForType("IDEA"); got.Name != "normal" {
		t.Fatalf("expected normal for IDEA, got %q", got.Name)
	}
	if got := DefaultScenarioForType("unknown"); got.Name != "normal" {
		t.Fatalf("expected normal fallback, got %q", got.Name)
	}
}

func TestRunDeterministic_UsesRangeMidpointsAndProbabilityOneEvents(t *testing.T) {
	seed := uint64(1)
	results, err := Run("entity-1", "CONTRACT", Config{Mode: Deterministic, Rounds: 1, Seed: &seed})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	r := results[0]

	scenario := DefaultScenarioForType("CONTRACT")
	for key, rng := range scenario.Metrics {
		want := (rng.Min + rng.Max) / 2
		if got := r.Metrics[key]; got != want {
			t.Errorf("metric %q = %v, want midpoint %v", key, got, want)
		}
	}
	for _, ev := range scenario.Events {
		found := false
		for _, got := range r.Events {
			if got == ev.Name+":entity=entity-1" {
				found = true
				break
			}
		}
		if ev.Probability >= 1.0 && !found {
			t.Errorf("expected probability-1.0 event %q to be present", ev.Name)
		}
		if ev.Probability < 1.0 && found {
			t.Errorf("expected sub-1.0 probability event %q to be absent in deterministic mode", ev.Name)
		}
	}
}

func TestEvaluate_MeansSuccessRateAcrossRounds(t *testing.T) {
	results := []Result{
		{Metrics: map[string]float64{"success_rate": 1.0}},
		{Metrics: map[string]float64{"success_rate": 0.5}},
		{Metrics: map[string]float64{}},
	}
	if got, want := Evaluate(results), 0.75; got != want {
		t.Fatalf("Evaluate() = %v, want %v", got, want)
	}
}

func TestEvaluate_EmptyResultsScoreZero(t *testing.T) {
	if got := Evaluate(nil); got != 0 {
		t.Fatalf("Evaluate(nil) = %v, want 0", got)
	}
}
