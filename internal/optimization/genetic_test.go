package optimization

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/aeroalgo/robots-sub000/internal/discovery"
	"github.com/aeroalgo/robots-sub000/internal/indicators"
	"github.com/aeroalgo/robots-sub000/internal/runtime"
	"github.com/aeroalgo/robots-sub000/internal/strategy"
	"github.com/aeroalgo/robots-sub000/pkg/types"
)

func testIndicator(alias string, period float64) runtime.IndicatorBinding {
	k, _ := indicators.Get("SMA")
	return runtime.IndicatorBinding{
		Alias:     alias,
		Timeframe: types.Timeframe1h,
		Source: runtime.BindingSource{
			Kind:   runtime.SourceRegistry,
			Name:   "SMA",
			Params: k.DefaultParameters().WithValue("period", period),
		},
	}
}

func indicatorPairCondition(id, primary, secondary string) strategy.ConditionBinding {
	return strategy.ConditionBinding{
		ID:        id,
		Timeframe: types.Timeframe1h,
		Operator:  strategy.OpAbove,
		Input: strategy.InputSpec{
			Shape:     strategy.ShapeDual,
			Primary:   strategy.Source{Kind: strategy.SourceIndicator, Alias: primary},
			Secondary: strategy.Source{Kind: strategy.SourceIndicator, Alias: secondary},
		},
	}
}

// crossoverParent builds a candidate with three distinct indicators and
// five conditions referencing only its own aliases.
func crossoverParent(prefix string) *discovery.StrategyCandidate {
	a1, a2, a3 := prefix+"_a", prefix+"_b", prefix+"_c"
	return &discovery.StrategyCandidate{
		ID:            prefix,
		BaseTimeframe: types.Timeframe1h,
		Timeframes:    []types.Timeframe{types.Timeframe1h},
		Indicators: []runtime.IndicatorBinding{
			testIndicator(a1, 10), testIndicator(a2, 20), testIndicator(a3, 30),
		},
		EntryConditions: []strategy.ConditionBinding{
			indicatorPairCondition(prefix+"_c1", a1, a2),
			indicatorPairCondition(prefix+"_c2", a2, a3),
			indicatorPairCondition(prefix+"_c3", a1, a3),
		},
		ExitConditions: []strategy.ConditionBinding{
			indicatorPairCondition(prefix+"_c4", a3, a1),
			indicatorPairCondition(prefix+"_c5", a3, a2),
		},
		StopHandlers: []discovery.HandlerSpec{{ID: prefix + "_s1", Name: "StopLossPct", Params: map[string]float64{"pct": 0.05}}},
		Discovery:    discovery.DefaultDiscoveryConfig(),
	}
}

func assertAliasIntegrity(t *testing.T, c *discovery.StrategyCandidate, label string) {
	t.Helper()
	aliases := c.IndicatorAliases()
	check := func(s strategy.Source, condID string) {
		if s.Kind == strategy.SourceIndicator && !aliases[s.Alias] {
			t.Errorf("%s: condition %s references alias %q missing from the candidate", label, condID, s.Alias)
		}
	}
	for _, cb := range c.EntryConditions {
		check(cb.Input.Primary, cb.ID)
		check(cb.Input.Secondary, cb.ID)
	}
	for _, cb := range c.ExitConditions {
		check(cb.Input.Primary, cb.ID)
		check(cb.Input.Secondary, cb.ID)
	}
}

// TestCrossoverPreservesAliasIntegrity exercises every crossover variant
// across many seeds: however the indicator sets, condition lists, handlers
// and timeframes are exchanged, no surviving condition may reference an
// alias absent from its child.
func TestCrossoverPreservesAliasIntegrity(t *testing.T) {
	o := NewOptimizer(DefaultAlgorithmConfig(), discovery.DefaultBuilderConfig(), discovery.DefaultDiscoveryConfig(), nil, nil)
	for seed := int64(0); seed < 50; seed++ {
		rng := rand.New(rand.NewSource(seed))
		c1, c2 := o.crossover(crossoverParent("p1").Clone(), crossoverParent("p2").Clone(), rng)
		assertAliasIntegrity(t, c1, fmt.Sprintf("seed %d child 1", seed))
		assertAliasIntegrity(t, c2, fmt.Sprintf("seed %d child 2", seed))
	}
}

func TestCandidateHashSeparatesParameterizations(t *testing.T) {
	a := crossoverParent("p")
	b := a.Clone()
	if candidateHash(a) != candidateHash(b) {
		t.Fatalf("identical candidates must share a hash")
	}
	b.Indicators[0].Source.Params = b.Indicators[0].Source.Params.WithValue("period", 99)
	if candidateHash(a) == candidateHash(b) {
		t.Fatalf("different parameter values must produce different hashes")
	}
}

func TestStructuralSignatureIgnoresDeclarationOrder(t *testing.T) {
	a := crossoverParent("p")
	b := a.Clone()
	b.Indicators[0], b.Indicators[2] = b.Indicators[2], b.Indicators[0]
	b.EntryConditions[0], b.EntryConditions[1] = b.EntryConditions[1], b.EntryConditions[0]
	if discovery.StructuralSignature(a).Hash() != discovery.StructuralSignature(b).Hash() {
		t.Fatalf("structural signature must be order-independent")
	}
}

// TestRunIsDeterministicForFixedSeed runs the full optimizer twice with an
// identical configuration and seed: the final populations must agree
// individual for individual, both in structure-and-parameter hash and in
// fitness.
func TestRunIsDeterministicForFixedSeed(t *testing.T) {
	frames := testFrames()
	cfg := DefaultAlgorithmConfig()
	cfg.PopulationSize = 5
	cfg.LambdaSize = 5
	cfg.MaxGenerations = 2
	cfg.IslandsCount = 2
	cfg.MigrationInterval = 1
	cfg.EnableSDS = true
	cfg.SDSPasses = 1
	cfg.MaxWorkers = 4

	run := func() Population {
		opt := NewOptimizer(cfg, discovery.DefaultBuilderConfig(), discovery.DefaultDiscoveryConfig(), frames, nil)
		pop, err := opt.Run(context.Background(), 99, nil)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		return pop
	}

	first := run()
	second := run()
	if len(first) != len(second) {
		t.Fatalf("population sizes diverge: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if candidateHash(first[i].Candidate) != candidateHash(second[i].Candidate) {
			t.Fatalf("individual %d: candidate hashes diverge between identical runs", i)
		}
		if first[i].Fitness != second[i].Fitness {
			t.Fatalf("individual %d: fitness diverges between identical runs: %v vs %v",
				i, first[i].Fitness, second[i].Fitness)
		}
	}
}

// TestOffspringDuplicateRejection runs one generation from a seeded
// random population with duplicate detection enabled; each offspring
// accepted into the generation must carry a distinct
// structure-and-parameter hash.
func TestOffspringDuplicateRejection(t *testing.T) {
	frames := testFrames()
	cfg := DefaultAlgorithmConfig()
	cfg.PopulationSize = 4
	cfg.LambdaSize = 4
	cfg.MaxGenerations = 1
	cfg.IslandsCount = 1
	cfg.EnableSDS = false
	cfg.DetectDuplicates = true
	cfg.MaxWorkers = 2

	opt := NewOptimizer(cfg, discovery.DefaultBuilderConfig(), discovery.DefaultDiscoveryConfig(), frames, nil)
	pop, err := opt.Run(context.Background(), 21, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	seen := make(map[string]int)
	for _, ind := range pop {
		if ind.Generation == 0 {
			continue // only offspring pass through the duplicate filter
		}
		h := candidateHash(ind.Candidate)
		seen[h]++
		if seen[h] > 1 {
			t.Fatalf("offspring duplicate survived with hash %q", h)
		}
	}
}
