package discovery

import (
	"math/rand"
	"testing"
)

func TestBuilderProducesValidCandidate(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	b := NewBuilder(rng, DefaultBuilderConfig(), DefaultDiscoveryConfig(), nil)

	for i := 0; i < 25; i++ {
		c, err := b.Build()
		if err != nil {
			t.Fatalf("Build() iteration %d: %v", i, err)
		}
		if len(c.Indicators) == 0 {
			t.Fatalf("iteration %d: candidate has no indicators", i)
		}
		if len(c.EntryConditions) == 0 {
			t.Fatalf("iteration %d: candidate has no entry conditions", i)
		}
		if len(c.StopHandlers) == 0 {
			t.Fatalf("iteration %d: candidate has no stop handlers", i)
		}

		aliases := c.IndicatorAliases()
		for _, cb := range c.EntryConditions {
			if cb.Input.Primary.Alias != "" && !aliases[cb.Input.Primary.Alias] {
				t.Fatalf("iteration %d: entry condition %s references unknown alias %q", i, cb.ID, cb.Input.Primary.Alias)
			}
		}
	}
}

func TestStructuralSignatureDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	b := NewBuilder(rng, DefaultBuilderConfig(), DefaultDiscoveryConfig(), nil)
	c, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	sig1 := StructuralSignature(c)
	sig2 := StructuralSignature(c)
	if sig1.Hash() != sig2.Hash() {
		t.Fatalf("signature hash is not stable across calls: %q vs %q", sig1.Hash(), sig2.Hash())
	}
	if sig1.Distance(sig2) != 0 {
		t.Fatalf("identical candidates should have distance 0, got %d", sig1.Distance(sig2))
	}
}

func TestSignatureDistanceDetectsDivergence(t *testing.T) {
	a := Signature{Indicators: []string{"SMA|period=10;"}, Conditions: []string{"entry|Above|a|b|close|1h"}}
	b := Signature{Indicators: []string{"EMA|period=10;"}, Conditions: []string{"entry|Above|a|b|close|1h"}}
	if d := a.Distance(b); d != 2 {
		t.Fatalf("expected distance 2 for one differing indicator, got %d", d)
	}
}

func TestClonedCandidateIsIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	b := NewBuilder(rng, DefaultBuilderConfig(), DefaultDiscoveryConfig(), nil)
	c, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	clone := c.Clone()
	clone.Indicators[0].Source.Params = clone.Indicators[0].Source.Params.WithValue(clone.Indicators[0].Source.Params.Specs()[0].Name, 999)
	if c.Indicators[0].Source.Params.Specs()[0].Current == 999 {
		t.Fatalf("mutating clone affected original candidate")
	}
}

func TestMaterializeBuildsRunnableDefinition(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	b := NewBuilder(rng, DefaultBuilderConfig(), DefaultDiscoveryConfig(), nil)
	c, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	def, err := Materialize(c, "candidate_11", 1)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if len(def.EntryRules) != 1 {
		t.Fatalf("expected exactly one entry rule, got %d", len(def.EntryRules))
	}
	if len(def.StopHandlers) == 0 {
		t.Fatalf("expected at least one stop handler")
	}
}
