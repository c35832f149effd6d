package discovery

import (
	"math/rand"

	"github.com/aeroalgo/robots-sub000/internal/strategy"
)

// Mutator applies single structural edits to an existing candidate,
// reusing the same element generators Builder uses during phased
// construction so a mutated candidate remains subject to the identical
// compatibility/eligibility rules as a freshly built one.
type Mutator struct {
	b *Builder
}

// NewMutator builds a Mutator sharing rng, cfg and disc with the
// candidate generator it wraps.
func NewMutator(rng *rand.Rand, cfg BuilderConfig, disc DiscoveryConfig) *Mutator {
	return &Mutator{b: NewBuilder(rng, cfg, disc, nil)}
}

// Reset clears the duplicate-condition memo, which should happen once
// per candidate a Mutator is about to edit since the memo is otherwise
// shared across every candidate that passes through this Mutator.
func (m *Mutator) Reset() {
	m.b.seen = make(map[string]bool)
}

func (m *Mutator) AddIndicator(c *StrategyCandidate) {
	if len(c.Indicators) >= m.b.cfg.Elements.MaxIndicators {
		return
	}
	m.b.addIndicator(c, false)
}

func (m *Mutator) AddEntryCondition(c *StrategyCandidate) {
	if len(c.EntryConditions) >= m.b.cfg.Elements.MaxEntryConditions {
		return
	}
	m.b.addRandomCondition(c, true)
}

func (m *Mutator) AddExitCondition(c *StrategyCandidate) {
	if len(c.ExitConditions) >= m.b.cfg.Elements.MaxExitConditions {
		return
	}
	m.b.addRandomCondition(c, false)
}

func (m *Mutator) AddTimeframe(c *StrategyCandidate) {
	if len(c.Timeframes) >= m.b.cfg.Elements.MaxTimeframes {
		return
	}
	m.b.addTimeframe(c)
}

func (m *Mutator) AddStopHandler(c *StrategyCandidate) {
	if len(c.StopHandlers) >= m.b.cfg.Elements.MaxStopHandlers {
		return
	}
	m.b.addStopHandler(c)
}

func (m *Mutator) AddTakeHandler(c *StrategyCandidate) {
	if len(c.TakeHandlers) >= m.b.cfg.Elements.MaxTakeHandlers {
		return
	}
	m.b.addTakeHandler(c)
}

// RemoveIndicator drops one indicator not referenced by any condition or
// nested binding, if one exists and doing so keeps the candidate at or
// above its configured minimum.
func (m *Mutator) RemoveIndicator(c *StrategyCandidate) {
	if len(c.Indicators) <= m.b.cfg.Elements.MinIndicators {
		return
	}
	used := usedAliases(c)
	var removable []int
	for i, ind := range c.Indicators {
		if !used[ind.Alias] {
			removable = append(removable, i)
		}
	}
	if len(removable) == 0 {
		return
	}
	idx := removable[m.b.rng.Intn(len(removable))]
	c.Indicators = append(c.Indicators[:idx], c.Indicators[idx+1:]...)
}

func usedAliases(c *StrategyCandidate) map[string]bool {
	used := make(map[string]bool)
	markSource := func(s strategy.Source) {
		if s.Kind == strategy.SourceIndicator && s.Alias != "" {
			used[s.Alias] = true
		}
	}
	for _, cb := range c.EntryConditions {
		markSource(cb.Input.Primary)
		markSource(cb.Input.Secondary)
		markSource(cb.Input.Lower)
		markSource(cb.Input.Upper)
	}
	for _, cb := range c.ExitConditions {
		markSource(cb.Input.Primary)
		markSource(cb.Input.Secondary)
		markSource(cb.Input.Lower)
		markSource(cb.Input.Upper)
	}
	for _, ind := range c.Indicators {
		if ind.Source.InputAlias != "" {
			used[ind.Source.InputAlias] = true
		}
	}
	return used
}

func (m *Mutator) RemoveEntryCondition(c *StrategyCandidate) {
	if len(c.EntryConditions) <= m.b.cfg.Elements.MinEntryConditions || len(c.EntryConditions) == 0 {
		return
	}
	idx := m.b.rng.Intn(len(c.EntryConditions))
	c.EntryConditions = append(c.EntryConditions[:idx], c.EntryConditions[idx+1:]...)
}

func (m *Mutator) RemoveExitCondition(c *StrategyCandidate) {
	if len(c.ExitConditions) <= m.b.cfg.Elements.MinExitConditions || len(c.ExitConditions) == 0 {
		return
	}
	idx := m.b.rng.Intn(len(c.ExitConditions))
	c.ExitConditions = append(c.ExitConditions[:idx], c.ExitConditions[idx+1:]...)
}

func (m *Mutator) RemoveStopHandler(c *StrategyCandidate) {
	if len(c.StopHandlers) <= m.b.cfg.Elements.MinStopHandlers {
		return
	}
	idx := m.b.rng.Intn(len(c.StopHandlers))
	c.StopHandlers = append(c.StopHandlers[:idx], c.StopHandlers[idx+1:]...)
}

func (m *Mutator) RemoveTakeHandler(c *StrategyCandidate) {
	if len(c.TakeHandlers) <= m.b.cfg.Elements.MinTakeHandlers {
		return
	}
	idx := m.b.rng.Intn(len(c.TakeHandlers))
	c.TakeHandlers = append(c.TakeHandlers[:idx], c.TakeHandlers[idx+1:]...)
}

// RemoveTimeframe drops one non-base timeframe not referenced by any
// condition, if one exists and the minimum allows it.
func (m *Mutator) RemoveTimeframe(c *StrategyCandidate) {
	if len(c.Timeframes) <= m.b.cfg.Elements.MinTimeframes {
		return
	}
	usedTF := map[string]bool{}
	for _, cb := range c.EntryConditions {
		usedTF[string(cb.Timeframe)] = true
	}
	for _, cb := range c.ExitConditions {
		usedTF[string(cb.Timeframe)] = true
	}
	var removable []int
	for i, tf := range c.Timeframes {
		if tf == c.BaseTimeframe {
			continue
		}
		if !usedTF[string(tf)] {
			removable = append(removable, i)
		}
	}
	if len(removable) == 0 {
		return
	}
	idx := removable[m.b.rng.Intn(len(removable))]
	c.Timeframes = append(c.Timeframes[:idx], c.Timeframes[idx+1:]...)
}

// Finalize re-applies the builder's dependency rules and usage-invariant
// passes after a batch of structural edits, the same closing steps Build
// applies to freshly generated candidates.
func (m *Mutator) Finalize(c *StrategyCandidate) {
	m.b.applyDependencyRules(c)
	m.b.ensureUsageInvariants(c)
}
