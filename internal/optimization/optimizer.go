package optimization

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/aeroalgo/robots-sub000/internal/discovery"
	"github.com/aeroalgo/robots-sub000/internal/indicators"
	"github.com/aeroalgo/robots-sub000/internal/strategy"
	"github.com/aeroalgo/robots-sub000/pkg/types"
)

// diversityMinDistance is the minimum structural-signature Hamming
// distance two accepted individuals must have during environmental
// selection. Low enough that a single condition or handler swap counts
// as diverse; so does a change to one indicator's parameters, since the
// signature keys each indicator by name plus normalized parameters.
// Handler parameter changes never count.
const diversityMinDistance = 2

// Optimizer runs the mu+lambda genetic search over
// discovery.StrategyCandidate individuals: joint structural and
// parameter mutation, hybrid structural crossover, optional SDS
// refinement, diversity-preserving environmental selection, and an
// island-model driver with periodic migration.
type Optimizer struct {
	cfg        AlgorithmConfig
	builderCfg discovery.BuilderConfig
	discCfg    discovery.DiscoveryConfig
	frames     map[types.Timeframe]types.PriceFrame
	logger     *zap.Logger
}

// NewOptimizer constructs an Optimizer over a fixed set of price frames.
func NewOptimizer(cfg AlgorithmConfig, builderCfg discovery.BuilderConfig, discCfg discovery.DiscoveryConfig, frames map[types.Timeframe]types.PriceFrame, logger *zap.Logger) *Optimizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Optimizer{cfg: cfg, builderCfg: builderCfg, discCfg: discCfg, frames: frames, logger: logger}
}

// island is one isolated sub-population, carrying its own deterministic
// RNG stream so islands never race on shared random state.
type island struct {
	id         int
	rng        *rand.Rand
	mutator    *discovery.Mutator
	population Population
	bestEver   float64
	stagnant   int
}

// Run executes the full island-model generational loop and returns the
// final combined population across all islands, sorted by fitness
// descending. existing seeds the initial population when
// cfg.UseExistingStrategies is set.
func (o *Optimizer) Run(ctx context.Context, seed int64, existing []*discovery.StrategyCandidate) (Population, error) {
	if o.cfg.PopulationSize <= 0 {
		return nil, fmt.Errorf("optimization: population size must be > 0")
	}
	islandsCount := o.cfg.IslandsCount
	if islandsCount <= 0 {
		islandsCount = 1
	}

	islands := make([]*island, islandsCount)
	for i := range islands {
		rng := rand.New(rand.NewSource(seed + int64(i)*104729))
		islands[i] = &island{
			id:      i,
			rng:     rng,
			mutator: discovery.NewMutator(rng, o.builderCfg, o.discCfg),
		}
		pop, err := o.initialPopulation(rng, existing)
		if err != nil {
			return nil, err
		}
		islands[i].population = pop
	}

	evaluator := NewEvaluator(o.frames, o.discCfg.BaseTimeframe, 10000, o.logger)

	for gen := 0; gen < o.cfg.MaxGenerations; gen++ {
		select {
		case <-ctx.Done():
			return o.combineIslands(islands), ctx.Err()
		default:
		}

		for _, isl := range islands {
			o.evaluatePopulation(isl.population, evaluator)
			next, err := o.advanceGeneration(isl, evaluator, gen)
			if err != nil {
				return nil, err
			}
			isl.population = next
		}

		if islandsCount > 1 && o.cfg.MigrationInterval > 0 && gen > 0 && gen%o.cfg.MigrationInterval == 0 {
			o.migrate(islands)
		}
	}

	return o.combineIslands(islands), nil
}

func (o *Optimizer) combineIslands(islands []*island) Population {
	var all Population
	for _, isl := range islands {
		all = append(all, isl.population...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Fitness > all[j].Fitness })
	return all
}

// migrate exchanges the top migration_rate fraction of each island's
// population with its ring-neighbor.
func (o *Optimizer) migrate(islands []*island) {
	n := len(islands)
	if n < 2 {
		return
	}
	k := int(float64(o.cfg.PopulationSize) * o.cfg.MigrationRate)
	if k <= 0 {
		return
	}
	migrants := make([]Population, n)
	for i, isl := range islands {
		sort.Slice(isl.population, func(a, b int) bool { return isl.population[a].Fitness > isl.population[b].Fitness })
		count := k
		if count > len(isl.population) {
			count = len(isl.population)
		}
		clones := make(Population, count)
		for j := 0; j < count; j++ {
			clones[j] = isl.population[j].Clone()
		}
		migrants[i] = clones
	}
	for i, isl := range islands {
		incoming := migrants[(i-1+n)%n]
		if len(incoming) == 0 || len(isl.population) == 0 {
			continue
		}
		sort.Slice(isl.population, func(a, b int) bool { return isl.population[a].Fitness < isl.population[b].Fitness })
		for j, m := range incoming {
			if j >= len(isl.population) {
				break
			}
			m.IslandID = isl.id
			isl.population[j] = m
		}
	}
}

// initialPopulation builds PopulationSize individuals: when
// UseExistingStrategies is set, clones each of existing once (at most
// PopulationSize of them), then fills the remainder with fresh random
// candidates from a discovery.Builder.
func (o *Optimizer) initialPopulation(rng *rand.Rand, existing []*discovery.StrategyCandidate) (Population, error) {
	pop := make(Population, 0, o.cfg.PopulationSize)
	if o.cfg.UseExistingStrategies && len(existing) > 0 {
		for i := 0; i < o.cfg.PopulationSize && i < len(existing); i++ {
			pop = append(pop, &Individual{Candidate: existing[i%len(existing)].Clone()})
		}
	}
	builder := discovery.NewBuilder(rng, o.builderCfg, o.discCfg, o.logger)
	for len(pop) < o.cfg.PopulationSize {
		c, err := builder.Build()
		if err != nil {
			return nil, fmt.Errorf("optimization: building initial population: %w", err)
		}
		pop = append(pop, &Individual{Candidate: c})
	}
	return pop, nil
}

// evaluatePopulation evaluates every not-yet-evaluated individual in
// parallel across a worker pool bounded by a semaphore. Each worker constructs its own
// Evaluator call (stateless here; the runtime.Evaluator it builds
// per-candidate is never shared), so there is no cross-worker
// contention.
func (o *Optimizer) evaluatePopulation(pop Population, evaluator *Evaluator) {
	workers := o.cfg.ParallelWorkers()
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for _, ind := range pop {
		if ind.Evaluated || ind.FailureReason != "" {
			continue
		}
		wg.Add(1)
		go func(ind *Individual) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			result := evaluator.Evaluate(ind.Candidate, o.cfg.FitnessThresholds, o.cfg.FitnessWeights)
			ind.Report = result.Report
			ind.Fitness = result.Fitness
			ind.Evaluated = result.Evaluated
			ind.FailureReason = result.FailureReason
		}(ind)
	}
	wg.Wait()
}

// advanceGeneration performs one full mu+lambda cycle for a single
// island: parent selection, hybrid structural crossover, structural and
// parameter mutation, optional SDS refinement, and diversity-preserving
// environmental selection with elitism. Returns the next generation's
// population (already evaluated).
func (o *Optimizer) advanceGeneration(isl *island, evaluator *Evaluator, gen int) (Population, error) {
	lambda := o.cfg.LambdaSize
	if lambda <= 0 {
		lambda = o.cfg.PopulationSize
	}

	seenHashes := make(map[string]bool)
	if o.cfg.DetectDuplicates {
		for _, ind := range isl.population {
			seenHashes[candidateHash(ind.Candidate)] = true
		}
	}

	offspring := make(Population, 0, lambda)
	attempts := 0
	maxAttempts := lambda * 20
	for len(offspring) < lambda && attempts < maxAttempts {
		attempts++
		p1 := selectParent(isl.population, isl.rng)
		p2 := selectParent(isl.population, isl.rng)

		child1, child2 := p1.Candidate.Clone(), p2.Candidate.Clone()
		if isl.rng.Float64() < o.cfg.CrossoverRate {
			child1, child2 = o.crossover(child1, child2, isl.rng)
		}

		for _, child := range []*discovery.StrategyCandidate{child1, child2} {
			if len(offspring) >= lambda {
				break
			}
			o.structuralMutate(isl.mutator, child, isl.rng)
			o.parameterMutate(child, isl.rng)
			isl.mutator.Finalize(child)

			// stop filtering once the neighborhood is saturated with
			// duplicates, rather than spinning forever on a tiny search
			// space
			if o.cfg.DetectDuplicates && attempts < maxAttempts {
				h := candidateHash(child)
				if seenHashes[h] {
					continue
				}
				seenHashes[h] = true
			}
			offspring = append(offspring, &Individual{Candidate: child, Generation: gen + 1, IslandID: isl.id})
		}
	}

	o.evaluatePopulation(offspring, evaluator)

	if o.cfg.EnableSDS {
		o.sdsRefine(offspring, isl.rng, evaluator)
	}

	combined := make(Population, 0, len(isl.population)+len(offspring))
	combined = append(combined, isl.population...)
	combined = append(combined, offspring...)
	sort.Slice(combined, func(i, j int) bool { return combined[i].Fitness > combined[j].Fitness })

	next := environmentalSelect(combined, o.cfg.PopulationSize, o.cfg.ElitismCount)

	best := next.Best()
	if best != nil && best.Fitness > isl.bestEver {
		isl.bestEver = best.Fitness
		isl.stagnant = 0
	} else {
		isl.stagnant++
	}

	if o.cfg.RestartOnStagnation > 0 && isl.stagnant >= o.cfg.RestartOnStagnation {
		next = o.injectFreshBlood(next, isl, evaluator)
		isl.stagnant = 0
	}

	return next, nil
}

// injectFreshBlood replaces the weakest fresh_blood_rate fraction of the
// population with newly generated random individuals, re-evaluated
// before being folded back in.
func (o *Optimizer) injectFreshBlood(pop Population, isl *island, evaluator *Evaluator) Population {
	count := int(float64(len(pop)) * o.cfg.FreshBloodRate)
	if count <= 0 {
		return pop
	}
	sort.Slice(pop, func(i, j int) bool { return pop[i].Fitness > pop[j].Fitness })
	builder := discovery.NewBuilder(isl.rng, o.builderCfg, o.discCfg, o.logger)
	fresh := make(Population, 0, count)
	for i := 0; i < count && i < len(pop); i++ {
		c, err := builder.Build()
		if err != nil {
			continue
		}
		fresh = append(fresh, &Individual{Candidate: c, IslandID: isl.id})
	}
	o.evaluatePopulation(fresh, evaluator)
	keep := len(pop) - len(fresh)
	if keep < 0 {
		keep = 0
	}
	out := make(Population, 0, len(pop))
	out = append(out, pop[:keep]...)
	out = append(out, fresh...)
	return out
}

// selectParent implements fitness-proportional roulette selection over
// the sum of positive fitness values; falls back to uniform random when
// the total is zero.
func selectParent(pop Population, rng *rand.Rand) *Individual {
	var total float64
	for _, ind := range pop {
		if ind.Fitness > 0 {
			total += ind.Fitness
		}
	}
	if total <= 0 {
		return pop[rng.Intn(len(pop))]
	}
	target := rng.Float64() * total
	var cum float64
	for _, ind := range pop {
		if ind.Fitness <= 0 {
			continue
		}
		cum += ind.Fitness
		if cum >= target {
			return ind
		}
	}
	return pop[len(pop)-1]
}

// environmentalSelect sorts combined by fitness descending, unconditionally
// keeps the top elitismCount individuals, then accepts further
// individuals only if their structural signature differs from every
// already-accepted individual by at least diversityMinDistance,
// falling back to fitness-only truncation if the diversity filter
// cannot fill the population.
func environmentalSelect(combined Population, mu, elitismCount int) Population {
	if len(combined) <= mu {
		return combined
	}
	sort.Slice(combined, func(i, j int) bool { return combined[i].Fitness > combined[j].Fitness })

	next := make(Population, 0, mu)
	var signatures []discovery.Signature
	if elitismCount > mu {
		elitismCount = mu
	}
	for i := 0; i < elitismCount && i < len(combined); i++ {
		next = append(next, combined[i])
		signatures = append(signatures, discovery.StructuralSignature(combined[i].Candidate))
	}

	for _, ind := range combined[minInt(elitismCount, len(combined)):] {
		if len(next) >= mu {
			break
		}
		sig := discovery.StructuralSignature(ind.Candidate)
		diverse := true
		for _, accepted := range signatures {
			if sig.Distance(accepted) < diversityMinDistance {
				diverse = false
				break
			}
		}
		if diverse {
			next = append(next, ind)
			signatures = append(signatures, sig)
		}
	}

	if len(next) < mu {
		seen := make(map[*Individual]bool, len(next))
		for _, ind := range next {
			seen[ind] = true
		}
		for _, ind := range combined {
			if len(next) >= mu {
				break
			}
			if !seen[ind] {
				next = append(next, ind)
			}
		}
	}
	return next
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// candidateHash is the duplicate-detection key: the structural
// signature hash plus every indicator parameter value, so two individuals
// sharing a topology but differing in indicator parameters are not
// treated as duplicates. Handler parameter values and condition weights,
// percents and parameters are not part of the key.
func candidateHash(c *discovery.StrategyCandidate) string {
	h := discovery.StructuralSignature(c).Hash()
	var params []string
	for _, ind := range c.Indicators {
		for _, spec := range ind.Source.Params.Specs() {
			params = append(params, ind.Alias+"."+spec.Name+"="+strconv.FormatFloat(spec.Current, 'g', -1, 64))
		}
	}
	sort.Strings(params)
	for _, p := range params {
		h += "|" + p
	}
	return h
}

// --- structural crossover ---

func (o *Optimizer) crossover(child1, child2 *discovery.StrategyCandidate, rng *rand.Rand) (*discovery.StrategyCandidate, *discovery.StrategyCandidate) {
	if rng.Float64() < 0.5 {
		child1.Indicators, child2.Indicators = child2.Indicators, child1.Indicators
		filterAndMergeConditions(child1)
		filterAndMergeConditions(child2)
	} else {
		child1.EntryConditions, child2.EntryConditions = singlePointCrossover(child1.EntryConditions, child2.EntryConditions, rng)
		child1.ExitConditions, child2.ExitConditions = singlePointCrossover(child1.ExitConditions, child2.ExitConditions, rng)
		pruneInvalidConditions(child1)
		pruneInvalidConditions(child2)
	}

	if rng.Float64() < 0.5 {
		child1.StopHandlers, child2.StopHandlers = child2.StopHandlers, child1.StopHandlers
	}
	if rng.Float64() < 0.5 {
		child1.TakeHandlers, child2.TakeHandlers = child2.TakeHandlers, child1.TakeHandlers
	}

	child1.Timeframes, child2.Timeframes = child2.Timeframes, child1.Timeframes
	reassignIndicatorsToTimeframeRange(child1)
	reassignIndicatorsToTimeframeRange(child2)
	pruneInvalidConditions(child1)
	pruneInvalidConditions(child2)

	return child1, child2
}

// filterAndMergeConditions is the post-indicator-swap step of the
// "wholesale swap" crossover variant. The swap exchanges indicator sets
// in place, so each child keeps its own pre-swap condition lists; this
// step drops the conditions whose referenced aliases are absent from the
// new indicator set. It does not append any of the other parent's
// conditions.
func filterAndMergeConditions(c *discovery.StrategyCandidate) {
	pruneInvalidConditions(c)
}

// pruneInvalidConditions drops any condition whose referenced indicator
// alias (primary/secondary/lower/upper) no longer exists in the
// candidate's indicator set, preserving the alias-integrity invariant
// that every structural operation must maintain.
func pruneInvalidConditions(c *discovery.StrategyCandidate) {
	aliases := c.IndicatorAliases()
	valid := func(s strategy.Source) bool {
		return s.Kind != strategy.SourceIndicator || aliases[s.Alias]
	}
	keepEntry := c.EntryConditions[:0:0]
	for _, cb := range c.EntryConditions {
		if valid(cb.Input.Primary) && valid(cb.Input.Secondary) && valid(cb.Input.Lower) && valid(cb.Input.Upper) {
			keepEntry = append(keepEntry, cb)
		}
	}
	c.EntryConditions = keepEntry

	keepExit := c.ExitConditions[:0:0]
	for _, cb := range c.ExitConditions {
		if valid(cb.Input.Primary) && valid(cb.Input.Secondary) && valid(cb.Input.Lower) && valid(cb.Input.Upper) {
			keepExit = append(keepExit, cb)
		}
	}
	c.ExitConditions = keepExit
}

// singlePointCrossover exchanges the tails of two condition-binding
// slices at a random split point (the keep-indicators crossover variant;
// entry and exit condition lists cross independently).
func singlePointCrossover(a, b []strategy.ConditionBinding, rng *rand.Rand) ([]strategy.ConditionBinding, []strategy.ConditionBinding) {
	if len(a) == 0 || len(b) == 0 {
		return a, b
	}
	splitA := rng.Intn(len(a) + 1)
	splitB := rng.Intn(len(b) + 1)
	childA := append(append([]strategy.ConditionBinding{}, a[:splitA]...), b[splitB:]...)
	childB := append(append([]strategy.ConditionBinding{}, b[:splitB]...), a[splitA:]...)
	return childA, childB
}

// reassignIndicatorsToTimeframeRange drops any indicator whose timeframe
// exceeds the candidate's new timeframe set's longest duration. A stray
// indicator is kept only if its timeframe fits within the candidate's
// new timeframe range.
func reassignIndicatorsToTimeframeRange(c *discovery.StrategyCandidate) {
	if len(c.Timeframes) == 0 {
		return
	}
	maxDur := c.Timeframes[0].Duration()
	for _, tf := range c.Timeframes[1:] {
		if tf.Duration() > maxDur {
			maxDur = tf.Duration()
		}
	}
	kept := c.Indicators[:0:0]
	for _, ind := range c.Indicators {
		if ind.Timeframe.Duration() <= maxDur {
			kept = append(kept, ind)
		}
	}
	c.Indicators = kept
}

// --- structural mutation ---

// structuralMutate applies, independently per element class and with
// probability MutationRate, one add-or-remove edit.
func (o *Optimizer) structuralMutate(m *discovery.Mutator, c *discovery.StrategyCandidate, rng *rand.Rand) {
	m.Reset()
	rate := o.cfg.MutationRate
	flip := func(add, remove func(*discovery.StrategyCandidate)) {
		if rng.Float64() >= rate {
			return
		}
		if rng.Float64() < 0.5 {
			add(c)
		} else {
			remove(c)
		}
	}
	flip(m.AddIndicator, m.RemoveIndicator)
	flip(m.AddEntryCondition, m.RemoveEntryCondition)
	flip(m.AddExitCondition, m.RemoveExitCondition)
	flip(m.AddStopHandler, m.RemoveStopHandler)
	flip(m.AddTakeHandler, m.RemoveTakeHandler)
	flip(m.AddTimeframe, m.RemoveTimeframe)
	pruneInvalidConditions(c)
}

// --- parameter mutation ---

// parameterMutate perturbs, each with probability MutationRate, every
// scalar parameter: an indicator parameter by a random fraction of its
// declared range; a condition's weight, percent and parameters by a
// random fraction of a fixed range ([0.1,5], [0.1,50] and [0,4v+1]); and
// a handler parameter by a random fraction of its current value. Results
// are clamped to those ranges (handler values only to >= 0).
func (o *Optimizer) parameterMutate(c *discovery.StrategyCandidate, rng *rand.Rand) {
	rate := o.cfg.MutationRate
	minPct, maxPct := o.cfg.ParamMutationMinPercent, o.cfg.ParamMutationMaxPercent
	if maxPct <= 0 {
		maxPct = 0.2
	}

	for i := range c.Indicators {
		ps := c.Indicators[i].Source.Params
		specs := append([]indicators.ParameterSpec(nil), ps.Specs()...)
		for j := range specs {
			if rng.Float64() >= rate {
				continue
			}
			specs[j].Current = mutateWithinRange(rng, specs[j].Current, specs[j].Range.Start, specs[j].Range.End, minPct, maxPct)
			if specs[j].Type == indicators.ParamPeriod {
				specs[j].Current = math.Round(specs[j].Current)
			}
		}
		c.Indicators[i].Source.Params = indicators.NewParameterSet(specs...)
	}

	mutateHandlerParams := func(params map[string]float64) {
		// sorted keys, so a seeded rng is consumed in the same order on
		// every run
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			v := params[k]
			if rng.Float64() >= rate {
				continue
			}
			frac := minPct + rng.Float64()*(maxPct-minPct)
			sign := 1.0
			if rng.Float64() < 0.5 {
				sign = -1
			}
			nv := v + sign*frac*math.Max(math.Abs(v), 1e-6)
			if nv < 0 {
				nv = 0
			}
			params[k] = nv
		}
	}
	for i := range c.StopHandlers {
		mutateHandlerParams(c.StopHandlers[i].Params)
	}
	for i := range c.TakeHandlers {
		mutateHandlerParams(c.TakeHandlers[i].Params)
	}

	for i := range c.EntryConditions {
		mutateConditionScalars(&c.EntryConditions[i], rng, rate, minPct, maxPct)
	}
	for i := range c.ExitConditions {
		mutateConditionScalars(&c.ExitConditions[i], rng, rate, minPct, maxPct)
	}
}

func mutateConditionScalars(cb *strategy.ConditionBinding, rng *rand.Rand, rate, minPct, maxPct float64) {
	if rng.Float64() < rate {
		cb.Weight = math.Max(0.1, mutateWithinRange(rng, cb.Weight, 0.1, 5, minPct, maxPct))
	}
	if cb.Input.Shape == strategy.ShapeDualWithPercent && rng.Float64() < rate {
		cb.Input.Percent = math.Max(0.1, mutateWithinRange(rng, cb.Input.Percent, 0.1, 50, minPct, maxPct))
	}
	// sorted keys, so a seeded rng is consumed in the same order on every
	// run
	keys := make([]string, 0, len(cb.Parameters))
	for k := range cb.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := cb.Parameters[k]
		if rng.Float64() >= rate {
			continue
		}
		cb.Parameters[k] = math.Max(0, mutateWithinRange(rng, v, 0, v*4+1, minPct, maxPct))
	}
}

// mutateWithinRange perturbs current by a random fraction of [lo,hi]'s
// span, in a random direction, clamped back to [lo,hi].
func mutateWithinRange(rng *rand.Rand, current, lo, hi, minPct, maxPct float64) float64 {
	span := hi - lo
	if span <= 0 {
		return current
	}
	frac := minPct + rng.Float64()*(maxPct-minPct)
	delta := frac * span
	if rng.Float64() < 0.5 {
		delta = -delta
	}
	nv := current + delta
	if nv < lo {
		nv = lo
	}
	if nv > hi {
		nv = hi
	}
	return nv
}

// --- Stochastic Diffusion Search refinement ---

// sdsRefine implements the "hypothesis passing" step: each individual
// probabilistically copies one indicator parameter from a randomly
// chosen higher-fitness partner sharing at least one indicator kernel
// name, then is re-evaluated. Bounded to cfg.SDSPasses rounds. The
// donor parameter is picked uniformly over shared-kernel pairs to keep
// the hypothesis-copying step unbiased.
func (o *Optimizer) sdsRefine(pop Population, rng *rand.Rand, evaluator *Evaluator) {
	passes := o.cfg.SDSPasses
	if passes <= 0 {
		passes = 1
	}
	for pass := 0; pass < passes; pass++ {
		changed := false
		for _, ind := range pop {
			if rng.Float64() >= 0.3 {
				continue
			}
			partner := pop[rng.Intn(len(pop))]
			if partner == ind || partner.Fitness <= ind.Fitness {
				continue
			}
			if copyRandomIndicatorParam(ind.Candidate, partner.Candidate, rng) {
				changed = true
				ind.Evaluated = false
				ind.FailureReason = ""
			}
		}
		if !changed {
			continue
		}
		o.evaluatePopulation(pop, evaluator)
	}
}

// copyRandomIndicatorParam copies one parameter's current value from a
// src indicator into a dst indicator of the same kernel name, chosen
// uniformly among the aliases the two candidates share a kernel name
// for. Returns whether a copy happened.
func copyRandomIndicatorParam(dst, src *discovery.StrategyCandidate, rng *rand.Rand) bool {
	type pair struct{ di, si int }
	var candidates []pair
	for di, d := range dst.Indicators {
		for si, s := range src.Indicators {
			if d.Source.Name == s.Source.Name {
				candidates = append(candidates, pair{di, si})
			}
		}
	}
	if len(candidates) == 0 {
		return false
	}
	p := candidates[rng.Intn(len(candidates))]
	srcSpecs := src.Indicators[p.si].Source.Params.Specs()
	if len(srcSpecs) == 0 {
		return false
	}
	pick := srcSpecs[rng.Intn(len(srcSpecs))]
	dst.Indicators[p.di].Source.Params = dst.Indicators[p.di].Source.Params.WithValue(pick.Name, pick.Current)
	return true
}

// --- per-structure optimizer ---

// PerStructureOptimizer runs the genetic loop over parameters only for
// each of a list of already-generated structures in isolation: all
// structural probabilities are implicitly zero (no crossover/mutation of
// topology).
type PerStructureOptimizer struct {
	cfg    AlgorithmConfig
	frames map[types.Timeframe]types.PriceFrame
	logger *zap.Logger
}

// NewPerStructureOptimizer constructs a PerStructureOptimizer.
func NewPerStructureOptimizer(cfg AlgorithmConfig, frames map[types.Timeframe]types.PriceFrame, logger *zap.Logger) *PerStructureOptimizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PerStructureOptimizer{cfg: cfg, frames: frames, logger: logger}
}

// OptimizeStructure searches the parameter space of one fixed topology
// and returns every individual that clears the fitness thresholds.
func (p *PerStructureOptimizer) OptimizeStructure(ctx context.Context, structure *discovery.StrategyCandidate, baseTimeframe types.Timeframe, seed int64) (Population, error) {
	rng := rand.New(rand.NewSource(seed))
	evaluator := NewEvaluator(p.frames, baseTimeframe, 10000, p.logger)

	pop := make(Population, 0, p.cfg.PopulationSize)
	for i := 0; i < p.cfg.PopulationSize; i++ {
		c := structure.Clone()
		randomizeIndicatorParams(c, rng)
		pop = append(pop, &Individual{Candidate: c})
	}
	p.evaluateAll(pop, evaluator)

	for gen := 0; gen < p.cfg.MaxGenerations; gen++ {
		select {
		case <-ctx.Done():
			return filterPassing(pop), ctx.Err()
		default:
		}

		lambda := p.cfg.LambdaSize
		if lambda <= 0 {
			lambda = p.cfg.PopulationSize
		}
		offspring := make(Population, 0, lambda)
		for len(offspring) < lambda {
			parent1 := selectParent(pop, rng)
			parent2 := selectParent(pop, rng)
			child := parameterCrossover(parent1.Candidate, parent2.Candidate, rng)
			mutateParametersOnly(child, rng, p.cfg.MutationRate, p.cfg.ParamMutationMinPercent, p.cfg.ParamMutationMaxPercent)
			offspring = append(offspring, &Individual{Candidate: child, Generation: gen + 1})
		}
		p.evaluateAll(offspring, evaluator)

		combined := append(append(Population{}, pop...), offspring...)
		sort.Slice(combined, func(i, j int) bool { return combined[i].Fitness > combined[j].Fitness })
		if len(combined) > p.cfg.PopulationSize {
			combined = combined[:p.cfg.PopulationSize]
		}
		pop = combined
	}

	return filterPassing(pop), nil
}

func (p *PerStructureOptimizer) evaluateAll(pop Population, evaluator *Evaluator) {
	workers := p.cfg.ParallelWorkers()
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for _, ind := range pop {
		wg.Add(1)
		go func(ind *Individual) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			result := evaluator.Evaluate(ind.Candidate, p.cfg.FitnessThresholds, p.cfg.FitnessWeights)
			ind.Report, ind.Fitness, ind.Evaluated, ind.FailureReason = result.Report, result.Fitness, result.Evaluated, result.FailureReason
		}(ind)
	}
	wg.Wait()
}

func filterPassing(pop Population) Population {
	var out Population
	for _, ind := range pop {
		if ind.Fitness > 0 {
			out = append(out, ind)
		}
	}
	return out
}

// randomizeIndicatorParams re-jitters every indicator parameter's
// current value uniformly within its declared range, giving each
// per-structure-optimizer seed individual a distinct starting point.
func randomizeIndicatorParams(c *discovery.StrategyCandidate, rng *rand.Rand) {
	for i := range c.Indicators {
		specs := append([]indicators.ParameterSpec(nil), c.Indicators[i].Source.Params.Specs()...)
		for j := range specs {
			if specs[j].Range.End > specs[j].Range.Start {
				specs[j].Current = specs[j].Range.Start + rng.Float64()*(specs[j].Range.End-specs[j].Range.Start)
			}
		}
		c.Indicators[i].Source.Params = indicators.NewParameterSet(specs...)
	}
}

// parameterCrossover performs uniform per-parameter crossover between two
// same-topology candidates, picking each indicator's parameter set from
// one parent or the other at random.
func parameterCrossover(a, b *discovery.StrategyCandidate, rng *rand.Rand) *discovery.StrategyCandidate {
	child := a.Clone()
	for i := range child.Indicators {
		if i < len(b.Indicators) && rng.Float64() < 0.5 {
			child.Indicators[i].Source.Params = b.Indicators[i].Source.Params.Clone()
		}
	}
	return child
}

// mutateParametersOnly applies the same range-bound perturbation as
// parameterMutate's indicator loop, without touching structure.
func mutateParametersOnly(c *discovery.StrategyCandidate, rng *rand.Rand, rate, minPct, maxPct float64) {
	if maxPct <= 0 {
		maxPct = 0.2
	}
	for i := range c.Indicators {
		specs := append([]indicators.ParameterSpec(nil), c.Indicators[i].Source.Params.Specs()...)
		for j := range specs {
			if rng.Float64() >= rate {
				continue
			}
			specs[j].Current = mutateWithinRange(rng, specs[j].Current, specs[j].Range.Start, specs[j].Range.End, minPct, maxPct)
			if specs[j].Type == indicators.ParamPeriod {
				specs[j].Current = math.Round(specs[j].Current)
			}
		}
		c.Indicators[i].Source.Params = indicators.NewParameterSet(specs...)
	}
}
