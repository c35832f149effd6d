package discovery

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aeroalgo/robots-sub000/internal/indicators"
	"github.com/aeroalgo/robots-sub000/internal/runtime"
	"github.com/aeroalgo/robots-sub000/internal/strategy"
	"github.com/aeroalgo/robots-sub000/pkg/types"
)

// nonAuxiliaryKernelNames is computed once per Builder; the registry is
// read-mostly and populated at init. Names are sorted because the
// registry lists them in no fixed order, and a seeded rng must pick the
// same kernels on every run.
func nonAuxiliaryKernelNames() []string {
	var out []string
	for _, name := range indicators.Names() {
		if eligibleForCandidate(name) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Builder generates random StrategyCandidate topologies under a
// BuilderConfig and DiscoveryConfig via phased
// construction: a minimal phase-1 skeleton,
// followed by probabilistically continued phases that add indicators,
// conditions, timeframes and handlers subject to per-element maxima.
type Builder struct {
	rng    *rand.Rand
	cfg    BuilderConfig
	disc   DiscoveryConfig
	logger *zap.Logger

	kernelNames []string
	seen        map[string]bool // structural hashes already emitted this build, for duplicate-condition rejection
}

// NewBuilder constructs a Builder. rng must not be nil; callers seed it
// deterministically for reproducible discovery.
func NewBuilder(rng *rand.Rand, cfg BuilderConfig, disc DiscoveryConfig, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{rng: rng, cfg: cfg, disc: disc, logger: logger, kernelNames: nonAuxiliaryKernelNames(), seen: make(map[string]bool)}
}

// Build generates one random, structurally valid candidate. Structural
// mutation's "add one element" operators reuse the same per-element
// generators, constrained to the candidate being edited (see Mutator).
func (b *Builder) Build() (*StrategyCandidate, error) {
	c := &StrategyCandidate{
		ID:            uuid.New().String(),
		BaseTimeframe: b.disc.BaseTimeframe,
		Timeframes:    []types.Timeframe{b.disc.BaseTimeframe},
		Discovery:     b.disc,
	}
	b.seen = make(map[string]bool)

	if len(b.kernelNames) == 0 {
		return nil, fmt.Errorf("discovery: no indicator kernels registered")
	}

	// Phase 1: minimal valid skeleton.
	alias, err := b.addIndicator(c, true)
	if err != nil {
		return nil, err
	}
	if err := b.addEntryConditionFor(c, alias); err != nil {
		return nil, err
	}
	b.addStopHandler(c)

	// Subsequent phases, continued with decaying probability.
	continueProb := b.cfg.Probabilities.ContinueBuilding
	for phase := 1; phase < b.cfg.MaxPhases; phase++ {
		if b.rng.Float64() >= continueProb {
			break
		}
		b.buildPhase(c)
		continueProb *= b.cfg.Probabilities.ContinueDecay
	}

	b.applyDependencyRules(c)
	b.enforceMinimums(c)
	b.ensureUsageInvariants(c)
	return c, nil
}

func (b *Builder) buildPhase(c *StrategyCandidate) {
	p := b.cfg.Probabilities
	e := b.cfg.Elements

	if len(c.Indicators) < e.MaxIndicators && b.rng.Float64() < p.AddIndicator {
		b.addIndicator(c, false)
	}
	if len(c.EntryConditions) < e.MaxEntryConditions && b.rng.Float64() < p.AddEntryCondition {
		b.addRandomCondition(c, true)
	}
	if len(c.ExitConditions) < e.MaxExitConditions && b.rng.Float64() < p.AddExitCondition {
		b.addRandomCondition(c, false)
	}
	if len(c.Timeframes) < e.MaxTimeframes && b.rng.Float64() < p.AddTimeframe {
		b.addTimeframe(c)
	}
	if len(c.StopHandlers) < e.MaxStopHandlers && b.rng.Float64() < p.AddStopHandler {
		b.addStopHandler(c)
	}
	if len(c.TakeHandlers) < e.MaxTakeHandlers && b.rng.Float64() < p.AddTakeHandler {
		b.addTakeHandler(c)
	}
}

// addIndicator picks a random eligible indicator, gives it a fresh alias,
// binds it to a random already-present timeframe, and appends it. When
// phase1 is true, volatility/volume indicators are excluded. Returns the new alias.
func (b *Builder) addIndicator(c *StrategyCandidate, phase1 bool) (string, error) {
	candidates := b.kernelNames
	if phase1 {
		candidates = filterNames(b.kernelNames, eligibleForPhase1)
		if len(candidates) == 0 {
			candidates = b.kernelNames
		}
	}
	name := candidates[b.rng.Intn(len(candidates))]
	meta, _ := indicators.MetadataFor(name)
	params := meta.ParameterSet.Clone()
	randomizeParams(b.rng, &params)

	tf := c.Timeframes[b.rng.Intn(len(c.Timeframes))]
	alias := fmt.Sprintf("%s_%d", name, len(c.Indicators)+1)

	// Optionally nest on a randomly chosen existing indicator of any
	// category (e.g. SMA over an RSI series, which then acts as an
	// oscillator proxy).
	if b.disc.AllowIndicatorOnIndicator && len(c.Indicators) > 0 && b.rng.Float64() < 0.25 {
		if depth := b.nestingDepthBudget(c); depth > 0 {
			input := c.Indicators[b.rng.Intn(len(c.Indicators))]
			c.Indicators = append(c.Indicators, runtime.IndicatorBinding{
				Alias:     alias,
				Timeframe: input.Timeframe,
				Source: runtime.BindingSource{
					Kind:       runtime.SourceNested,
					Name:       name,
					Params:     params,
					InputAlias: input.Alias,
				},
			})
			return alias, nil
		}
	}

	c.Indicators = append(c.Indicators, runtime.IndicatorBinding{
		Alias:     alias,
		Timeframe: tf,
		Source:    runtime.BindingSource{Kind: runtime.SourceRegistry, Name: name, Params: params},
	})
	return alias, nil
}

// nestingDepthBudget returns how many more levels of nesting are allowed
// before max_indicator_depth is hit, computed from the longest existing
// nested chain.
func (b *Builder) nestingDepthBudget(c *StrategyCandidate) int {
	byAlias := make(map[string]runtime.IndicatorBinding, len(c.Indicators))
	for _, ind := range c.Indicators {
		byAlias[ind.Alias] = ind
	}
	depthOf := func(alias string) int {
		depth := 0
		cur := alias
		for depth < b.disc.MaxIndicatorDepth+1 {
			ind, ok := byAlias[cur]
			if !ok || ind.Source.Kind != runtime.SourceNested {
				break
			}
			depth++
			cur = ind.Source.InputAlias
		}
		return depth
	}
	maxDepth := 0
	for _, ind := range c.Indicators {
		if d := depthOf(ind.Alias); d > maxDepth {
			maxDepth = d
		}
	}
	return b.disc.MaxIndicatorDepth - maxDepth
}

func filterNames(names []string, pred func(string) bool) []string {
	var out []string
	for _, n := range names {
		if pred(n) {
			out = append(out, n)
		}
	}
	return out
}

// randomizeParams jitters every parameter's current value uniformly
// within its range, giving each generated candidate a distinct starting
// parameterization rather than always the kernel's bare defaults.
func randomizeParams(rng *rand.Rand, ps *indicators.ParameterSet) {
	specs := ps.Specs()
	for i := range specs {
		r := specs[i].Range
		if r.End <= r.Start {
			continue
		}
		specs[i].Current = r.Start + rng.Float64()*(r.End-r.Start)
	}
	*ps = indicators.NewParameterSet(specs...)
}

// addEntryConditionFor builds a single entry condition for the given
// alias, choosing a secondary source compatible with the indicator's
// category.
func (b *Builder) addEntryConditionFor(c *StrategyCandidate, alias string) error {
	cb, ok := b.buildConditionFor(c, alias, strategy.SignalEntry)
	if !ok {
		return fmt.Errorf("discovery: could not build a compatible entry condition for %q", alias)
	}
	c.EntryConditions = append(c.EntryConditions, cb)
	return nil
}

// addRandomCondition picks an existing indicator alias as the primary
// source and builds a compatible condition for it, appending to entry or
// exit. It never picks a price field as the primary. Structurally
// duplicate conditions are silently skipped.
func (b *Builder) addRandomCondition(c *StrategyCandidate, entry bool) {
	if len(c.Indicators) == 0 {
		return
	}
	alias := c.Indicators[b.rng.Intn(len(c.Indicators))].Alias
	signal := strategy.SignalExit
	if entry {
		signal = strategy.SignalEntry
	}
	cb, ok := b.buildConditionFor(c, alias, signal)
	if !ok {
		return
	}
	fp := conditionFingerprint(cb, string(signal))
	if b.seen[fp] {
		return
	}
	b.seen[fp] = true
	if entry {
		c.EntryConditions = append(c.EntryConditions, cb)
	} else {
		c.ExitConditions = append(c.ExitConditions, cb)
	}
}

// buildConditionFor assembles one ConditionBinding comparing the named
// indicator alias against a compatible secondary source, honoring the
// oscillator/trend/volatility pairwise compatibility rules.
func (b *Builder) buildConditionFor(c *StrategyCandidate, alias string, signal strategy.SignalType) (strategy.ConditionBinding, bool) {
	ind := findIndicator(c.Indicators, alias)
	if ind == nil {
		return strategy.ConditionBinding{}, false
	}
	tf := ind.Timeframe
	id := fmt.Sprintf("cond_%d", len(c.EntryConditions)+len(c.ExitConditions)+1)

	switch {
	case isOscillator(ind.Source.Name) && ind.Source.Kind != runtime.SourceNested:
		// Oscillators compare only with constants unless nested (they are
		// the input of a nested indicator elsewhere, not here).
		op := strategy.OpAbove
		weight := 1.0
		lowThreshold, highThreshold := 30.0, 70.0
		if b.rng.Float64() < 0.5 {
			return strategy.ConditionBinding{
				ID: id, Timeframe: tf, Operator: strategy.OpLessThan,
				Input:  strategy.InputSpec{Shape: strategy.ShapeDual, Primary: strategy.Source{Kind: strategy.SourceIndicator, Alias: alias}, Secondary: strategy.Source{Kind: strategy.SourceConstant, Constant: lowThreshold}},
				Weight: weight,
			}, true
		}
		return strategy.ConditionBinding{
			ID: id, Timeframe: tf, Operator: op,
			Input:  strategy.InputSpec{Shape: strategy.ShapeDual, Primary: strategy.Source{Kind: strategy.SourceIndicator, Alias: alias}, Secondary: strategy.Source{Kind: strategy.SourceConstant, Constant: highThreshold}},
			Weight: weight,
		}, true

	case volatilityRequiresPercentOfClose(ind.Source.Name):
		return strategy.ConditionBinding{
			ID: id, Timeframe: tf, Operator: strategy.OpGreaterPercent,
			Input: strategy.InputSpec{
				Shape:     strategy.ShapeDualWithPercent,
				Primary:   strategy.Source{Kind: strategy.SourceIndicator, Alias: alias},
				Secondary: strategy.Source{Kind: strategy.SourcePriceField, Field: "close"},
				Percent:   2.0,
			},
			Weight: 1,
		}, true

	default: // trend/channel/custom: compare with price or another trend/channel indicator
		op := pickCrossOrCompare(b.rng)
		if len(c.Indicators) > 1 && b.rng.Float64() < 0.4 {
			other := pickCompatibleIndicator(b.rng, c.Indicators, ind.Source.Name, alias)
			if other != nil {
				return strategy.ConditionBinding{
					ID: id, Timeframe: tf, Operator: op,
					Input:  strategy.InputSpec{Shape: strategy.ShapeDual, Primary: strategy.Source{Kind: strategy.SourceIndicator, Alias: alias}, Secondary: strategy.Source{Kind: strategy.SourceIndicator, Alias: other.Alias}},
					Weight: 1,
				}, true
			}
		}
		return strategy.ConditionBinding{
			ID: id, Timeframe: tf, Operator: op,
			Input:  strategy.InputSpec{Shape: strategy.ShapeDual, Primary: strategy.Source{Kind: strategy.SourceIndicator, Alias: alias}, Secondary: strategy.Source{Kind: strategy.SourcePriceField, Field: "close"}},
			Weight: 1,
		}, true
	}
}

func pickCrossOrCompare(rng *rand.Rand) strategy.Operator {
	ops := []strategy.Operator{strategy.OpCrossesAbove, strategy.OpCrossesBelow, strategy.OpAbove, strategy.OpBelow}
	return ops[rng.Intn(len(ops))]
}

func pickCompatibleIndicator(rng *rand.Rand, pool []runtime.IndicatorBinding, exceptName, exceptAlias string) *runtime.IndicatorBinding {
	var candidates []runtime.IndicatorBinding
	for _, ind := range pool {
		if ind.Alias == exceptAlias {
			continue
		}
		if !isTrendOrChannel(ind.Source.Name) {
			continue
		}
		if !compatibleIndicatorPair(exceptName, ind.Source.Name) {
			continue
		}
		candidates = append(candidates, ind)
	}
	if len(candidates) == 0 {
		return nil
	}
	pick := candidates[rng.Intn(len(candidates))]
	return &pick
}

func findIndicator(pool []runtime.IndicatorBinding, alias string) *runtime.IndicatorBinding {
	for i := range pool {
		if pool[i].Alias == alias {
			return &pool[i]
		}
	}
	return nil
}

func (b *Builder) addTimeframe(c *StrategyCandidate) {
	higher := higherTimeframes(c.Timeframes[len(c.Timeframes)-1])
	if len(higher) == 0 {
		return
	}
	tf := higher[b.rng.Intn(len(higher))]
	for _, existing := range c.Timeframes {
		if existing == tf {
			return
		}
	}
	c.Timeframes = append(c.Timeframes, tf)
}

// higherTimeframes returns the canonical timeframes with strictly longer
// duration than base; a higher timeframe is never lower than the base.
func higherTimeframes(base types.Timeframe) []types.Timeframe {
	all := []types.Timeframe{types.Timeframe1m, types.Timeframe5m, types.Timeframe15m, types.Timeframe1h, types.Timeframe4h, types.Timeframe1d, types.Timeframe1w}
	var out []types.Timeframe
	for _, tf := range all {
		if base.Less(tf) {
			out = append(out, tf)
		}
	}
	return out
}

var stopHandlerNames = []string{"StopLossPct", "PercentTrailingStop", "ATRTrailStop", "HILOTrailingStop"}
var takeHandlerNames = []string{"TakeProfitPct"}

func (b *Builder) addStopHandler(c *StrategyCandidate) {
	name := stopHandlerNames[b.rng.Intn(len(stopHandlerNames))]
	c.StopHandlers = append(c.StopHandlers, b.newHandlerSpec(c, name, len(c.StopHandlers)+1, true))
}

func (b *Builder) addTakeHandler(c *StrategyCandidate) {
	name := takeHandlerNames[b.rng.Intn(len(takeHandlerNames))]
	c.TakeHandlers = append(c.TakeHandlers, b.newHandlerSpec(c, name, len(c.TakeHandlers)+1, false))
}

func (b *Builder) newHandlerSpec(c *StrategyCandidate, name string, seq int, isStop bool) HandlerSpec {
	kind := "stop"
	if !isStop {
		kind = "take"
	}
	h := HandlerSpec{
		ID:        fmt.Sprintf("%s_%s_%d", kind, name, seq),
		Name:      name,
		Timeframe: c.BaseTimeframe,
		Params:    map[string]float64{},
	}
	switch name {
	case "StopLossPct":
		h.Params["pct"] = 0.01 + b.rng.Float64()*0.09
	case "TakeProfitPct":
		h.Params["pct"] = 0.02 + b.rng.Float64()*0.18
	case "PercentTrailingStop":
		h.Params["pct"] = 0.01 + b.rng.Float64()*0.09
	case "ATRTrailStop":
		h.Params["multiplier"] = 1 + b.rng.Float64()*4
		h.Params["period"] = float64(7 + b.rng.Intn(21))
	case "HILOTrailingStop":
		h.Params["period"] = float64(10 + b.rng.Intn(40))
	}
	return h
}

// applyDependencyRules adds any obligatory companion handler named by a
// DependencyRule that is not already present.
func (b *Builder) applyDependencyRules(c *StrategyCandidate) {
	for _, rule := range b.cfg.DependencyRules {
		if !hasHandler(c.StopHandlers, rule.IfHandler) && !hasHandler(c.TakeHandlers, rule.IfHandler) {
			continue
		}
		target := &c.TakeHandlers
		if rule.RequireIsStop {
			target = &c.StopHandlers
		}
		if hasHandler(*target, rule.RequireHandler) {
			continue
		}
		*target = append(*target, HandlerSpec{
			ID:        fmt.Sprintf("dep_%s", rule.RequireHandler),
			Name:      rule.RequireHandler,
			Timeframe: c.BaseTimeframe,
			Params:    cloneFloatMap(rule.DefaultParams),
		})
	}
}

func cloneFloatMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func hasHandler(list []HandlerSpec, name string) bool {
	for _, h := range list {
		if h.Name == name {
			return true
		}
	}
	return false
}

// enforceMinimums tops up any element class that fell short of its
// minimum after random generation (possible when continuation rolls stop
// early).
func (b *Builder) enforceMinimums(c *StrategyCandidate) {
	e := b.cfg.Elements
	for len(c.Indicators) < e.MinIndicators {
		b.addIndicator(c, false)
	}
	for len(c.EntryConditions) < e.MinEntryConditions {
		b.addRandomCondition(c, true)
		if len(c.EntryConditions) == 0 {
			break // buildConditionFor found nothing compatible; avoid infinite loop
		}
	}
	for len(c.StopHandlers) < e.MinStopHandlers {
		b.addStopHandler(c)
	}
	for len(c.TakeHandlers) < e.MinTakeHandlers {
		b.addTakeHandler(c)
	}
	for len(c.Timeframes) < e.MinTimeframes {
		before := len(c.Timeframes)
		b.addTimeframe(c)
		if len(c.Timeframes) == before {
			break
		}
	}
}

// ensureUsageInvariants runs the final-pass checks:
// every indicator used by at least one condition, every
// higher timeframe referenced in some condition, and alias integrity.
// Unused indicators are dropped rather than padded with a synthetic
// condition, which would distort the fitness landscape with a condition
// the discovery process never "decided" to add.
func (b *Builder) ensureUsageInvariants(c *StrategyCandidate) {
	used := make(map[string]bool)
	markUsed := func(s strategy.Source) {
		if s.Kind == strategy.SourceIndicator {
			used[s.Alias] = true
		}
	}
	for _, cb := range c.EntryConditions {
		markUsed(cb.Input.Primary)
		markUsed(cb.Input.Secondary)
		markUsed(cb.Input.Lower)
		markUsed(cb.Input.Upper)
	}
	for _, cb := range c.ExitConditions {
		markUsed(cb.Input.Primary)
		markUsed(cb.Input.Secondary)
		markUsed(cb.Input.Lower)
		markUsed(cb.Input.Upper)
	}
	// A nested indicator's input is "used" transitively by virtue of
	// feeding the nested indicator, which is itself checked for use. A
	// nested indicator's input alias always precedes it in c.Indicators
	// (addIndicator only nests on an already-present alias), so walking
	// in reverse propagates "used" through chains of any depth in one pass.
	for i := len(c.Indicators) - 1; i >= 0; i-- {
		ind := c.Indicators[i]
		if ind.Source.Kind == runtime.SourceNested && used[ind.Alias] {
			used[ind.Source.InputAlias] = true
		}
	}
	var kept []runtime.IndicatorBinding
	for _, ind := range c.Indicators {
		if used[ind.Alias] {
			kept = append(kept, ind)
		}
	}
	if len(kept) > 0 {
		c.Indicators = kept
	}

	usedTF := map[types.Timeframe]bool{c.BaseTimeframe: true}
	for _, cb := range append(append([]strategy.ConditionBinding{}, c.EntryConditions...), c.ExitConditions...) {
		usedTF[cb.Timeframe] = true
	}
	var keptTF []types.Timeframe
	for _, tf := range c.Timeframes {
		if usedTF[tf] {
			keptTF = append(keptTF, tf)
		}
	}
	if len(keptTF) == 0 {
		keptTF = []types.Timeframe{c.BaseTimeframe}
	}
	c.Timeframes = keptTF
}
