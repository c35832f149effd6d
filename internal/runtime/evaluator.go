package runtime

import (
	"fmt"
	"sync"

	"github.com/aeroalgo/robots-sub000/internal/formula"
	"github.com/aeroalgo/robots-sub000/internal/indicators"
	"github.com/aeroalgo/robots-sub000/pkg/types"
	"go.uber.org/zap"
)

// ErrCircularDependency is returned when a strategy's formula/nested
// bindings cannot be topologically ordered.
type ErrCircularDependency struct{ Remaining []string }

func (e *ErrCircularDependency) Error() string {
	return fmt.Sprintf("runtime: circular dependency among bindings: %v", e.Remaining)
}

// SourceKind discriminates a binding's origin.
type SourceKind int

const (
	SourceRegistry SourceKind = iota
	SourceFormula
	SourceNested
)

// BindingSource is either a registry kernel invocation, a formula
// expression, or a nested indicator (computed over another binding's
// output series).
type BindingSource struct {
	Kind       SourceKind
	Name       string // registry kernel name, when Kind == SourceRegistry or SourceNested
	Params     indicators.ParameterSet
	Expression string // formula text, when Kind == SourceFormula
	InputAlias string // source alias, when Kind == SourceNested
}

// IndicatorBinding pairs an alias and a timeframe with the source that
// produces its series.
type IndicatorBinding struct {
	Alias     string
	Timeframe types.Timeframe
	Source    BindingSource
}

// AuxiliaryIndicatorSpec is declared by stop/take handlers that need a
// computed series (ATR, MAXFOR, MINFOR, or a named indicator) that isn't
// part of the strategy's own condition bindings.
type AuxiliaryIndicatorSpec struct {
	IndicatorName string
	Parameters    indicators.ParameterSet
	Alias         string
	Timeframe     types.Timeframe
}

// Evaluator is the cached, dependency-ordered indicator runtime. Its
// lifetime equals one backtest run; it is never shared
// across parallel workers.
type Evaluator struct {
	logger *zap.Logger
	frames map[types.Timeframe]types.PriceFrame

	mu             sync.RWMutex
	indicatorCache map[string][]float64
	formulaCache   map[string][]float64
	formulaDefs    map[string]*formula.Definition
	published      map[string][]float64      // alias -> published series, post-Prepare
	timeframes     map[string]types.Timeframe // alias -> timeframe the series was computed at
	warmups        map[string]int             // alias -> bars before the series carries a meaningful value

	stats cacheStats
}

// New constructs an Evaluator over the given set of price frames, one per
// timeframe referenced by a strategy. logger may be nil.
func New(frames map[types.Timeframe]types.PriceFrame, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		logger:         logger,
		frames:         frames,
		indicatorCache: make(map[string][]float64),
		formulaCache:   make(map[string][]float64),
		formulaDefs:    make(map[string]*formula.Definition),
		published:      make(map[string][]float64),
		timeframes:     make(map[string]types.Timeframe),
		warmups:        make(map[string]int),
	}
}

// Clear releases cached results.
func (e *Evaluator) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.indicatorCache = make(map[string][]float64)
	e.formulaCache = make(map[string][]float64)
	e.published = make(map[string][]float64)
	e.timeframes = make(map[string]types.Timeframe)
	e.warmups = make(map[string]int)
}

// Get returns the published series for alias, if Prepare has run.
func (e *Evaluator) Get(alias string) ([]float64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.published[alias]
	return s, ok
}

// Timeframe returns the timeframe alias's series was computed at, if
// Prepare has published it. Callers that consume a published series
// alongside a different timeframe's price frame (e.g. a condition
// comparing indicators from two timeframes) use this to align indices.
func (e *Evaluator) Timeframe(alias string) (types.Timeframe, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	tf, ok := e.timeframes[alias]
	return tf, ok
}

// Warmup returns how many leading bars of alias's published series are
// warmup (derived from kernel MinBars) rather than a meaningful value;
// depending on the kernel those bars hold zeros or partial-window
// values. Condition
// preparation masks signals over this region so a comparison never fires
// against a warming-up indicator.
func (e *Evaluator) Warmup(alias string) (int, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	w, ok := e.warmups[alias]
	return w, ok
}

// InvocationCount returns how many times a kernel actually computed (as
// opposed to hitting the cache), for the cache-hit-rate test hook.
func (e *Evaluator) InvocationCount() int { return e.stats.count() }

// Prepare builds the dependency-ordered evaluation plan for bindings and
// publishes every alias's series. Registry-source bindings run first (no
// inter-indicator dependencies); formula and nested bindings follow in
// topological order via a fixed-point loop:
// each pass resolves every binding whose dependencies are already
// published; the loop stops when a pass makes no progress, and any
// bindings left unresolved indicate a cycle.
func (e *Evaluator) Prepare(bindings []IndicatorBinding) error {
	pending := make(map[string]IndicatorBinding, len(bindings))
	for _, b := range bindings {
		pending[b.Alias] = b
	}

	for len(pending) > 0 {
		progressed := false
		for alias, b := range pending {
			deps, err := e.dependenciesOf(b)
			if err != nil {
				return err
			}
			if !e.allPublished(deps) {
				continue
			}
			series, err := e.compute(b)
			if err != nil {
				return fmt.Errorf("runtime: evaluating %q: %w", alias, err)
			}
			warmup := e.warmupOf(b)
			e.mu.Lock()
			e.published[alias] = series
			e.timeframes[alias] = b.Timeframe
			e.warmups[alias] = warmup
			e.mu.Unlock()
			delete(pending, alias)
			progressed = true
		}
		if !progressed {
			remaining := make([]string, 0, len(pending))
			for alias := range pending {
				remaining = append(remaining, alias)
			}
			return &ErrCircularDependency{Remaining: remaining}
		}
	}
	return nil
}

func (e *Evaluator) allPublished(deps []string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, d := range deps {
		if _, ok := e.published[d]; !ok {
			return false
		}
	}
	return true
}

func (e *Evaluator) dependenciesOf(b IndicatorBinding) ([]string, error) {
	switch b.Source.Kind {
	case SourceRegistry:
		return nil, nil
	case SourceNested:
		return []string{b.Source.InputAlias}, nil
	case SourceFormula:
		def, err := e.formulaDefinition(b.Source.Expression)
		if err != nil {
			return nil, err
		}
		return def.Dependencies(), nil
	}
	return nil, fmt.Errorf("runtime: unknown source kind for %q", b.Alias)
}

func (e *Evaluator) formulaDefinition(expr string) (*formula.Definition, error) {
	e.mu.RLock()
	def, ok := e.formulaDefs[expr]
	e.mu.RUnlock()
	if ok {
		return def, nil
	}
	def, err := formula.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("runtime: parsing formula %q: %w", expr, err)
	}
	e.mu.Lock()
	e.formulaDefs[expr] = def
	e.mu.Unlock()
	return def, nil
}

func (e *Evaluator) compute(b IndicatorBinding) ([]float64, error) {
	frame, ok := e.frames[b.Timeframe]
	if !ok {
		return nil, fmt.Errorf("runtime: no price frame loaded for timeframe %s", b.Timeframe)
	}

	switch b.Source.Kind {
	case SourceRegistry:
		return e.computeRegistry(frame, b.Timeframe, b.Source.Name, b.Source.Params)
	case SourceNested:
		input, ok := e.Get(b.Source.InputAlias)
		if !ok {
			return nil, fmt.Errorf("runtime: nested indicator %q: input alias %q not yet published", b.Alias, b.Source.InputAlias)
		}
		return e.computeNested(b.Timeframe, b.Source.Name, b.Source.Params, input)
	case SourceFormula:
		return e.computeFormula(frame, b.Timeframe, b.Source.Expression)
	}
	return nil, fmt.Errorf("runtime: unknown source kind for %q", b.Alias)
}

func (e *Evaluator) computeRegistry(frame types.PriceFrame, tf types.Timeframe, name string, params indicators.ParameterSet) ([]float64, error) {
	key := indicatorCacheKey(tf, name, params, frame.Len())
	e.mu.RLock()
	if cached, ok := e.indicatorCache[key]; ok {
		e.mu.RUnlock()
		return cached, nil
	}
	e.mu.RUnlock()

	kernel, ok := indicators.Get(name)
	if !ok {
		return nil, fmt.Errorf("runtime: unknown indicator %q", name)
	}
	e.stats.recordInvocation()
	var series []float64
	var err error
	if kernel.Kind() == indicators.KindSimple {
		series, err = kernel.ComputeSimple(frame.Closes(), params)
	} else {
		series, err = kernel.ComputeOHLC(frame, params)
	}
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.indicatorCache[key] = series
	e.mu.Unlock()
	return series, nil
}

func (e *Evaluator) computeNested(tf types.Timeframe, name string, params indicators.ParameterSet, input []float64) ([]float64, error) {
	kernel, ok := indicators.Get(name)
	if !ok {
		return nil, fmt.Errorf("runtime: unknown indicator %q", name)
	}
	e.stats.recordInvocation()
	return kernel.ComputeSimple(input, params)
}

// warmupOf derives a binding's warmup length. Registry bindings take
// their kernel's MinBars; nested bindings add their input alias's warmup
// on top (the nested kernel only sees meaningful values once its input
// has warmed up); formula bindings inherit the longest warmup among their
// dependencies. Called only for bindings whose dependencies are already
// published.
func (e *Evaluator) warmupOf(b IndicatorBinding) int {
	switch b.Source.Kind {
	case SourceRegistry, SourceNested:
		kernel, ok := indicators.Get(b.Source.Name)
		if !ok {
			return 0
		}
		w := kernel.MinBars(b.Source.Params)
		if b.Source.Kind == SourceNested {
			if inputW, ok := e.Warmup(b.Source.InputAlias); ok {
				w += inputW
			}
		}
		return w
	case SourceFormula:
		def, err := e.formulaDefinition(b.Source.Expression)
		if err != nil {
			return 0
		}
		max := 0
		for _, dep := range def.Dependencies() {
			if w, ok := e.Warmup(dep); ok && w > max {
				max = w
			}
		}
		return max
	}
	return 0
}

func (e *Evaluator) computeFormula(frame types.PriceFrame, tf types.Timeframe, expr string) ([]float64, error) {
	key := formulaCacheKey(tf, expr, frame.Len())
	e.mu.RLock()
	if cached, ok := e.formulaCache[key]; ok {
		e.mu.RUnlock()
		return cached, nil
	}
	e.mu.RUnlock()

	def, err := e.formulaDefinition(expr)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	published := make(map[string][]float64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}
	e.mu.RUnlock()

	length := def.LengthFor(frame, published)
	ctx := formula.FrameContext{Frame: frame, Indicators: published}
	series, err := def.Evaluate(ctx, length)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.formulaCache[key] = series
	e.mu.Unlock()
	return series, nil
}
