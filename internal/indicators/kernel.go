package indicators

import (
	"fmt"
	"sync"

	"github.com/aeroalgo/robots-sub000/pkg/types"
)

// Kernel is the uniform contract every indicator implements. Output length
// always equals input length. Only SMA and RSI overwrite their warmup
// region with a zero sentinel (and SuperTrend emits 0 on its first two
// bars); AMA copies the raw input there, and the other kernels emit values
// from the first bar, computed over the shorter window available. MinBars
// reports how many leading bars a caller should treat as warmup.
type Kernel interface {
	Name() string
	Category() Category
	Kind() Kind
	DefaultParameters() ParameterSet
	MinBars(params ParameterSet) int

	// ComputeSimple consumes a single numeric series (Kind == KindSimple or
	// KindUniversal). It rejects other kinds with DataTypeMismatch.
	ComputeSimple(series []float64, params ParameterSet) ([]float64, error)

	// ComputeOHLC consumes a full price frame (Kind == KindOHLC, KindOHLCV,
	// or KindUniversal).
	ComputeOHLC(frame types.PriceFrame, params ParameterSet) ([]float64, error)
}

// Factory constructs a fresh Kernel instance (kernels are stateless, but a
// factory keeps the registry symmetrical with the strategy/condition/
// handler registries, all of which are factory-keyed).
type Factory func() Kernel

// Registry is a process-wide, read-mostly name -> factory mapping,
// populated once at package init and never mutated afterward. Reads take
// the RLock only for concurrent-init safety; in steady state all
// registrations have already happened in init().
type Registry struct {
	mu    sync.RWMutex
	byName map[string]Factory
}

var defaultRegistry = &Registry{byName: make(map[string]Factory)}

// Register adds a kernel factory under name. Panics on duplicate
// registration; registration only happens at init() time, never on user
// input.
func Register(name string, f Factory) {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	if _, exists := defaultRegistry.byName[name]; exists {
		panic(fmt.Sprintf("indicators: duplicate kernel registration for %q", name))
	}
	defaultRegistry.byName[name] = f
}

// Get constructs a fresh Kernel instance for name, or reports not-found.
func Get(name string) (Kernel, bool) {
	defaultRegistry.mu.RLock()
	defer defaultRegistry.mu.RUnlock()
	f, ok := defaultRegistry.byName[name]
	if !ok {
		return nil, false
	}
	return f(), true
}

// Names returns every registered kernel name, unordered.
func Names() []string {
	defaultRegistry.mu.RLock()
	defer defaultRegistry.mu.RUnlock()
	out := make([]string, 0, len(defaultRegistry.byName))
	for name := range defaultRegistry.byName {
		out = append(out, name)
	}
	return out
}

// MetadataFor returns the Metadata for a registered kernel.
func MetadataFor(name string) (Metadata, bool) {
	k, ok := Get(name)
	if !ok {
		return Metadata{}, false
	}
	return Metadata{
		Name:         k.Name(),
		Category:     k.Category(),
		Kind:         k.Kind(),
		ParameterSet: k.DefaultParameters(),
	}, true
}

// clampPeriod clamps an effective period to [1, length].
func clampPeriod(period, length int) int {
	if period < 1 {
		return 1
	}
	if period > length && length > 0 {
		return length
	}
	return period
}

// fabricateOHLC builds a synthetic PriceFrame from a simple series by
// duplicating each value into O=H=L=C and zeroing volume. Known
// limitation: OHLC-sensitive metrics computed on a fabricated frame are
// level statistics only, never meaningful range statistics.
func fabricateOHLC(series []float64) types.PriceFrame {
	bars := make([]types.Bar, len(series))
	for i, v := range series {
		bars[i] = types.Bar{Open: v, High: v, Low: v, Close: v}
	}
	return types.PriceFrame{Bars: bars}
}

// zeroSentinel fills the warmup region [0, warmup) of out with 0.
func zeroSentinel(out []float64, warmup int) {
	if warmup > len(out) {
		warmup = len(out)
	}
	for i := 0; i < warmup; i++ {
		out[i] = 0
	}
}
