// Package runtime implements the cached, dependency-ordered indicator
// evaluator: two memo caches (registry-indicator results and formula
// results), a fixed-point dependency-ordering planner, and auxiliary
// indicator resolution for stop/take handlers.
package runtime

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aeroalgo/robots-sub000/internal/indicators"
	"github.com/aeroalgo/robots-sub000/pkg/types"
)

// normalizeParams builds a deterministic cache-key fragment for a
// ParameterSet: parameter names sorted lexicographically, values interned
// by IEEE-754 bit pattern.
func normalizeParams(params indicators.ParameterSet) string {
	specs := append([]indicators.ParameterSpec(nil), params.Specs()...)
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	var b strings.Builder
	for _, s := range specs {
		b.WriteString(s.Name)
		b.WriteByte('=')
		b.WriteString(strconv.FormatUint(math.Float64bits(s.Current), 16))
		b.WriteByte(';')
	}
	return b.String()
}

// indicatorCacheKey is keyed by (timeframe, indicator_name,
// normalized_params, length).
func indicatorCacheKey(tf types.Timeframe, name string, params indicators.ParameterSet, length int) string {
	return string(tf) + "|" + name + "|" + normalizeParams(params) + "|" + strconv.Itoa(length)
}

// formulaCacheKey is keyed by (timeframe, formula_expression, length).
func formulaCacheKey(tf types.Timeframe, expr string, length int) string {
	return string(tf) + "|" + expr + "|" + strconv.Itoa(length)
}

// cacheStats counts kernel invocations for the cache-hit-rate test hook.
type cacheStats struct {
	mu          sync.Mutex
	invocations int
}

func (c *cacheStats) recordInvocation() {
	c.mu.Lock()
	c.invocations++
	c.mu.Unlock()
}

func (c *cacheStats) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invocations
}
