package formula

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/aeroalgo/robots-sub000/pkg/types"
)

// Context resolves an identifier to a numeric value at a given bar index.
// Implementations back it with a price frame plus a set of named
// indicator series (see FrameContext, which internal/runtime uses for
// formula bindings).
type Context interface {
	// Value resolves name (a builtin price field or an indicator alias)
	// at bar index i.
	Value(name string, i int) (float64, error)
}

// FrameContext is the simplest Context: a price frame plus a map of
// already-computed indicator series, keyed by alias. Lookups are
// case-insensitive for builtin fields, case-sensitive for aliases
// (aliases are user-chosen strategy-local names).
type FrameContext struct {
	Frame      types.PriceFrame
	Indicators map[string][]float64
}

func (c FrameContext) Value(name string, i int) (float64, error) {
	switch lower(name) {
	case "open":
		return fieldAt(c.Frame.Bars, i, func(b types.Bar) float64 { return b.Open })
	case "high":
		return fieldAt(c.Frame.Bars, i, func(b types.Bar) float64 { return b.High })
	case "low":
		return fieldAt(c.Frame.Bars, i, func(b types.Bar) float64 { return b.Low })
	case "close":
		return fieldAt(c.Frame.Bars, i, func(b types.Bar) float64 { return b.Close })
	case "volume":
		return fieldAt(c.Frame.Bars, i, func(b types.Bar) float64 { return b.Volume })
	}
	series, ok := c.Indicators[name]
	if !ok {
		return 0, &Error{Kind: ErrMissingDependency, Message: "no series for identifier " + name}
	}
	if i < 0 || i >= len(series) {
		return 0, &Error{Kind: ErrMissingDependency, Message: "index out of range for identifier " + name}
	}
	return series[i], nil
}

func fieldAt(bars []types.Bar, i int, get func(types.Bar) float64) (float64, error) {
	if i < 0 || i >= len(bars) {
		return 0, &Error{Kind: ErrMissingDependency, Message: "bar index out of range"}
	}
	return get(bars[i]), nil
}

// Definition is a parsed formula: the original expression text, its root
// AST, and its dependency set (non-builtin identifiers referenced).
type Definition struct {
	Expression string
	Root       Node
	deps       map[string]struct{}
}

// Parse parses expr once and returns a Definition whose AST is immutable
// thereafter.
func Parse(expr string) (*Definition, error) {
	root, err := parse(expr)
	if err != nil {
		return nil, err
	}
	deps := make(map[string]struct{})
	root.Dependencies(deps)
	return &Definition{Expression: expr, Root: root, deps: deps}, nil
}

// Dependencies returns the sorted list of non-builtin identifiers this
// formula references (used for dependency-ordered evaluation planning).
func (d *Definition) Dependencies() []string {
	out := make([]string, 0, len(d.deps))
	for k := range d.deps {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// String re-renders the parsed expression. Parse(d.String()) yields an
// AST with an identical dependency set.
func (d *Definition) String() string { return d.Root.String() }

// LengthFor computes the output length as min(frame length, min over
// referenced indicator series lengths); builtin identifiers are skipped.
func (d *Definition) LengthFor(frame types.PriceFrame, indicators map[string][]float64) int {
	length := frame.Len()
	for dep := range d.deps {
		if series, ok := indicators[dep]; ok && len(series) < length {
			length = len(series)
		}
	}
	return length
}

// Evaluate runs the formula bar-by-bar over [0, length) using ctx,
// producing a float64 series. Evaluation is pure and deterministic; a
// division by zero or unresolved dependency fails the whole evaluation.
func (d *Definition) Evaluate(ctx Context, length int) ([]float64, error) {
	out := make([]float64, length)
	for i := 0; i < length; i++ {
		v, err := d.Root.Evaluate(ctx, i)
		if err != nil {
			return nil, err
		}
		out[i] = v.AsNumber()
	}
	return out, nil
}

func lower(s string) string { return strings.ToLower(s) }

func powf(base, exp float64) float64 { return math.Pow(base, exp) }

func trimFloat(v float64) string {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	return s
}
