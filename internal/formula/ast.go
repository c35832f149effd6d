// Package formula implements the AST, parser, and per-bar evaluator for
// user-defined indicator formulas: numeric literals, identifiers
// (indicator aliases or open|high|low|close|volume), unary - !, binary
// + - * / ^ < <= > >= == != && ||, and functions abs/sum/avg/min/max/if.
package formula

import "fmt"

// UnaryOp is a prefix operator.
type UnaryOp int

const (
	Negate UnaryOp = iota
	Not
)

// BinaryOp is an infix operator, in precedence order from loosest to
// tightest: Or < And < {Eq,Neq} < {Lt,Lte,Gt,Gte} < {Add,Sub} < {Mul,Div}
// < Pow (right-associative). Unary binds tighter than all binary ops.
type BinaryOp int

const (
	Add BinaryOp = iota
	Sub
	Mul
	Div
	Pow
	Lt
	Lte
	Gt
	Gte
	Eq
	Neq
	And
	Or
)

// Scalar is the tagged value produced by evaluating a Node: either a
// number or a boolean, with coercion helpers matching the original's
// FormulaScalar.
type Scalar struct {
	Number float64
	Bool   bool
	IsBool bool
}

func NumScalar(v float64) Scalar  { return Scalar{Number: v} }
func BoolScalar(v bool) Scalar    { return Scalar{Bool: v, IsBool: true} }

// AsNumber coerces a Scalar to a float64; a bool coerces to 1/0.
func (s Scalar) AsNumber() float64 {
	if s.IsBool {
		if s.Bool {
			return 1
		}
		return 0
	}
	return s.Number
}

// AsBool coerces a Scalar to a bool; a non-zero number is true.
func (s Scalar) AsBool() bool {
	if s.IsBool {
		return s.Bool
	}
	return s.Number != 0
}

// Node is one AST node. Evaluate is pure and deterministic given a
// Context and a bar index.
type Node interface {
	Evaluate(ctx Context, bar int) (Scalar, error)
	// Dependencies collects every non-builtin identifier referenced by
	// this node (and its children) into the given set.
	Dependencies(set map[string]struct{})
	// String renders the node back to source text, used by the
	// parse-then-print round-trip test property.
	String() string
}

// builtinFields are the reserved identifiers that resolve against the
// price frame rather than an indicator alias.
var builtinFields = map[string]bool{
	"open": true, "high": true, "low": true, "close": true, "volume": true,
	"true": true, "false": true,
}

// NumberNode is a numeric literal.
type NumberNode struct{ Value float64 }

func (n *NumberNode) Evaluate(ctx Context, bar int) (Scalar, error) { return NumScalar(n.Value), nil }
func (n *NumberNode) Dependencies(map[string]struct{})              {}
func (n *NumberNode) String() string                                { return trimFloat(n.Value) }

// IdentifierNode references a builtin price field, the literals
// true/false, or an indicator alias.
type IdentifierNode struct{ Name string }

func (n *IdentifierNode) Dependencies(set map[string]struct{}) {
	if !builtinFields[lower(n.Name)] {
		set[n.Name] = struct{}{}
	}
}
func (n *IdentifierNode) String() string { return n.Name }

func (n *IdentifierNode) Evaluate(ctx Context, bar int) (Scalar, error) {
	switch lower(n.Name) {
	case "true":
		return BoolScalar(true), nil
	case "false":
		return BoolScalar(false), nil
	}
	v, err := ctx.Value(n.Name, bar)
	if err != nil {
		return Scalar{}, err
	}
	return NumScalar(v), nil
}

// UnaryNode applies a prefix operator to its operand.
type UnaryNode struct {
	Op      UnaryOp
	Operand Node
}

func (n *UnaryNode) Dependencies(set map[string]struct{}) { n.Operand.Dependencies(set) }
func (n *UnaryNode) String() string {
	sym := "-"
	if n.Op == Not {
		sym = "!"
	}
	return sym + n.Operand.String()
}

func (n *UnaryNode) Evaluate(ctx Context, bar int) (Scalar, error) {
	v, err := n.Operand.Evaluate(ctx, bar)
	if err != nil {
		return Scalar{}, err
	}
	switch n.Op {
	case Negate:
		return NumScalar(-v.AsNumber()), nil
	case Not:
		return BoolScalar(!v.AsBool()), nil
	}
	return Scalar{}, fmt.Errorf("formula: unknown unary operator")
}

// BinaryNode applies an infix operator to two operands.
type BinaryNode struct {
	Op          BinaryOp
	Left, Right Node
}

func (n *BinaryNode) Dependencies(set map[string]struct{}) {
	n.Left.Dependencies(set)
	n.Right.Dependencies(set)
}

var binarySymbols = map[BinaryOp]string{
	Add: "+", Sub: "-", Mul: "*", Div: "/", Pow: "^",
	Lt: "<", Lte: "<=", Gt: ">", Gte: ">=", Eq: "==", Neq: "!=",
	And: "&&", Or: "||",
}

func (n *BinaryNode) String() string {
	return "(" + n.Left.String() + " " + binarySymbols[n.Op] + " " + n.Right.String() + ")"
}

func (n *BinaryNode) Evaluate(ctx Context, bar int) (Scalar, error) {
	l, err := n.Left.Evaluate(ctx, bar)
	if err != nil {
		return Scalar{}, err
	}
	r, err := n.Right.Evaluate(ctx, bar)
	if err != nil {
		return Scalar{}, err
	}
	switch n.Op {
	case Add:
		return NumScalar(l.AsNumber() + r.AsNumber()), nil
	case Sub:
		return NumScalar(l.AsNumber() - r.AsNumber()), nil
	case Mul:
		return NumScalar(l.AsNumber() * r.AsNumber()), nil
	case Div:
		rv := r.AsNumber()
		if rv == 0 {
			return Scalar{}, &Error{Kind: ErrDivisionByZero, Message: "division by zero"}
		}
		return NumScalar(l.AsNumber() / rv), nil
	case Pow:
		return NumScalar(powf(l.AsNumber(), r.AsNumber())), nil
	case Lt:
		return BoolScalar(l.AsNumber() < r.AsNumber()), nil
	case Lte:
		return BoolScalar(l.AsNumber() <= r.AsNumber()), nil
	case Gt:
		return BoolScalar(l.AsNumber() > r.AsNumber()), nil
	case Gte:
		return BoolScalar(l.AsNumber() >= r.AsNumber()), nil
	case Eq:
		return BoolScalar(l.AsNumber() == r.AsNumber()), nil
	case Neq:
		return BoolScalar(l.AsNumber() != r.AsNumber()), nil
	case And:
		return BoolScalar(l.AsBool() && r.AsBool()), nil
	case Or:
		return BoolScalar(l.AsBool() || r.AsBool()), nil
	}
	return Scalar{}, fmt.Errorf("formula: unknown binary operator")
}

// FunctionNode applies a named function to its arguments: abs, sum, avg,
// min, max, if.
type FunctionNode struct {
	Name string
	Args []Node
}

func (n *FunctionNode) Dependencies(set map[string]struct{}) {
	for _, a := range n.Args {
		a.Dependencies(set)
	}
}

func (n *FunctionNode) String() string {
	s := n.Name + "("
	for i, a := range n.Args {
		if i > 0 {
			s += ", "
		}
		s += a.String()
	}
	return s + ")"
}

func (n *FunctionNode) Evaluate(ctx Context, bar int) (Scalar, error) {
	switch lower(n.Name) {
	case "abs":
		if len(n.Args) != 1 {
			return Scalar{}, fmt.Errorf("formula: abs() takes 1 argument")
		}
		v, err := n.Args[0].Evaluate(ctx, bar)
		if err != nil {
			return Scalar{}, err
		}
		return NumScalar(absVal(v.AsNumber())), nil
	case "sum", "avg":
		if len(n.Args) == 0 {
			return Scalar{}, fmt.Errorf("formula: %s() takes at least 1 argument", n.Name)
		}
		var total float64
		for _, a := range n.Args {
			v, err := a.Evaluate(ctx, bar)
			if err != nil {
				return Scalar{}, err
			}
			total += v.AsNumber()
		}
		if lower(n.Name) == "avg" {
			total /= float64(len(n.Args))
		}
		return NumScalar(total), nil
	case "min", "max":
		if len(n.Args) == 0 {
			return Scalar{}, fmt.Errorf("formula: %s() takes at least 1 argument", n.Name)
		}
		vals := make([]float64, 0, len(n.Args))
		for _, a := range n.Args {
			v, err := a.Evaluate(ctx, bar)
			if err != nil {
				return Scalar{}, err
			}
			vals = append(vals, v.AsNumber())
		}
		best := vals[0]
		for _, v := range vals[1:] {
			if (lower(n.Name) == "min" && v < best) || (lower(n.Name) == "max" && v > best) {
				best = v
			}
		}
		return NumScalar(best), nil
	case "if":
		if len(n.Args) != 3 {
			return Scalar{}, fmt.Errorf("formula: if() takes 3 arguments")
		}
		cond, err := n.Args[0].Evaluate(ctx, bar)
		if err != nil {
			return Scalar{}, err
		}
		if cond.AsBool() {
			return n.Args[1].Evaluate(ctx, bar)
		}
		return n.Args[2].Evaluate(ctx, bar)
	}
	return Scalar{}, fmt.Errorf("formula: unknown function %q", n.Name)
}

func absVal(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
