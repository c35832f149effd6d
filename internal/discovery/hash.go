package discovery

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aeroalgo/robots-sub000/internal/indicators"
	"github.com/aeroalgo/robots-sub000/internal/strategy"
)

// Signature is the order-independent structural fingerprint of a
// candidate:
// the multiset of (indicator_name, normalized_params), plus the multiset
// of (operator, primary_alias, secondary_alias_or_constant, price_field,
// timeframes) over conditions, plus the multiset of handler names. Used
// both for duplicate rejection (detect_duplicates) and for the
// diversity-preserving environmental selection distance.
type Signature struct {
	Indicators []string
	Conditions []string
	Handlers   []string
}

// Hash renders the signature to one comparable string, order-independent
// within each class (each slice is sorted before joining).
func (s Signature) Hash() string {
	ind := append([]string(nil), s.Indicators...)
	cond := append([]string(nil), s.Conditions...)
	h := append([]string(nil), s.Handlers...)
	sort.Strings(ind)
	sort.Strings(cond)
	sort.Strings(h)
	return strings.Join(ind, ",") + "|" + strings.Join(cond, ",") + "|" + strings.Join(h, ",")
}

// Distance is a Hamming-like count of structural features present in one
// signature but not the other, used by environmental selection's
// diversity filter.
func (s Signature) Distance(other Signature) int {
	return setSymmetricDifference(s.Indicators, other.Indicators) +
		setSymmetricDifference(s.Conditions, other.Conditions) +
		setSymmetricDifference(s.Handlers, other.Handlers)
}

func setSymmetricDifference(a, b []string) int {
	as := make(map[string]int, len(a))
	for _, v := range a {
		as[v]++
	}
	bs := make(map[string]int, len(b))
	for _, v := range b {
		bs[v]++
	}
	diff := 0
	for k, ca := range as {
		cb := bs[k]
		if ca > cb {
			diff += ca - cb
		}
	}
	for k, cb := range bs {
		ca := as[k]
		if cb > ca {
			diff += cb - ca
		}
	}
	return diff
}

// StructuralSignature computes the Signature for a candidate.
func StructuralSignature(c *StrategyCandidate) Signature {
	sig := Signature{}
	for _, b := range c.Indicators {
		sig.Indicators = append(sig.Indicators, fmt.Sprintf("%s|%s", b.Source.Name, normalizedParamString(b.Source.Params)))
	}
	for _, cb := range c.EntryConditions {
		sig.Conditions = append(sig.Conditions, conditionFingerprint(cb, "entry"))
	}
	for _, cb := range c.ExitConditions {
		sig.Conditions = append(sig.Conditions, conditionFingerprint(cb, "exit"))
	}
	for _, h := range c.StopHandlers {
		sig.Handlers = append(sig.Handlers, "stop:"+h.Name)
	}
	for _, h := range c.TakeHandlers {
		sig.Handlers = append(sig.Handlers, "take:"+h.Name)
	}
	return sig
}

func normalizedParamString(ps indicators.ParameterSet) string {
	specs := append([]indicators.ParameterSpec(nil), ps.Specs()...)
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	var b strings.Builder
	for _, s := range specs {
		b.WriteString(s.Name)
		b.WriteByte('=')
		b.WriteString(strconv.FormatFloat(s.Current, 'g', -1, 64))
		b.WriteByte(';')
	}
	return b.String()
}

func conditionFingerprint(cb strategy.ConditionBinding, kind string) string {
	secondary := cb.Input.Secondary.Alias
	if cb.Input.Secondary.Kind == strategy.SourceConstant {
		secondary = "const_" + strconv.FormatFloat(cb.Input.Secondary.Constant, 'g', -1, 64)
	} else if cb.Input.Secondary.Kind == strategy.SourcePriceField {
		secondary = "price_" + cb.Input.Secondary.Field
	}
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s", kind, cb.Operator, cb.Input.Primary.Alias, secondary, cb.Input.Primary.Field, cb.Timeframe)
}
