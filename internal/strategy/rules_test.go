package strategy

import "testing"

func TestEvaluateAllGuardsConditionsShorterThanIndex(t *testing.T) {
	conditions := map[string]*PreparedCondition{
		"c1": {
			Binding:   ConditionBinding{ID: "c1", Weight: 1},
			Signals:   []bool{true, true},
			Strengths: []SignalStrength{Medium, Medium},
		},
	}
	rule := Rule{ID: "r1", Logic: RuleLogic{Mode: LogicAll}, ConditionIDs: []string{"c1"}}

	// Index 5 is out of range for both Signals and Strengths; this must
	// not panic and must report the rule as unfired rather than reading
	// past the end of either slice.
	sig := EvaluateRule(rule, conditions, 5)
	if sig.Fired {
		t.Fatalf("expected rule not fired when a condition's series has not reached this index")
	}
}

func TestEvaluateAtLeastGuardsConditionsShorterThanIndex(t *testing.T) {
	conditions := map[string]*PreparedCondition{
		"c1": {Binding: ConditionBinding{ID: "c1", Weight: 1}, Signals: []bool{true}, Strengths: []SignalStrength{Strong}},
		"c2": {Binding: ConditionBinding{ID: "c2", Weight: 1}, Signals: []bool{true}, Strengths: []SignalStrength{Strong}},
	}
	rule := Rule{ID: "r1", Logic: RuleLogic{Mode: LogicAtLeast, AtLeastK: 1}, ConditionIDs: []string{"c1", "c2"}}

	sig := EvaluateRule(rule, conditions, 3)
	if sig.Fired {
		t.Fatalf("expected rule not fired: both conditions' series stop before index 3")
	}
}

func TestEvaluateWeightedUsesWeightTimesStrength(t *testing.T) {
	conditions := map[string]*PreparedCondition{
		"c1": {Binding: ConditionBinding{ID: "c1", Weight: 1}, Signals: []bool{true}, Strengths: []SignalStrength{VeryStrong}},
	}
	rule := Rule{ID: "r1", Logic: RuleLogic{Mode: LogicWeighted, MinTotal: 3}, ConditionIDs: []string{"c1"}}

	// weight 1 * strength VeryStrong(4) = 4, clears min_total 3. Summing
	// weight alone (the prior bug) would total 1 and never fire.
	sig := EvaluateRule(rule, conditions, 0)
	if !sig.Fired {
		t.Fatalf("expected rule to fire: weight 1 * strength VeryStrong(4) = 4 >= min_total 3")
	}
	if sig.Strength != VeryStrong {
		t.Fatalf("expected aggregate strength VeryStrong, got %v", sig.Strength)
	}
}

func TestEvaluateWeightedRejectsWeightAloneMeetingMinTotal(t *testing.T) {
	conditions := map[string]*PreparedCondition{
		"c1": {Binding: ConditionBinding{ID: "c1", Weight: 5}, Signals: []bool{true}, Strengths: []SignalStrength{Weak}},
	}
	rule := Rule{ID: "r1", Logic: RuleLogic{Mode: LogicWeighted, MinTotal: 3}, ConditionIDs: []string{"c1"}}

	// weight 5 alone would clear min_total 3, but weight * strength
	// Weak(1) = 5 still clears it too; use a higher bar to prove strength
	// actually gates the total rather than weight alone.
	rule.Logic.MinTotal = 6
	sig := EvaluateRule(rule, conditions, 0)
	if sig.Fired {
		t.Fatalf("expected rule not fired: weight 5 * strength Weak(1) = 5 < min_total 6")
	}
}
