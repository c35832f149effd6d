package discovery

import (
	"fmt"

	"github.com/aeroalgo/robots-sub000/internal/strategy"
	"github.com/aeroalgo/robots-sub000/pkg/types"
)

// Materialize converts a StrategyCandidate's topology into a compiled
// strategy.StrategyDefinition, ready for strategy.NewEngine. All entry
// conditions combine conjunctively into a single entry rule and all exit
// conditions combine disjunctively into a single exit rule (any one exit
// condition ends the position).
func Materialize(c *StrategyCandidate, name string, defaultQuantity float64) (*strategy.StrategyDefinition, error) {
	var conditionBindings []strategy.ConditionBinding
	var entryIDs, exitIDs []string

	for _, cb := range c.EntryConditions {
		conditionBindings = append(conditionBindings, cb)
		entryIDs = append(entryIDs, cb.ID)
	}
	for _, cb := range c.ExitConditions {
		conditionBindings = append(conditionBindings, cb)
		exitIDs = append(exitIDs, cb.ID)
	}

	stopHandlers := make([]strategy.StopTakeHandler, 0, len(c.StopHandlers))
	for _, h := range c.StopHandlers {
		built, err := buildHandler(h)
		if err != nil {
			return nil, err
		}
		stopHandlers = append(stopHandlers, built)
	}
	takeHandlers := make([]strategy.StopTakeHandler, 0, len(c.TakeHandlers))
	for _, h := range c.TakeHandlers {
		built, err := buildHandler(h)
		if err != nil {
			return nil, err
		}
		takeHandlers = append(takeHandlers, built)
	}

	var entryRules []strategy.Rule
	if len(entryIDs) > 0 {
		entryRules = append(entryRules, strategy.Rule{
			ID:           "entry_1",
			Logic:        strategy.RuleLogic{Mode: strategy.LogicAll},
			ConditionIDs: entryIDs,
			Signal:       strategy.SignalEntry,
			Direction:    types.DirectionLong,
		})
	}
	var exitRules []strategy.Rule
	if len(exitIDs) > 0 {
		exitRules = append(exitRules, strategy.Rule{
			ID:             "exit_1",
			Logic:          strategy.RuleLogic{Mode: strategy.LogicAny},
			ConditionIDs:   exitIDs,
			Signal:         strategy.SignalExit,
			Direction:      types.DirectionLong,
			TargetEntryIDs: []string{"entry_1"},
		})
	}

	return &strategy.StrategyDefinition{
		Name:              name,
		IndicatorBindings: c.Indicators,
		ConditionBindings: conditionBindings,
		EntryRules:        entryRules,
		ExitRules:         exitRules,
		StopHandlers:      stopHandlers,
		TakeHandlers:      takeHandlers,
		DefaultQuantity:   defaultQuantity,
		BaseTimeframe:     c.BaseTimeframe,
	}, nil
}

// buildHandler dispatches a HandlerSpec to a concrete
// strategy.StopTakeHandler by name, the inverse of the names addStopHandler
// / addTakeHandler emit in builder.go.
func buildHandler(h HandlerSpec) (strategy.StopTakeHandler, error) {
	switch h.Name {
	case "StopLossPct":
		return &strategy.StopLossPct{Pct: h.Params["pct"]}, nil
	case "TakeProfitPct":
		return &strategy.TakeProfitPct{Pct: h.Params["pct"]}, nil
	case "PercentTrailingStop":
		return &strategy.PercentTrailingStop{Pct: h.Params["pct"]}, nil
	case "ATRTrailStop":
		return &strategy.ATRTrailStop{
			Multiplier: h.Params["multiplier"],
			ATRAlias:   "_aux_atr_" + h.ID,
			ATRPeriod:  int(h.Params["period"]),
			Timeframe:  h.Timeframe,
		}, nil
	case "ATRTrailIndicatorStop":
		return &strategy.ATRTrailIndicatorStop{
			Multiplier:  h.Params["multiplier"],
			AnchorAlias: h.AnchorAlias,
			ATRAlias:    "_aux_atr_" + h.ID,
			ATRPeriod:   int(h.Params["period"]),
			Timeframe:   h.Timeframe,
		}, nil
	case "HILOTrailingStop":
		return &strategy.HILOTrailingStop{
			Period:    int(h.Params["period"]),
			MaxAlias:  "_aux_max_" + h.ID,
			MinAlias:  "_aux_min_" + h.ID,
			Timeframe: h.Timeframe,
		}, nil
	case "PercentTrailIndicatorStop":
		return &strategy.PercentTrailIndicatorStop{Pct: h.Params["pct"], AnchorAlias: h.AnchorAlias}, nil
	case "IndicatorStop":
		return &strategy.IndicatorStop{Alias: h.AnchorAlias}, nil
	default:
		return nil, fmt.Errorf("discovery: unknown handler %q", h.Name)
	}
}
