package strategy

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/aeroalgo/robots-sub000/internal/runtime"
	"github.com/aeroalgo/robots-sub000/pkg/types"
)

// Engine drives one strategy definition bar-by-bar over its base
// timeframe's price frame, combining stop/take handlers, exit rules and
// entry rules in the fixed order: handlers, then exit rules, then entry
// rules, each bar.
type Engine struct {
	def        *StrategyDefinition
	evaluator  *runtime.Evaluator
	conditions map[string]*PreparedCondition
	frames     map[types.Timeframe]types.PriceFrame

	handlers []StopTakeHandler // stop handlers and take handlers combined, sorted by priority ascending
	open     []*ActivePosition
}

// NewEngine resolves every auxiliary indicator a handler needs, prepares
// indicator bindings and condition vectors, and returns a ready-to-run
// Engine.
func NewEngine(def *StrategyDefinition, frames map[types.Timeframe]types.PriceFrame, logger *zap.Logger) (*Engine, error) {
	if err := def.Validate(frames); err != nil {
		return nil, err
	}
	ev := runtime.New(frames, logger)
	if err := ev.Prepare(def.IndicatorBindings); err != nil {
		return nil, fmt.Errorf("strategy: preparing indicator bindings: %w", err)
	}

	var auxSpecs []runtime.AuxiliaryIndicatorSpec
	handlers := make([]StopTakeHandler, 0, len(def.StopHandlers)+len(def.TakeHandlers))
	handlers = append(handlers, def.StopHandlers...)
	handlers = append(handlers, def.TakeHandlers...)
	for _, h := range handlers {
		auxSpecs = append(auxSpecs, h.AuxiliaryIndicators()...)
	}
	if err := ev.ResolveAuxiliary(auxSpecs); err != nil {
		return nil, fmt.Errorf("strategy: resolving auxiliary indicators: %w", err)
	}

	conditions, err := PrepareConditions(def.ConditionBindings, frames, ev, def.BaseTimeframe)
	if err != nil {
		return nil, err
	}

	sort.Slice(handlers, func(i, j int) bool { return handlers[i].Priority() < handlers[j].Priority() })

	return &Engine{
		def:        def,
		evaluator:  ev,
		conditions: conditions,
		frames:     frames,
		handlers:   handlers,
	}, nil
}

// Run walks the base timeframe's price frame from start to end, applying
// the per-bar pipeline and returning the completed trade log and equity
// curve. Equity starts at startingCash.
func (e *Engine) Run(startingCash float64) types.Report {
	frame := e.frames[e.def.BaseTimeframe]
	n := frame.Len()
	cash := startingCash
	var trades []types.Trade
	equity := make([]types.EquityCurvePoint, 0, n)

	for i := 0; i < n; i++ {
		bar := frame.Bars[i]

		e.processExits(i, bar, &cash, &trades)
		e.processEntries(i, bar)

		unrealized := e.markToMarket(bar)
		curve := cash + unrealized
		equity = append(equity, types.EquityCurvePoint{Index: i, Timestamp: bar.Timestamp, Equity: decimal.NewFromFloat(curve)})
	}

	if n > 0 {
		last := frame.Bars[n-1]
		for _, pos := range e.open {
			trade := pos.ToTrade(last.Close, n-1, last.Timestamp, types.ExitReasonEndOfData)
			cash += trade.PnL.InexactFloat64()
			trades = append(trades, trade)
		}
		e.open = nil
	}

	metrics := NewMetricsCalculator().Calculate(trades, equity, decimal.NewFromFloat(startingCash))
	return types.Report{Trades: trades, EquityCurve: equity, Metrics: metrics}
}

func (e *Engine) markToMarket(bar types.Bar) float64 {
	var sum float64
	for _, pos := range e.open {
		if pos.Direction == types.DirectionShort {
			sum += (pos.EntryPrice - bar.Close) * pos.Quantity
		} else {
			sum += (bar.Close - pos.EntryPrice) * pos.Quantity
		}
	}
	return sum
}

// processExits evaluates stop/take handlers (priority order, first
// breach wins per position) followed by exit rules, for every currently
// open position. Rule combination reads the previous closed bar
// (signalIndex = i-1) so a decision acted on at bar i never depends on
// that same bar's own close. Stop/take handlers intentionally read the current
// bar's high/low/open directly: they react to intrabar price action
// against a level fixed before the bar opened, which is not look-ahead.
func (e *Engine) processExits(i int, bar types.Bar, cash *float64, trades *[]types.Trade) {
	signalIndex := i - 1
	var stillOpen []*ActivePosition
	for _, pos := range e.open {
		pos.UpdateExcursion(bar.Close)

		exited := false
		for _, h := range e.handlers {
			level := h.ComputeStopLevel(pos, bar, i, e.evaluator)
			decision := h.Evaluate(pos, bar, i, level)
			if decision.ShouldExit {
				trade := pos.ToTrade(decision.ExitPrice, i, bar.Timestamp, decision.Reason)
				*cash += trade.PnL.InexactFloat64()
				*trades = append(*trades, trade)
				exited = true
				break
			}
		}
		if exited {
			continue
		}

		if signalIndex >= 0 && e.exitRuleFires(pos, signalIndex) {
			trade := pos.ToTrade(bar.Close, i, bar.Timestamp, types.ExitReasonRule)
			*cash += trade.PnL.InexactFloat64()
			*trades = append(*trades, trade)
			continue
		}

		stillOpen = append(stillOpen, pos)
	}
	e.open = stillOpen
}

func (e *Engine) exitRuleFires(pos *ActivePosition, signalIndex int) bool {
	for _, r := range e.def.ExitRules {
		if len(r.TargetEntryIDs) > 0 && !containsStr(r.TargetEntryIDs, pos.EntryRuleID) {
			continue
		}
		sig := EvaluateRule(r, e.conditions, signalIndex)
		if sig.Fired {
			return true
		}
	}
	return false
}

func containsStr(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// processEntries opens new positions for every entry rule that fires,
// deduplicated against existing open positions sharing the same
// timeframe, direction and entry-rule id. Reads the previous closed bar's
// signal, matching processExits.
func (e *Engine) processEntries(i int, bar types.Bar) {
	signalIndex := i - 1
	if signalIndex < 0 {
		return
	}
	for _, r := range e.def.EntryRules {
		sig := EvaluateRule(r, e.conditions, signalIndex)
		if !sig.Fired {
			continue
		}
		if e.hasOpenFor(r) {
			continue
		}
		qty := r.Quantity
		if qty == 0 {
			qty = e.def.DefaultQuantity
		}
		pos := NewActivePosition(r.ID, r.ID, r.Direction, qty, bar.Close, i, bar.Timestamp, e.def.BaseTimeframe)
		rejected := false
		for _, h := range e.handlers {
			if err := h.ValidateBeforeEntry(pos); err != nil {
				rejected = true
				break
			}
		}
		if rejected {
			continue
		}
		e.open = append(e.open, pos)
	}
}

func (e *Engine) hasOpenFor(r Rule) bool {
	for _, pos := range e.open {
		if pos.EntryRuleID == r.ID && pos.Direction == r.Direction {
			return true
		}
	}
	return false
}
