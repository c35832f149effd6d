package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Direction is the side of a position or signal.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
	DirectionBoth  Direction = "both"
	DirectionFlat  Direction = "flat"
)

// ExitReason names why a trade was closed.
type ExitReason string

const (
	ExitReasonStopLoss   ExitReason = "stop_loss"
	ExitReasonTakeProfit ExitReason = "take_profit"
	ExitReasonTrailing   ExitReason = "trailing_stop"
	ExitReasonRule       ExitReason = "exit_rule"
	ExitReasonEndOfData  ExitReason = "end_of_data"
)

// Trade is one completed round-trip position.
type Trade struct {
	ID           uuid.UUID
	EntryRuleID  string
	Direction    Direction
	EntryIndex   int
	ExitIndex    int
	EntryPrice   decimal.Decimal
	ExitPrice    decimal.Decimal
	Quantity     decimal.Decimal
	PnL          decimal.Decimal
	ExitReason   ExitReason
	EntryTime    time.Time
	ExitTime     time.Time
}

// EquityCurvePoint is one sample of running equity.
type EquityCurvePoint struct {
	Index     int
	Timestamp time.Time
	Equity    decimal.Decimal
}

// Metrics holds the performance metrics derived from a completed backtest:
// profit factor as sum(wins)/sum(losses), Sharpe/Sortino as mean/stdev of
// per-bar equity log-returns annualized by sqrt(252), max drawdown via a
// running-peak scan. CAGR holds the same value as AnnualizedReturn (mean
// per-bar log-return times 252); it is not derived from elapsed days.
type Metrics struct {
	TotalTrades      int
	WinningTrades    int
	LosingTrades     int
	WinRate          decimal.Decimal
	AvgWin           decimal.Decimal
	AvgLoss          decimal.Decimal
	LargestWin       decimal.Decimal
	LargestLoss      decimal.Decimal
	ProfitFactor     decimal.Decimal
	Expectancy       decimal.Decimal
	TotalProfit      decimal.Decimal
	TotalReturn      decimal.Decimal
	AnnualizedReturn decimal.Decimal
	CAGR             decimal.Decimal
	SharpeRatio      decimal.Decimal
	SortinoRatio     decimal.Decimal
	MaxDrawdown      decimal.Decimal
	MaxDrawdownAbs   decimal.Decimal
	MaxDrawdownAt    time.Time
	CalmarRatio      decimal.Decimal
}

// Report is the full output of walking a price series through a strategy
// engine: the trade log, the equity curve, and derived metrics.
type Report struct {
	Trades      []Trade
	EquityCurve []EquityCurvePoint
	Metrics     Metrics
}
