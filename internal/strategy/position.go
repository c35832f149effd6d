package strategy

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aeroalgo/robots-sub000/pkg/types"
)

// ActivePosition is a strategy's own open-position record, owned by the
// engine. Stop/take handlers receive it directly; trailing handlers write
// CurrentStop in ComputeStopLevel, and nothing else in it is changed by a
// handler.
type ActivePosition struct {
	ID             uuid.UUID
	EntryRuleID    string
	PositionGroup  string
	Direction      types.Direction
	Quantity       float64
	EntryPrice     float64
	EntryIndex     int
	EntryTime      time.Time
	Timeframe      types.Timeframe
	CurrentStop    float64 // 0 means "no active stop"
	HighestClose   float64 // tracks the best excursion for trailing stops
	LowestClose    float64
}

// NewActivePosition opens a position at the given bar.
func NewActivePosition(ruleID, group string, dir types.Direction, qty, price float64, index int, t time.Time, tf types.Timeframe) *ActivePosition {
	return &ActivePosition{
		ID:            uuid.New(),
		EntryRuleID:   ruleID,
		PositionGroup: group,
		Direction:     dir,
		Quantity:      qty,
		EntryPrice:    price,
		EntryIndex:    index,
		EntryTime:     t,
		Timeframe:     tf,
		HighestClose:  price,
		LowestClose:   price,
	}
}

// UpdateExcursion refreshes the running highest/lowest close used by
// trailing-stop handlers.
func (p *ActivePosition) UpdateExcursion(close float64) {
	if close > p.HighestClose {
		p.HighestClose = close
	}
	if close < p.LowestClose {
		p.LowestClose = close
	}
}

// ToTrade converts a closed position into a reportable Trade.
func (p *ActivePosition) ToTrade(exitPrice float64, exitIndex int, exitTime time.Time, reason types.ExitReason) types.Trade {
	pnl := decimal.NewFromFloat(exitPrice - p.EntryPrice).Mul(decimal.NewFromFloat(p.Quantity))
	if p.Direction == types.DirectionShort {
		pnl = decimal.NewFromFloat(p.EntryPrice - exitPrice).Mul(decimal.NewFromFloat(p.Quantity))
	}
	return types.Trade{
		ID:          p.ID,
		EntryRuleID: p.EntryRuleID,
		Direction:   p.Direction,
		EntryIndex:  p.EntryIndex,
		ExitIndex:   exitIndex,
		EntryPrice:  decimal.NewFromFloat(p.EntryPrice),
		ExitPrice:   decimal.NewFromFloat(exitPrice),
		Quantity:    decimal.NewFromFloat(p.Quantity),
		PnL:         pnl,
		ExitReason:  reason,
		EntryTime:   p.EntryTime,
		ExitTime:    exitTime,
	}
}
