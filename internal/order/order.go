// Package order defines the per-order record and the small set of
// predicates matching and triggering are built on.
package order

import (
	"fmt"
	"time"

	"github.com/quill-markets/matchcore/internal/config"
	"github.com/quill-markets/matchcore/internal/types"
)

// Order is a single trading order. Fields are plain data; the methods
// below are pure predicates/mutators used by the book and the engine.
type Order struct {
	OrderID       types.OrderID
	ClientOrderID string
	Symbol        types.Symbol
	Type          types.OrderType
	Side          types.Side
	Price         types.Price // 0 for MARKET / triggered-market
	Quantity      types.Quantity
	FilledQty     types.Quantity
	AvgFillPrice  types.Price
	StopPrice     types.Price // 0 when not a stop order
	Status        types.OrderStatus
	Timestamp     time.Time
	Sequence      uint64 // assigned at book insertion, for time priority
}

// Remaining returns the quantity still unfilled.
func (o *Order) Remaining() types.Quantity {
	return o.Quantity - o.FilledQty
}

// IsFullyFilled reports whether the remaining quantity is within epsilon
// of zero.
func (o *Order) IsFullyFilled() bool {
	return o.Remaining() < config.Epsilon
}

// CanMatchAtPrice reports whether the order would accept a trade at the
// given price. MARKET orders accept any price; BUY limits require
// price >= match_price; SELL limits require price <= match_price. This
// is the no-trade-through check used by the book's matching loop.
func (o *Order) CanMatchAtPrice(matchPrice types.Price) bool {
	if o.Type == types.Market {
		return true
	}
	if o.Side == types.Buy {
		return types.GreaterOrEqual(o.Price, matchPrice)
	}
	return types.LessOrEqual(o.Price, matchPrice)
}

// Fill records a partial or full execution at fillPrice, updating the
// quantity-weighted average fill price and the order's status. Final
// status adjustments specific to an order type (e.g. an IOC remainder
// being cancelled) are the router's responsibility, not this method's.
func (o *Order) Fill(qty types.Quantity, fillPrice types.Price) {
	totalFilled := o.FilledQty + qty
	if totalFilled > 0 {
		o.AvgFillPrice = ((o.FilledQty * o.AvgFillPrice) + (qty * fillPrice)) / totalFilled
	}
	o.FilledQty = totalFilled
	if o.IsFullyFilled() {
		o.Status = types.Filled
	} else {
		o.Status = types.PartialFill
	}
}

// IsStopOrder reports whether this order is one of the three conditional
// types held by the stop manager until triggered.
func (o *Order) IsStopOrder() bool {
	return o.Type.IsStop()
}

// ShouldTrigger reports whether a stop order activates given the most
// recent trade price. Non-stop orders and non-positive stop prices never
// trigger.
func (o *Order) ShouldTrigger(lastTradePrice types.Price) bool {
	if !o.IsStopOrder() || o.StopPrice <= 0 {
		return false
	}
	if o.Side == types.Buy {
		if o.Type == types.TakeProfit {
			return types.LessOrEqual(lastTradePrice, o.StopPrice)
		}
		return types.GreaterOrEqual(lastTradePrice, o.StopPrice)
	}
	if o.Type == types.TakeProfit {
		return types.GreaterOrEqual(lastTradePrice, o.StopPrice)
	}
	return types.LessOrEqual(lastTradePrice, o.StopPrice)
}

// Trigger converts a pending stop order into its executable successor
// type: STOP_LOSS/TAKE_PROFIT become a MARKET order (price reset to 0);
// STOP_LIMIT becomes a LIMIT order at its existing limit price.
func (o *Order) Trigger() {
	switch o.Type {
	case types.StopLoss, types.TakeProfit:
		o.Type = types.Market
		o.Price = 0
	case types.StopLimit:
		o.Type = types.Limit
	}
}

func (o *Order) String() string {
	return fmt.Sprintf(
		"Order{id=%s symbol=%s type=%s side=%s price=%.8f qty=%.8f filled=%.8f status=%s}",
		o.OrderID, o.Symbol, o.Type, o.Side, o.Price, o.Quantity, o.FilledQty, o.Status,
	)
}
