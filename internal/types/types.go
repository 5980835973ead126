// Package types holds the domain primitives shared across the matching
// engine: symbols, sides, order/trade identifiers and the epsilon-aware
// numeric comparisons everything else is built on.
package types

import (
	"fmt"

	"github.com/quill-markets/matchcore/internal/config"
)

// Symbol identifies a tradable instrument, e.g. "BTC-USDT".
type Symbol string

// Side is the direction of an order.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// OrderType enumerates the order protocols the core understands.
type OrderType int

const (
	Market OrderType = iota
	Limit
	IOC
	FOK
	StopLoss
	StopLimit
	TakeProfit
)

func (t OrderType) String() string {
	switch t {
	case Market:
		return "MARKET"
	case Limit:
		return "LIMIT"
	case IOC:
		return "IOC"
	case FOK:
		return "FOK"
	case StopLoss:
		return "STOP_LOSS"
	case StopLimit:
		return "STOP_LIMIT"
	case TakeProfit:
		return "TAKE_PROFIT"
	default:
		return "UNKNOWN"
	}
}

// IsStop reports whether the order type is one of the three conditional
// types held off-book by the stop manager until triggered.
func (t OrderType) IsStop() bool {
	return t == StopLoss || t == StopLimit || t == TakeProfit
}

// OrderStatus is the lifecycle state of an order. Status only ever
// progresses forward: PENDING -> (ACTIVE -> PARTIAL_FILL)* -> terminal.
type OrderStatus int

const (
	Pending OrderStatus = iota
	Active
	PartialFill
	Filled
	Cancelled
	Rejected
)

func (s OrderStatus) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Active:
		return "ACTIVE"
	case PartialFill:
		return "PARTIAL_FILL"
	case Filled:
		return "FILLED"
	case Cancelled:
		return "CANCELLED"
	case Rejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether no further transition is allowed.
func (s OrderStatus) IsTerminal() bool {
	return s == Filled || s == Cancelled || s == Rejected
}

// Price and Quantity are plain float64s compared with Epsilon tolerance
// in the matching, fill and trigger predicates; price-level lookup and
// admission validation compare them exactly. A fixed-point or integer-minor-units implementation could
// substitute here without changing any caller's observable behavior.
type Price = float64
type Quantity = float64

// OrderID is an engine-assigned identifier of the form ORD<12-digit counter>.
type OrderID string

// FormatOrderID zero-pads a counter into the engine's order id format.
func FormatOrderID(counter uint64) OrderID {
	return OrderID(fmt.Sprintf("ORD%012d", counter))
}

// TradeID is a per-book identifier of the form <symbol>_<10-digit counter>.
type TradeID string

// FormatTradeID zero-pads a per-book counter into the trade id format.
func FormatTradeID(symbol Symbol, counter uint64) TradeID {
	return TradeID(fmt.Sprintf("%s_%010d", symbol, counter))
}

// EqualPrice reports whether a and b are within Epsilon of each other.
func EqualPrice(a, b Price) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < config.Epsilon
}

// GreaterOrEqual reports whether a >= b - Epsilon.
func GreaterOrEqual(a, b Price) bool {
	return a >= b-config.Epsilon
}

// LessOrEqual reports whether a <= b + Epsilon.
func LessOrEqual(a, b Price) bool {
	return a <= b+config.Epsilon
}
