// Package trade defines the executed-trade record emitted by the book's
// matching loop.
package trade

import (
	"fmt"
	"time"

	"github.com/quill-markets/matchcore/internal/types"
)

// Trade records a single match between a resting maker and an
// aggressing taker.
type Trade struct {
	TradeID        types.TradeID
	Symbol         types.Symbol
	Price          types.Price
	Quantity       types.Quantity
	MakerOrderID   types.OrderID
	TakerOrderID   types.OrderID
	AggressorSide  types.Side
	Timestamp      time.Time
	MakerFee       float64
	TakerFee       float64
	MakerFeeRate   float64
	TakerFeeRate   float64
}

func (t Trade) String() string {
	return fmt.Sprintf(
		"Trade{id=%s symbol=%s price=%.8f qty=%.8f maker=%s taker=%s aggressor=%s}",
		t.TradeID, t.Symbol, t.Price, t.Quantity, t.MakerOrderID, t.TakerOrderID, t.AggressorSide,
	)
}
