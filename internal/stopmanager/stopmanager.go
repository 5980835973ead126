// Package stopmanager holds conditional orders (STOP_LOSS, STOP_LIMIT,
// TAKE_PROFIT) off the order book until the market trades through their
// stop price. It is the composition point that lets a single trade
// ignite further matching without the book itself knowing about
// conditional orders.
package stopmanager

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/quill-markets/matchcore/internal/order"
	"github.com/quill-markets/matchcore/internal/types"
)

// StopOrderManager holds pending stop orders, keyed by symbol, in
// admission order.
type StopOrderManager struct {
	mu     sync.Mutex
	orders map[types.Symbol][]*order.Order
}

// New creates an empty stop order manager.
func New() *StopOrderManager {
	return &StopOrderManager{orders: make(map[types.Symbol][]*order.Order)}
}

// Add registers a stop order as pending. The order must already be a
// stop type with a positive stop price; callers validate before this
// point (see engine's router), but Add defensively ignores anything
// else rather than corrupting the pending set.
func (m *StopOrderManager) Add(o *order.Order) {
	if !o.IsStopOrder() || o.StopPrice <= 0 {
		log.Warn().Str("order_id", string(o.OrderID)).Msg("stopmanager: refusing non-stop or invalid order")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	o.Status = types.Pending
	m.orders[o.Symbol] = append(m.orders[o.Symbol], o)
}

// CheckTriggers scans pending orders for symbol and removes, converts
// and returns every order whose ShouldTrigger predicate is satisfied by
// lastTradePrice. Returned orders are in admission order and have
// already been removed from the pending set exactly once, guaranteeing
// the trigger cascade terminates.
func (m *StopOrderManager) CheckTriggers(symbol types.Symbol, lastTradePrice types.Price) []*order.Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending, ok := m.orders[symbol]
	if !ok || len(pending) == 0 {
		return nil
	}

	var triggered []*order.Order
	remaining := pending[:0]
	for _, o := range pending {
		if o.ShouldTrigger(lastTradePrice) {
			o.Trigger()
			triggered = append(triggered, o)
			log.Debug().
				Str("order_id", string(o.OrderID)).
				Str("symbol", string(symbol)).
				Float64("last_trade_price", lastTradePrice).
				Msg("stopmanager: order triggered")
		} else {
			remaining = append(remaining, o)
		}
	}
	m.orders[symbol] = remaining

	return triggered
}

// Cancel searches every symbol for id, removing and marking it
// CANCELLED if found. Returns whether it was found.
func (m *StopOrderManager) Cancel(id types.OrderID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for symbol, pending := range m.orders {
		for i, o := range pending {
			if o.OrderID != id {
				continue
			}
			o.Status = types.Cancelled
			m.orders[symbol] = append(pending[:i], pending[i+1:]...)
			return true
		}
	}
	return false
}

// GetStopOrders returns the pending stop orders for a symbol.
func (m *StopOrderManager) GetStopOrders(symbol types.Symbol) []*order.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*order.Order, len(m.orders[symbol]))
	copy(out, m.orders[symbol])
	return out
}

// Count returns the total number of pending stop orders across all
// symbols.
func (m *StopOrderManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, pending := range m.orders {
		total += len(pending)
	}
	return total
}
