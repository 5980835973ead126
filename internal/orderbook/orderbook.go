// Package orderbook implements the per-symbol order book: two
// price-indexed level maps (bids descending, asks ascending), an
// order-id lookup, a cached BBO, and the matching primitive that is the
// heart of the engine.
package orderbook

import (
	"sync"
	"time"

	"github.com/tidwall/btree"

	"github.com/quill-markets/matchcore/internal/config"
	"github.com/quill-markets/matchcore/internal/order"
	"github.com/quill-markets/matchcore/internal/pricelevel"
	"github.com/quill-markets/matchcore/internal/trade"
	"github.com/quill-markets/matchcore/internal/types"
)

// Levels is a btree of price levels ordered by the comparator supplied
// at construction (descending for bids, ascending for asks).
type Levels = btree.BTreeG[*pricelevel.PriceLevel]

// Level is a read-only aggregated view of one price level, returned by
// GetBids/GetAsks.
type Level struct {
	Price    types.Price
	Quantity types.Quantity
}

// OrderBook holds the resting liquidity for a single symbol.
type OrderBook struct {
	Symbol types.Symbol

	mu   sync.RWMutex
	bids *Levels
	asks *Levels

	orders map[types.OrderID]*order.Order

	bestBid    types.Price
	haveBid    bool
	bestAsk    types.Price
	haveAsk    bool

	sequenceCounter uint64
	tradeIDCounter  uint64
}

// New creates an empty order book for a symbol.
func New(symbol types.Symbol) *OrderBook {
	bids := btree.NewBTreeG(func(a, b *pricelevel.PriceLevel) bool {
		return a.Price > b.Price // descending: best bid first
	})
	asks := btree.NewBTreeG(func(a, b *pricelevel.PriceLevel) bool {
		return a.Price < b.Price // ascending: best ask first
	})
	return &OrderBook{
		Symbol: symbol,
		bids:   bids,
		asks:   asks,
		orders: make(map[types.OrderID]*order.Order),
	}
}

func (b *OrderBook) levelsFor(side types.Side) *Levels {
	if side == types.Buy {
		return b.bids
	}
	return b.asks
}

// AddOrder inserts a resting order into the correct side, creating the
// level if absent, and refreshes the BBO cache. It assigns the order's
// book-sequence number, used as the secondary (time) priority key.
func (b *OrderBook) AddOrder(o *order.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()

	o.Sequence = b.sequenceCounter
	b.sequenceCounter++

	levels := b.levelsFor(o.Side)
	if level, ok := levels.Get(&pricelevel.PriceLevel{Price: o.Price}); ok {
		level.Add(o)
	} else {
		level := pricelevel.New(o.Price)
		level.Add(o)
		levels.Set(level)
	}

	b.orders[o.OrderID] = o
	o.Status = types.Active
	b.refreshBBO()
}

// CancelOrder removes a resting order by id. Idempotent: a second call
// for an id already removed returns false.
func (b *OrderBook) CancelOrder(id types.OrderID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[id]
	if !ok {
		return false
	}

	levels := b.levelsFor(o.Side)
	level, ok := levels.Get(&pricelevel.PriceLevel{Price: o.Price})
	if !ok || !level.RemoveByID(id) {
		return false
	}
	if level.IsEmpty() {
		levels.Delete(level)
	}

	delete(b.orders, id)
	o.Status = types.Cancelled
	b.refreshBBO()
	return true
}

// GetOrder looks up a resting order by id.
func (b *OrderBook) GetOrder(id types.OrderID) (*order.Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	o, ok := b.orders[id]
	return o, ok
}

// MatchOrder matches an incoming taker against the opposite side of the
// book until the taker is fully filled or no remaining opposite price
// satisfies the taker's CanMatchAtPrice (the no-trade-through guarantee).
// It never touches the taker's own side, so a LIMIT order inserted
// before calling MatchOrder cannot match itself. Trades are returned in
// execution order.
func (b *OrderBook) MatchOrder(taker *order.Order) []trade.Trade {
	b.mu.Lock()
	defer b.mu.Unlock()

	var opposite *Levels
	if taker.Side == types.Buy {
		opposite = b.asks
	} else {
		opposite = b.bids
	}

	var trades []trade.Trade
	for !taker.IsFullyFilled() {
		level, ok := opposite.Min()
		if !ok {
			break
		}
		if !taker.CanMatchAtPrice(level.Price) {
			break
		}

		for !taker.IsFullyFilled() && !level.IsEmpty() {
			maker := level.FrontOrder()
			fillQty := min(taker.Remaining(), maker.Remaining())

			t := b.newTrade(maker, taker, level.Price, fillQty)
			trades = append(trades, t)

			taker.Fill(fillQty, level.Price)
			maker.Fill(fillQty, level.Price)

			if maker.IsFullyFilled() {
				level.RemoveFront()
				delete(b.orders, maker.OrderID)
			}
			level.UpdateQuantity()
		}

		if level.IsEmpty() {
			opposite.Delete(level)
		}
	}

	b.refreshBBO()
	return trades
}

func (b *OrderBook) newTrade(maker, taker *order.Order, price types.Price, qty types.Quantity) trade.Trade {
	id := types.FormatTradeID(b.Symbol, b.tradeIDCounter)
	b.tradeIDCounter++

	return trade.Trade{
		TradeID:       id,
		Symbol:        b.Symbol,
		Price:         price,
		Quantity:      qty,
		MakerOrderID:  maker.OrderID,
		TakerOrderID:  taker.OrderID,
		AggressorSide: taker.Side,
		Timestamp:     time.Now(),
		MakerFee:      config.MakerFee(price, qty),
		TakerFee:      config.TakerFee(price, qty),
		MakerFeeRate:  config.MakerFeeRate,
		TakerFeeRate:  config.TakerFeeRate,
	}
}

// RefreshResting recomputes the aggregate quantity of the price level a
// LIMIT order rests at after it has acted as a taker against the
// opposite side, and removes it from its own side entirely if that
// matching fully filled it. Used by the engine's LIMIT router, since
// MatchOrder only ever touches the opposite side and cannot itself
// retire a fully filled taker from its own resting side.
func (b *OrderBook) RefreshResting(o *order.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()

	levels := b.levelsFor(o.Side)
	level, ok := levels.Get(&pricelevel.PriceLevel{Price: o.Price})
	if !ok {
		return
	}

	if o.IsFullyFilled() {
		level.RemoveByID(o.OrderID)
		delete(b.orders, o.OrderID)
		if level.IsEmpty() {
			levels.Delete(level)
		}
	} else {
		level.UpdateQuantity()
	}
	b.refreshBBO()
}

// CanFillFOK reports whether the order's full quantity could be filled
// immediately: walking the opposite side best-price-first, summing
// level quantities at prices the order accepts, until the running total
// meets or exceeds the order's quantity. Read-only; does not mutate.
func (b *OrderBook) CanFillFOK(o *order.Order) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var opposite *Levels
	if o.Side == types.Buy {
		opposite = b.asks
	} else {
		opposite = b.bids
	}

	remaining := o.Quantity
	ok := false
	opposite.Scan(func(level *pricelevel.PriceLevel) bool {
		if !o.CanMatchAtPrice(level.Price) {
			return false
		}
		remaining -= level.Quantity
		if remaining <= config.Epsilon {
			ok = true
			return false
		}
		return true
	})
	return ok
}

// GetBids returns up to depth aggregated bid levels, best first.
func (b *OrderBook) GetBids(depth int) []Level {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return snapshot(b.bids, depth)
}

// GetAsks returns up to depth aggregated ask levels, best first.
func (b *OrderBook) GetAsks(depth int) []Level {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return snapshot(b.asks, depth)
}

func snapshot(levels *Levels, depth int) []Level {
	out := make([]Level, 0, depth)
	levels.Scan(func(level *pricelevel.PriceLevel) bool {
		if len(out) >= depth {
			return false
		}
		out = append(out, Level{Price: level.Price, Quantity: level.Quantity})
		return true
	})
	return out
}

// GetBBO returns the best bid and ask prices, each with an ok flag that
// is false when that side of the book is empty.
func (b *OrderBook) GetBBO() (bid types.Price, haveBid bool, ask types.Price, haveAsk bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bestBid, b.haveBid, b.bestAsk, b.haveAsk
}

// Spread returns best_ask - best_bid, or 0 if either side is empty.
func (b *OrderBook) Spread() types.Price {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.haveBid || !b.haveAsk {
		return 0
	}
	return b.bestAsk - b.bestBid
}

// TotalOrders returns the number of orders currently resting in the book.
func (b *OrderBook) TotalOrders() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.orders)
}

// refreshBBO recomputes the cached best bid/ask. Callers must hold b.mu.
func (b *OrderBook) refreshBBO() {
	if level, ok := b.bids.Min(); ok {
		b.bestBid, b.haveBid = level.Price, true
	} else {
		b.haveBid = false
	}
	if level, ok := b.asks.Min(); ok {
		b.bestAsk, b.haveAsk = level.Price, true
	} else {
		b.haveAsk = false
	}
}
