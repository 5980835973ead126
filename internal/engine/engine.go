// Package engine implements MatchingEngineCore: order admission,
// validation, per-type routing, the stop-order trigger cascade, and the
// two observer hooks front-ends attach to. It is the only package in
// this module that composes orderbook and stopmanager together.
package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quill-markets/matchcore/internal/config"
	"github.com/quill-markets/matchcore/internal/order"
	"github.com/quill-markets/matchcore/internal/orderbook"
	"github.com/quill-markets/matchcore/internal/stopmanager"
	"github.com/quill-markets/matchcore/internal/trade"
	"github.com/quill-markets/matchcore/internal/types"
)

// SubmitRequest is the admission payload a transport front-end builds
// from a parsed wire message (§6 OrderRecord).
type SubmitRequest struct {
	ClientOrderID string
	Symbol        types.Symbol
	Type          types.OrderType
	Side          types.Side
	Quantity      types.Quantity
	Price         types.Price
	StopPrice     types.Price
}

// Engine is the matching core façade. Zero value is not usable; build
// one with New.
type Engine struct {
	booksMu sync.RWMutex
	books   map[types.Symbol]*orderbook.OrderBook

	ordersMu  sync.RWMutex
	allOrders map[types.OrderID]*order.Order

	stops *stopmanager.StopOrderManager

	orderIDCounter uint64

	callbackMu         sync.RWMutex
	tradeCallback      func(trade.Trade)
	bookUpdateCallback func(types.Symbol)

	totalOrdersProcessed uint64
	totalTradesExecuted  uint64
}

// New builds an empty engine with no books; books are created lazily on
// first admission to a symbol.
func New() *Engine {
	return &Engine{
		books:     make(map[types.Symbol]*orderbook.OrderBook),
		allOrders: make(map[types.OrderID]*order.Order),
		stops:     stopmanager.New(),
	}
}

// SetTradeCallback installs the function invoked synchronously,
// in execution order, for every trade the engine produces. It must not
// re-enter the engine.
func (e *Engine) SetTradeCallback(fn func(trade.Trade)) {
	e.callbackMu.Lock()
	defer e.callbackMu.Unlock()
	e.tradeCallback = fn
}

// SetBookUpdateCallback installs the function invoked synchronously
// when a LIMIT order is inserted, when a LIMIT order's own matching
// produced trades, and when a resting order is cancelled. Matches made
// by MARKET, IOC and FOK orders do not invoke it. It must not re-enter
// the engine.
func (e *Engine) SetBookUpdateCallback(fn func(types.Symbol)) {
	e.callbackMu.Lock()
	defer e.callbackMu.Unlock()
	e.bookUpdateCallback = fn
}

// SubmitOrder assigns an id, validates, registers, routes by type, and
// returns the assigned id — or "" if validation rejected the order.
func (e *Engine) SubmitOrder(req SubmitRequest) types.OrderID {
	o := &order.Order{
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Type:          req.Type,
		Side:          req.Side,
		Quantity:      req.Quantity,
		Price:         req.Price,
		StopPrice:     req.StopPrice,
		Status:        types.Pending,
		Timestamp:     time.Now(),
	}
	o.OrderID = e.nextOrderID()

	defer atomic.AddUint64(&e.totalOrdersProcessed, 1)

	if verr := validate(o); verr != nil {
		o.Status = types.Rejected
		log.Warn().
			Str("order_id", string(o.OrderID)).
			Str("symbol", string(o.Symbol)).
			Str("reason", verr.Reason.String()).
			Msg("engine: order rejected")
		return ""
	}

	e.registerOrder(o)
	e.route(o)
	return o.OrderID
}

// CancelOrder cancels a resting or pending stop order by id. Terminal
// or unknown orders return false; idempotent.
func (e *Engine) CancelOrder(id types.OrderID) bool {
	e.ordersMu.RLock()
	o, ok := e.allOrders[id]
	e.ordersMu.RUnlock()
	if !ok {
		return false
	}

	switch {
	case o.Status == types.Pending && o.IsStopOrder():
		return e.stops.Cancel(id)
	case o.Status == types.Active || o.Status == types.PartialFill:
		book, ok := e.getBook(o.Symbol)
		if !ok {
			return false
		}
		cancelled := book.CancelOrder(id)
		if cancelled {
			e.emitBookUpdate(o.Symbol)
		}
		return cancelled
	default:
		return false
	}
}

// GetOrder looks up any order the engine has ever admitted, at any
// lifecycle stage.
func (e *Engine) GetOrder(id types.OrderID) (*order.Order, bool) {
	e.ordersMu.RLock()
	defer e.ordersMu.RUnlock()
	o, ok := e.allOrders[id]
	return o, ok
}

// GetOrderBook returns the book handle for a symbol, if one has been
// created (i.e. at least one order for that symbol has been admitted).
func (e *Engine) GetOrderBook(symbol types.Symbol) (*orderbook.OrderBook, bool) {
	return e.getBook(symbol)
}

// GetBBO returns the best bid/ask for a symbol. found is false if the
// symbol has no book yet.
func (e *Engine) GetBBO(symbol types.Symbol) (bid types.Price, haveBid bool, ask types.Price, haveAsk bool, found bool) {
	book, ok := e.getBook(symbol)
	if !ok {
		return 0, false, 0, false, false
	}
	bid, haveBid, ask, haveAsk = book.GetBBO()
	return bid, haveBid, ask, haveAsk, true
}

// TotalOrdersProcessed returns the lifetime count of submitOrder calls.
func (e *Engine) TotalOrdersProcessed() uint64 {
	return atomic.LoadUint64(&e.totalOrdersProcessed)
}

// TotalTradesExecuted returns the lifetime count of trades produced,
// including those produced by triggered stop orders.
func (e *Engine) TotalTradesExecuted() uint64 {
	return atomic.LoadUint64(&e.totalTradesExecuted)
}

// validate applies the §6 admission rules. Returns nil if the order is
// admissible.
func validate(o *order.Order) *ValidationError {
	if o.Symbol == "" {
		return &ValidationError{Reason: BadSymbol}
	}
	if o.Quantity <= 0 {
		return &ValidationError{Reason: NonPositiveQuantity}
	}
	if o.Quantity < config.MinOrderSize {
		return &ValidationError{Reason: QuantityTooSmall}
	}

	switch o.Type {
	case types.Limit, types.IOC, types.FOK:
		if o.Price <= 0 {
			return &ValidationError{Reason: LimitRequiresPrice}
		}
	case types.Market:
		if o.Price != 0 {
			return &ValidationError{Reason: MarketForbidsPrice}
		}
	case types.StopLoss, types.TakeProfit:
		if o.StopPrice <= 0 {
			return &ValidationError{Reason: StopRequiresStopPrice}
		}
	case types.StopLimit:
		if o.StopPrice <= 0 {
			return &ValidationError{Reason: StopRequiresStopPrice}
		}
		if o.Price <= 0 {
			return &ValidationError{Reason: StopLimitRequiresLimitPrice}
		}
	}
	return nil
}

func (e *Engine) registerOrder(o *order.Order) {
	e.ordersMu.Lock()
	defer e.ordersMu.Unlock()
	e.allOrders[o.OrderID] = o
}

func (e *Engine) nextOrderID() types.OrderID {
	n := atomic.AddUint64(&e.orderIDCounter, 1) - 1
	return types.FormatOrderID(n)
}

// bookFor returns the book for symbol, creating it on first use.
func (e *Engine) bookFor(symbol types.Symbol) *orderbook.OrderBook {
	e.booksMu.RLock()
	b, ok := e.books[symbol]
	e.booksMu.RUnlock()
	if ok {
		return b
	}

	e.booksMu.Lock()
	defer e.booksMu.Unlock()
	if b, ok := e.books[symbol]; ok {
		return b
	}
	b = orderbook.New(symbol)
	e.books[symbol] = b
	return b
}

func (e *Engine) getBook(symbol types.Symbol) (*orderbook.OrderBook, bool) {
	e.booksMu.RLock()
	defer e.booksMu.RUnlock()
	b, ok := e.books[symbol]
	return b, ok
}

// route dispatches an order to its type's handler. Called both for
// freshly admitted orders and, recursively, for orders converted out of
// the stop manager by the trigger cascade.
func (e *Engine) route(o *order.Order) {
	switch o.Type {
	case types.Market:
		e.routeMarket(o)
	case types.Limit:
		e.routeLimit(o)
	case types.IOC:
		e.routeIOC(o)
	case types.FOK:
		e.routeFOK(o)
	case types.StopLoss, types.StopLimit, types.TakeProfit:
		e.routeStop(o)
	}
}

func (e *Engine) routeMarket(o *order.Order) {
	book := e.bookFor(o.Symbol)
	trades := book.MatchOrder(o)
	e.emitTrades(o.Symbol, trades)

	switch {
	case o.IsFullyFilled():
		o.Status = types.Filled
	case len(trades) > 0:
		o.Status = types.PartialFill
	default:
		o.Status = types.Cancelled
	}
}

// routeLimit inserts the order before matching, so its resting
// visibility precedes any trade it produces; matching only ever walks
// the opposite side so it can never match against itself.
func (e *Engine) routeLimit(o *order.Order) {
	book := e.bookFor(o.Symbol)
	book.AddOrder(o)
	e.emitBookUpdate(o.Symbol)

	trades := book.MatchOrder(o)
	if len(trades) > 0 {
		book.RefreshResting(o)
	}
	e.emitTrades(o.Symbol, trades)

	if len(trades) > 0 {
		e.emitBookUpdate(o.Symbol)
	}
}

func (e *Engine) routeIOC(o *order.Order) {
	book := e.bookFor(o.Symbol)
	trades := book.MatchOrder(o)
	e.emitTrades(o.Symbol, trades)

	switch {
	case o.IsFullyFilled():
		o.Status = types.Filled
	case len(trades) > 0:
		o.Status = types.PartialFill
	default:
		o.Status = types.Cancelled
	}
}

func (e *Engine) routeFOK(o *order.Order) {
	book := e.bookFor(o.Symbol)
	if !book.CanFillFOK(o) {
		o.Status = types.Cancelled
		return
	}

	trades := book.MatchOrder(o)
	e.emitTrades(o.Symbol, trades)

	if o.IsFullyFilled() {
		o.Status = types.Filled
		return
	}

	// Unreachable in a correct implementation: feasibility passed but the
	// fill fell short. Defensive per the failure semantics: cancel, don't
	// panic.
	log.Error().
		Str("order_id", string(o.OrderID)).
		Str("symbol", string(o.Symbol)).
		Float64("remaining", o.Remaining()).
		Msg("engine: FOK feasibility check passed but fill fell short")
	o.Status = types.Cancelled
}

func (e *Engine) routeStop(o *order.Order) {
	if o.StopPrice <= 0 || (o.Type == types.StopLimit && o.Price <= 0) {
		o.Status = types.Rejected
		return
	}
	e.stops.Add(o)
}

// emitTrades fans each trade out to the trade callback and, immediately
// after, checks the stop manager for orders that trade's price
// triggers, recursively routing each one. This is the composition point
// where a single trade can ignite further matching.
func (e *Engine) emitTrades(symbol types.Symbol, trades []trade.Trade) {
	for _, t := range trades {
		atomic.AddUint64(&e.totalTradesExecuted, 1)
		e.invokeTradeCallback(t)

		triggered := e.stops.CheckTriggers(symbol, t.Price)
		for _, to := range triggered {
			e.route(to)
		}
	}
}

func (e *Engine) invokeTradeCallback(t trade.Trade) {
	e.callbackMu.RLock()
	cb := e.tradeCallback
	e.callbackMu.RUnlock()
	if cb != nil {
		cb(t)
	}
}

func (e *Engine) emitBookUpdate(symbol types.Symbol) {
	e.callbackMu.RLock()
	cb := e.bookUpdateCallback
	e.callbackMu.RUnlock()
	if cb != nil {
		cb(symbol)
	}
}
