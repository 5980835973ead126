package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quill-markets/matchcore/internal/engine"
	"github.com/quill-markets/matchcore/internal/trade"
	"github.com/quill-markets/matchcore/internal/types"
)

const symbol types.Symbol = "BTC-USDT"

func limitReq(side types.Side, price, qty types.Price) engine.SubmitRequest {
	return engine.SubmitRequest{Symbol: symbol, Type: types.Limit, Side: side, Price: price, Quantity: qty}
}

// S1 — simple fill.
func TestSubmitOrder_SimpleFill(t *testing.T) {
	e := engine.New()

	sellID := e.SubmitOrder(limitReq(types.Sell, 50000, 1.0))
	require.NotEmpty(t, sellID)

	buyID := e.SubmitOrder(limitReq(types.Buy, 50000, 1.0))
	require.NotEmpty(t, buyID)

	buyOrder, ok := e.GetOrder(buyID)
	require.True(t, ok)
	assert.Equal(t, types.Filled, buyOrder.Status)

	sellOrder, ok := e.GetOrder(sellID)
	require.True(t, ok)
	assert.Equal(t, types.Filled, sellOrder.Status)

	assert.Equal(t, uint64(1), e.TotalTradesExecuted())
}

// S2 — partial fill leaves rest on book.
func TestSubmitOrder_PartialFillRests(t *testing.T) {
	e := engine.New()
	sellID := e.SubmitOrder(limitReq(types.Sell, 50000, 2.0))
	buyID := e.SubmitOrder(limitReq(types.Buy, 50000, 1.0))

	buyOrder, _ := e.GetOrder(buyID)
	assert.Equal(t, types.Filled, buyOrder.Status)

	sellOrder, _ := e.GetOrder(sellID)
	assert.Equal(t, types.PartialFill, sellOrder.Status)
	assert.Equal(t, 1.0, sellOrder.Remaining())

	book, ok := e.GetOrderBook(symbol)
	require.True(t, ok)
	_, haveBid, ask, haveAsk := book.GetBBO()
	assert.False(t, haveBid)
	assert.True(t, haveAsk)
	assert.Equal(t, 50000.0, ask)
}

// S3 — IOC remainder never rests.
func TestSubmitOrder_IOCRemainderDiscarded(t *testing.T) {
	e := engine.New()
	e.SubmitOrder(limitReq(types.Sell, 50000, 0.5))

	buyID := e.SubmitOrder(engine.SubmitRequest{Symbol: symbol, Type: types.IOC, Side: types.Buy, Price: 50000, Quantity: 1.0})
	buyOrder, _ := e.GetOrder(buyID)
	assert.Equal(t, types.PartialFill, buyOrder.Status)
	assert.Equal(t, 0.5, buyOrder.FilledQty)

	book, _ := e.GetOrderBook(symbol)
	_, found := book.GetOrder(buyID)
	assert.False(t, found)
}

// S4 — FOK kill.
func TestSubmitOrder_FOKKill(t *testing.T) {
	e := engine.New()
	sellID := e.SubmitOrder(limitReq(types.Sell, 50000, 0.5))

	buyID := e.SubmitOrder(engine.SubmitRequest{Symbol: symbol, Type: types.FOK, Side: types.Buy, Price: 50000, Quantity: 1.0})
	buyOrder, _ := e.GetOrder(buyID)
	assert.Equal(t, types.Cancelled, buyOrder.Status)
	assert.Equal(t, 0.0, buyOrder.FilledQty)

	sellOrder, _ := e.GetOrder(sellID)
	assert.Equal(t, types.Active, sellOrder.Status)
	assert.Equal(t, 0.5, sellOrder.Remaining())
}

// S5 — FOK multi-level success, emission order.
func TestSubmitOrder_FOKMultiLevelSuccess(t *testing.T) {
	e := engine.New()

	var trades []trade.Trade
	e.SetTradeCallback(func(tr trade.Trade) { trades = append(trades, tr) })

	e.SubmitOrder(limitReq(types.Sell, 50000, 0.8))
	sell2ID := e.SubmitOrder(limitReq(types.Sell, 50100, 0.5))

	buyID := e.SubmitOrder(engine.SubmitRequest{Symbol: symbol, Type: types.FOK, Side: types.Buy, Price: 50100, Quantity: 1.0})
	buyOrder, _ := e.GetOrder(buyID)
	assert.Equal(t, types.Filled, buyOrder.Status)

	require.Len(t, trades, 2)
	assert.Equal(t, 50000.0, trades[0].Price)
	assert.Equal(t, 0.8, trades[0].Quantity)
	assert.Equal(t, 50100.0, trades[1].Price)
	assert.InDelta(t, 0.2, trades[1].Quantity, 1e-9)

	sell2, _ := e.GetOrder(sell2ID)
	assert.Equal(t, types.PartialFill, sell2.Status)
	assert.InDelta(t, 0.3, sell2.Remaining(), 1e-9)
}

// S6 — price priority / no trade-through via MARKET order.
func TestSubmitOrder_MarketSweepsPriceLevelsInOrder(t *testing.T) {
	e := engine.New()
	e.SubmitOrder(limitReq(types.Sell, 50000, 1.0))
	e.SubmitOrder(limitReq(types.Sell, 50100, 1.0))

	var trades []trade.Trade
	e.SetTradeCallback(func(tr trade.Trade) { trades = append(trades, tr) })

	buyID := e.SubmitOrder(engine.SubmitRequest{Symbol: symbol, Type: types.Market, Side: types.Buy, Quantity: 2.0})
	buyOrder, _ := e.GetOrder(buyID)
	assert.Equal(t, types.Filled, buyOrder.Status)

	require.Len(t, trades, 2)
	assert.Equal(t, 50000.0, trades[0].Price)
	assert.Equal(t, 50100.0, trades[1].Price)
}

// S7 — time priority at equal price.
func TestSubmitOrder_TimePriorityAtEqualPrice(t *testing.T) {
	e := engine.New()
	aID := e.SubmitOrder(limitReq(types.Sell, 50000, 1.0))
	bID := e.SubmitOrder(limitReq(types.Sell, 50000, 1.0))

	buyID := e.SubmitOrder(limitReq(types.Buy, 50000, 1.0))
	buyOrder, _ := e.GetOrder(buyID)
	assert.Equal(t, types.Filled, buyOrder.Status)

	aOrder, _ := e.GetOrder(aID)
	assert.Equal(t, types.Filled, aOrder.Status)

	bOrder, _ := e.GetOrder(bID)
	assert.Equal(t, types.Active, bOrder.Status)
}

// S8 — a trade at the stop's trigger price converts a pending stop-loss
// SELL into a MARKET order, which cascades into a second trade against
// the next resting bid, all within the same SubmitOrder call.
func TestSubmitOrder_StopLossTriggerCascade(t *testing.T) {
	e := engine.New()

	// Resting ask at 95 and resting bid at 90 bracket the stop's trigger
	// price of 95 without crossing each other (no-trade-through holds).
	e.SubmitOrder(limitReq(types.Sell, 95, 1.0))

	stopID := e.SubmitOrder(engine.SubmitRequest{Symbol: symbol, Type: types.StopLoss, Side: types.Sell, StopPrice: 95, Quantity: 1.0})
	stopOrder, ok := e.GetOrder(stopID)
	require.True(t, ok)
	assert.Equal(t, types.Pending, stopOrder.Status)

	e.SubmitOrder(limitReq(types.Buy, 90, 1.0))

	var trades []trade.Trade
	e.SetTradeCallback(func(tr trade.Trade) { trades = append(trades, tr) })

	// This buy crosses the resting ask at 95; that trade triggers the
	// stop, which converts to a MARKET SELL and immediately matches the
	// resting bid at 90 before this SubmitOrder call returns.
	e.SubmitOrder(limitReq(types.Buy, 95, 1.0))

	require.Len(t, trades, 2)
	assert.Equal(t, 95.0, trades[0].Price)
	assert.Equal(t, 90.0, trades[1].Price)

	stopOrder, _ = e.GetOrder(stopID)
	assert.Equal(t, types.Filled, stopOrder.Status)
}

func TestSubmitOrder_ValidationRejects(t *testing.T) {
	e := engine.New()

	id := e.SubmitOrder(engine.SubmitRequest{Symbol: "", Type: types.Limit, Price: 1, Quantity: 1})
	assert.Empty(t, id)

	id = e.SubmitOrder(engine.SubmitRequest{Symbol: symbol, Type: types.Limit, Price: 1, Quantity: 0})
	assert.Empty(t, id)

	id = e.SubmitOrder(engine.SubmitRequest{Symbol: symbol, Type: types.Limit, Price: 0, Quantity: 1})
	assert.Empty(t, id)

	id = e.SubmitOrder(engine.SubmitRequest{Symbol: symbol, Type: types.Market, Price: 1, Quantity: 1})
	assert.Empty(t, id)

	id = e.SubmitOrder(engine.SubmitRequest{Symbol: symbol, Type: types.StopLoss, StopPrice: 0, Quantity: 1})
	assert.Empty(t, id)

	id = e.SubmitOrder(engine.SubmitRequest{Symbol: symbol, Type: types.StopLimit, StopPrice: 10, Price: 0, Quantity: 1})
	assert.Empty(t, id)
}

// P7 — idempotent cancel.
func TestCancelOrder_Idempotent(t *testing.T) {
	e := engine.New()
	id := e.SubmitOrder(limitReq(types.Buy, 100, 1.0))

	assert.True(t, e.CancelOrder(id))
	assert.False(t, e.CancelOrder(id))

	o, _ := e.GetOrder(id)
	assert.Equal(t, types.Cancelled, o.Status)
}

func TestCancelOrder_UnknownID(t *testing.T) {
	e := engine.New()
	assert.False(t, e.CancelOrder("ORD999999999999"))
}

func TestCancelOrder_PendingStop(t *testing.T) {
	e := engine.New()
	id := e.SubmitOrder(engine.SubmitRequest{Symbol: symbol, Type: types.StopLoss, Side: types.Sell, StopPrice: 95, Quantity: 1.0})
	assert.True(t, e.CancelOrder(id))
	assert.False(t, e.CancelOrder(id))
}

// P8 — round trip.
func TestSubmitOrder_RoundTrip(t *testing.T) {
	e := engine.New()
	id := e.SubmitOrder(limitReq(types.Buy, 100, 1.0))
	o, ok := e.GetOrder(id)
	require.True(t, ok)
	assert.Equal(t, id, o.OrderID)
	assert.Equal(t, types.Active, o.Status)
}

func TestBookUpdateCallback_FiresOnLimitInsertAndReducedSize(t *testing.T) {
	e := engine.New()
	var updates int
	e.SetBookUpdateCallback(func(types.Symbol) { updates++ })

	e.SubmitOrder(limitReq(types.Sell, 100, 1.0))
	assert.Equal(t, 1, updates)

	e.SubmitOrder(limitReq(types.Buy, 100, 1.0))
	// insertion update + a second update once the match reduces/removes it
	assert.Equal(t, 3, updates)
}

func TestTotalOrdersProcessed(t *testing.T) {
	e := engine.New()
	e.SubmitOrder(limitReq(types.Buy, 100, 1.0))
	e.SubmitOrder(limitReq(types.Sell, 100, 1.0))
	assert.Equal(t, uint64(2), e.TotalOrdersProcessed())
}
