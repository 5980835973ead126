package transport

import (
	"encoding/binary"
	"math"

	"github.com/quill-markets/matchcore/internal/trade"
	"github.com/quill-markets/matchcore/internal/types"
)

// ReportType identifies an outbound server message.
type ReportType uint8

const (
	TradeReport ReportType = iota
	AckReport
	ErrorReport
)

const reportFixedLen = 1 + 1 + 1 + 8 + 8 + 8 + 1 + 1 + 1 + 2 // kind,side,status,price,qty,filledQty,orderIDLen,counterpartyLen,symbolLen,errStrLen

// Report is the wire form of an execution/acknowledgement/error event.
// There is no per-account routing in the core (no self-trade prevention,
// no owner concept), so the server broadcasts trade reports to all
// sessions, the way a market-data feed would; ack and error reports go
// only to the requesting connection.
type Report struct {
	Kind         ReportType
	OrderID      types.OrderID
	Symbol       types.Symbol
	Side         types.Side
	Status       types.OrderStatus
	Price        types.Price
	Quantity     types.Quantity
	FilledQty    types.Quantity
	Counterparty types.OrderID
	ErrStr       string
}

// Serialize encodes the report as a fixed header followed by
// OrderID/Counterparty/Symbol/ErrStr in that order.
func (r Report) Serialize() []byte {
	orderID := []byte(r.OrderID)
	counterparty := []byte(r.Counterparty)
	symbol := []byte(r.Symbol)
	errStr := []byte(r.ErrStr)

	buf := make([]byte, reportFixedLen+len(orderID)+len(counterparty)+len(symbol)+len(errStr))
	buf[0] = byte(r.Kind)
	buf[1] = byte(r.Side)
	buf[2] = byte(r.Status)
	binary.BigEndian.PutUint64(buf[3:11], math.Float64bits(r.Price))
	binary.BigEndian.PutUint64(buf[11:19], math.Float64bits(r.Quantity))
	binary.BigEndian.PutUint64(buf[19:27], math.Float64bits(r.FilledQty))
	buf[27] = byte(len(orderID))
	buf[28] = byte(len(counterparty))
	buf[29] = byte(len(symbol))
	binary.BigEndian.PutUint16(buf[30:32], uint16(len(errStr)))

	offset := reportFixedLen
	offset += copy(buf[offset:], orderID)
	offset += copy(buf[offset:], counterparty)
	offset += copy(buf[offset:], symbol)
	copy(buf[offset:], errStr)
	return buf
}

// DeserializeReport is the client-side counterpart to Serialize.
func DeserializeReport(buf []byte) (Report, error) {
	if len(buf) < reportFixedLen {
		return Report{}, ErrMessageTooShort
	}
	r := Report{
		Kind:      ReportType(buf[0]),
		Side:      types.Side(buf[1]),
		Status:    types.OrderStatus(buf[2]),
		Price:     math.Float64frombits(binary.BigEndian.Uint64(buf[3:11])),
		Quantity:  math.Float64frombits(binary.BigEndian.Uint64(buf[11:19])),
		FilledQty: math.Float64frombits(binary.BigEndian.Uint64(buf[19:27])),
	}
	orderIDLen := int(buf[27])
	counterpartyLen := int(buf[28])
	symbolLen := int(buf[29])
	errStrLen := int(binary.BigEndian.Uint16(buf[30:32]))

	total := reportFixedLen + orderIDLen + counterpartyLen + symbolLen + errStrLen
	if len(buf) < total {
		return Report{}, ErrMessageTooShort
	}

	offset := reportFixedLen
	r.OrderID = types.OrderID(buf[offset : offset+orderIDLen])
	offset += orderIDLen
	r.Counterparty = types.OrderID(buf[offset : offset+counterpartyLen])
	offset += counterpartyLen
	r.Symbol = types.Symbol(buf[offset : offset+symbolLen])
	offset += symbolLen
	r.ErrStr = string(buf[offset : offset+errStrLen])
	return r, nil
}

// tradeReports builds the pair of reports addressed to the maker and
// taker sides of a trade, mirroring the teacher's two-sided report
// generation for a match.
func tradeReports(t trade.Trade) (maker, taker Report) {
	maker = Report{
		Kind:         TradeReport,
		OrderID:      t.MakerOrderID,
		Symbol:       t.Symbol,
		Side:         otherSide(t.AggressorSide),
		Status:       types.PartialFill,
		Price:        t.Price,
		Quantity:     t.Quantity,
		Counterparty: t.TakerOrderID,
	}
	taker = Report{
		Kind:         TradeReport,
		OrderID:      t.TakerOrderID,
		Symbol:       t.Symbol,
		Side:         t.AggressorSide,
		Status:       types.PartialFill,
		Price:        t.Price,
		Quantity:     t.Quantity,
		Counterparty: t.MakerOrderID,
	}
	return maker, taker
}

func otherSide(s types.Side) types.Side {
	if s == types.Buy {
		return types.Sell
	}
	return types.Buy
}
