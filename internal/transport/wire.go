// Package transport is a demonstration TCP front-end for the matching
// core: a hand-rolled big-endian binary wire protocol (no JSON, no
// protobuf — admission and reporting of a handful of fixed-width fields
// doesn't need a schema compiler) carrying order admission, cancellation
// and book-snapshot requests in, and execution/error reports out. It is
// an external collaborator to the core per the core's own scope: it
// never reaches into orderbook or stopmanager directly, only the
// engine's exported API.
package transport

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/quill-markets/matchcore/internal/types"
)

var (
	ErrInvalidMessageType = errors.New("transport: invalid message type")
	ErrMessageTooShort    = errors.New("transport: message too short")
)

// MessageType identifies an inbound client message.
type MessageType uint16

const (
	Heartbeat MessageType = iota
	NewOrder
	CancelOrder
	BookSnapshot
)

// Message is any parsed inbound message.
type Message interface {
	GetType() MessageType
}

const (
	newOrderFixedLen    = 2 + 1 + 1 + 8 + 8 + 8 + 1 + 1 // type,orderType,side,price,qty,stop,symbolLen,clientLen
	cancelOrderFixedLen = 2 + 16
	bookSnapshotMinLen  = 2 + 1
)

// BaseMessage carries only the type tag; used when no further parsing
// is needed (Heartbeat).
type BaseMessage struct {
	TypeOf MessageType
}

func (m BaseMessage) GetType() MessageType { return m.TypeOf }

// NewOrderMessage is the wire form of an engine.SubmitRequest.
type NewOrderMessage struct {
	BaseMessage
	OrderType     types.OrderType
	Side          types.Side
	Price         types.Price
	Quantity      types.Quantity
	StopPrice     types.Price
	Symbol        types.Symbol
	ClientOrderID string
}

// CancelOrderMessage is the wire form of a cancelOrder request.
type CancelOrderMessage struct {
	BaseMessage
	OrderID types.OrderID
}

// BookSnapshotMessage requests the current BBO for a symbol. Depth is
// always parsed as 10; the server's reply carries only the BBO and does
// not use it.
type BookSnapshotMessage struct {
	BaseMessage
	Symbol types.Symbol
	Depth  int
}

// ParseMessage decodes one framed message from a client. buf must
// contain exactly one message (the caller's transport is
// length-delimited or message-per-read, as in the accompanying Server).
func ParseMessage(buf []byte) (Message, error) {
	if len(buf) < 2 {
		return nil, ErrMessageTooShort
	}
	typeOf := MessageType(binary.BigEndian.Uint16(buf[0:2]))
	switch typeOf {
	case Heartbeat:
		return BaseMessage{TypeOf: Heartbeat}, nil
	case NewOrder:
		return parseNewOrder(buf)
	case CancelOrder:
		return parseCancelOrder(buf)
	case BookSnapshot:
		return parseBookSnapshot(buf)
	default:
		return nil, ErrInvalidMessageType
	}
}

func parseNewOrder(buf []byte) (NewOrderMessage, error) {
	if len(buf) < newOrderFixedLen {
		return NewOrderMessage{}, ErrMessageTooShort
	}

	m := NewOrderMessage{BaseMessage: BaseMessage{TypeOf: NewOrder}}
	m.OrderType = types.OrderType(buf[2])
	m.Side = types.Side(buf[3])
	m.Price = math.Float64frombits(binary.BigEndian.Uint64(buf[4:12]))
	m.Quantity = math.Float64frombits(binary.BigEndian.Uint64(buf[12:20]))
	m.StopPrice = math.Float64frombits(binary.BigEndian.Uint64(buf[20:28]))
	symbolLen := int(buf[28])
	clientLen := int(buf[29])

	total := newOrderFixedLen + symbolLen + clientLen
	if len(buf) < total {
		return NewOrderMessage{}, ErrMessageTooShort
	}
	m.Symbol = types.Symbol(buf[newOrderFixedLen : newOrderFixedLen+symbolLen])
	m.ClientOrderID = string(buf[newOrderFixedLen+symbolLen : total])
	return m, nil
}

func parseCancelOrder(buf []byte) (CancelOrderMessage, error) {
	if len(buf) < cancelOrderFixedLen {
		return CancelOrderMessage{}, ErrMessageTooShort
	}
	id := string(buf[2:18])
	// Strip the zero padding used on the wire for the fixed-width field.
	for i, b := range []byte(id) {
		if b == 0 {
			id = id[:i]
			break
		}
	}
	return CancelOrderMessage{BaseMessage: BaseMessage{TypeOf: CancelOrder}, OrderID: types.OrderID(id)}, nil
}

func parseBookSnapshot(buf []byte) (BookSnapshotMessage, error) {
	if len(buf) < bookSnapshotMinLen {
		return BookSnapshotMessage{}, ErrMessageTooShort
	}
	symbolLen := int(buf[2])
	total := bookSnapshotMinLen + symbolLen
	if len(buf) < total {
		return BookSnapshotMessage{}, ErrMessageTooShort
	}
	return BookSnapshotMessage{
		BaseMessage: BaseMessage{TypeOf: BookSnapshot},
		Symbol:      types.Symbol(buf[bookSnapshotMinLen:total]),
		Depth:       10,
	}, nil
}

// EncodeNewOrder is the client-side counterpart to parseNewOrder, used
// by cmd/client to build a wire message.
func EncodeNewOrder(m NewOrderMessage) []byte {
	symbolBytes := []byte(m.Symbol)
	clientBytes := []byte(m.ClientOrderID)
	buf := make([]byte, newOrderFixedLen+len(symbolBytes)+len(clientBytes))

	binary.BigEndian.PutUint16(buf[0:2], uint16(NewOrder))
	buf[2] = byte(m.OrderType)
	buf[3] = byte(m.Side)
	binary.BigEndian.PutUint64(buf[4:12], math.Float64bits(m.Price))
	binary.BigEndian.PutUint64(buf[12:20], math.Float64bits(m.Quantity))
	binary.BigEndian.PutUint64(buf[20:28], math.Float64bits(m.StopPrice))
	buf[28] = byte(len(symbolBytes))
	buf[29] = byte(len(clientBytes))
	copy(buf[newOrderFixedLen:], symbolBytes)
	copy(buf[newOrderFixedLen+len(symbolBytes):], clientBytes)
	return buf
}

// EncodeCancelOrder is the client-side counterpart to parseCancelOrder.
func EncodeCancelOrder(id types.OrderID) []byte {
	buf := make([]byte, cancelOrderFixedLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(CancelOrder))
	copy(buf[2:18], []byte(id))
	return buf
}
