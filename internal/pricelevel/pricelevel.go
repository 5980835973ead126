// Package pricelevel holds all orders resting at a single price, in
// FIFO arrival order, together with their maintained aggregate quantity.
package pricelevel

import (
	"github.com/quill-markets/matchcore/internal/order"
	"github.com/quill-markets/matchcore/internal/types"
)

// PriceLevel is the FIFO queue of orders resting at one price.
type PriceLevel struct {
	Price    types.Price
	Orders   []*order.Order
	Quantity types.Quantity // Sum of Orders[i].Remaining(); maintained incrementally
}

// New creates an empty price level at the given price.
func New(price types.Price) *PriceLevel {
	return &PriceLevel{Price: price}
}

// Add appends an order to the tail of the queue and increases the
// aggregate quantity.
func (l *PriceLevel) Add(o *order.Order) {
	l.Orders = append(l.Orders, o)
	l.Quantity += o.Remaining()
}

// RemoveByID removes the order with the given id wherever it sits in the
// queue, decrementing the aggregate. Returns whether it was found.
func (l *PriceLevel) RemoveByID(id types.OrderID) bool {
	for i, o := range l.Orders {
		if o.OrderID == id {
			l.Quantity -= o.Remaining()
			l.Orders = append(l.Orders[:i], l.Orders[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveFront pops the head order, decrementing the aggregate.
func (l *PriceLevel) RemoveFront() *order.Order {
	if len(l.Orders) == 0 {
		return nil
	}
	front := l.Orders[0]
	l.Quantity -= front.Remaining()
	l.Orders = l.Orders[1:]
	return front
}

// FrontOrder returns the head order without removing it, or nil if the
// level is empty.
func (l *PriceLevel) FrontOrder() *order.Order {
	if len(l.Orders) == 0 {
		return nil
	}
	return l.Orders[0]
}

// UpdateQuantity recomputes the aggregate from the current remaining
// quantities of every resting order. Used after a partial fill of the
// front order, whose Remaining() has changed without any Add/Remove
// call having run.
func (l *PriceLevel) UpdateQuantity() {
	var total types.Quantity
	for _, o := range l.Orders {
		total += o.Remaining()
	}
	l.Quantity = total
}

// IsEmpty reports whether the level holds no orders.
func (l *PriceLevel) IsEmpty() bool {
	return len(l.Orders) == 0
}
