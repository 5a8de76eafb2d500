package domain

// OrderSide indicates whether an order is a bid (buy) or ask (sell).
type OrderSide string

const (
	OrderSideBid OrderSide = "bid"
	OrderSideAsk OrderSide = "ask"
)

// Opposite returns the side an incoming order is matched against.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBid {
		return OrderSideAsk
	}
	return OrderSideBid
}

// Order is a limit instruction resting on, or being matched against, a
// day's book. Only RemainingQuantity changes after submission.
type Order struct {
	OrderID           string
	Owner             Party
	Side              OrderSide
	Symbol            string
	Price             int64 // cents
	Quantity          int64
	RemainingQuantity int64
	Day               int
	Session           int
}

// FilledQuantity returns how much of the order has traded.
func (o *Order) FilledQuantity() int64 {
	return o.Quantity - o.RemainingQuantity
}

// Fill is one entry of an instrument's session tape.
type Fill struct {
	Price    int64
	Quantity int64
}
