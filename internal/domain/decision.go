package domain

// Intent is what a participant wants to do in one session: NoAction,
// BuyOrder or SellOrder. Values reach the engine already validated.
type Intent interface {
	intent()
}

// NoAction is the explicit "sit this session out" intent.
type NoAction struct{}

// BuyOrder asks to buy Quantity shares of Symbol at exactly Price cents.
type BuyOrder struct {
	Symbol   string
	Quantity int64
	Price    int64
}

// SellOrder asks to sell Quantity shares of Symbol at exactly Price cents.
type SellOrder struct {
	Symbol   string
	Quantity int64
	Price    int64
}

func (NoAction) intent()  {}
func (BuyOrder) intent()  {}
func (SellOrder) intent() {}

// Action names used in records and by the decision service.
const (
	ActionBuy  = "buy"
	ActionSell = "sell"
	ActionNone = "no"
)

// DescribeIntent flattens an intent for records. Unknown or nil intents are
// reported as ActionNone.
func DescribeIntent(i Intent) (action, symbol string, quantity, price int64) {
	switch v := i.(type) {
	case BuyOrder:
		return ActionBuy, v.Symbol, v.Quantity, v.Price
	case SellOrder:
		return ActionSell, v.Symbol, v.Quantity, v.Price
	default:
		return ActionNone, "", 0, 0
	}
}

// ToOrder turns a buy or sell intent into an unsubmitted order. It returns
// false for NoAction.
func ToOrder(i Intent, owner Party, day, session int) (*Order, bool) {
	var o *Order
	switch v := i.(type) {
	case BuyOrder:
		o = &Order{Side: OrderSideBid, Symbol: v.Symbol, Price: v.Price, Quantity: v.Quantity}
	case SellOrder:
		o = &Order{Side: OrderSideAsk, Symbol: v.Symbol, Price: v.Price, Quantity: v.Quantity}
	default:
		return nil, false
	}
	o.Owner = owner
	o.RemainingQuantity = o.Quantity
	o.Day = day
	o.Session = session
	return o, true
}

// LoanDecision is NoLoan or LoanRequest.
type LoanDecision interface {
	loanDecision()
}

// NoLoan declines to borrow today.
type NoLoan struct{}

// LoanRequest borrows Amount cents under loan Type.
type LoanRequest struct {
	Type   LoanType
	Amount int64
}

func (NoLoan) loanDecision()      {}
func (LoanRequest) loanDecision() {}

// Estimate is a participant's stated plan for the next day.
type Estimate struct {
	Loan bool            `json:"loan"`
	Buy  map[string]bool `json:"buy"`
	Sell map[string]bool `json:"sell"`
}
