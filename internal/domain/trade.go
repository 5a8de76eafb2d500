package domain

// TradeRecord is the immutable fact emitted once per fill.
type TradeRecord struct {
	TradeID  string `json:"trade_id"`
	Day      int    `json:"day"`
	Session  int    `json:"session"`
	Symbol   string `json:"symbol"`
	Buyer    Party  `json:"buyer"`
	Seller   Party  `json:"seller"`
	Quantity int64  `json:"quantity"`
	Price    int64  `json:"price"` // cents
}

// StockSnapshot holds every instrument's price at the close of a session.
type StockSnapshot struct {
	Day     int              `json:"day"`
	Session int              `json:"session"`
	Prices  map[string]int64 `json:"prices"`
}

// SessionSnapshot captures a participant's position right before it acts
// in a session, together with what it then chose to do.
type SessionSnapshot struct {
	ParticipantID int              `json:"participant_id"`
	Day           int              `json:"day"`
	Session       int              `json:"session"`
	Property      int64            `json:"property"`
	Cash          int64            `json:"cash"`
	HoldingValues map[string]int64 `json:"holding_values"`
	Action        string           `json:"action"`
	Symbol        string           `json:"symbol,omitempty"`
	Quantity      int64            `json:"quantity,omitempty"`
	Price         int64            `json:"price,omitempty"`
}

// DailyDecision is the per-participant, per-day record of the loan choice
// and the end-of-day estimate.
type DailyDecision struct {
	ParticipantID int      `json:"participant_id"`
	Day           int      `json:"day"`
	TookLoan      bool     `json:"took_loan"`
	LoanType      LoanType `json:"loan_type"`
	LoanAmount    int64    `json:"loan_amount"`
	Estimate      Estimate `json:"estimate"`
}

// ForumPost is one message on the daily forum. Broadcast posts come from
// scripted market events rather than a participant.
type ForumPost struct {
	Day           int    `json:"day"`
	ParticipantID int    `json:"participant_id"`
	Broadcast     bool   `json:"broadcast,omitempty"`
	Message       string `json:"message"`
}
