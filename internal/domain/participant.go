package domain

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Loan is an outstanding loan. The principal is repaid in full on DueDay.
type Loan struct {
	LoanID  string   `json:"loan_id"`
	Type    LoanType `json:"loan_type"`
	Amount  int64    `json:"amount"`
	TakenOn int      `json:"taken_on"`
	DueDay  int      `json:"due_day"`
}

// ParticipantState is a point-in-time copy of a participant.
type ParticipantState struct {
	ID       int              `json:"participant_id"`
	Cash     int64            `json:"cash"`
	Holdings map[string]int64 `json:"holdings"`
	Loans    []Loan           `json:"loans"`
	Bankrupt bool             `json:"bankrupt"`
	Quit     bool             `json:"quit"`
	Notes    []string         `json:"notes,omitempty"`
}

// Participant is a trading agent: cash in cents, share holdings and a loan
// ledger ordered by due day. Cash may be negative while the participant is
// flagged bankrupt; holdings never are.
type Participant struct {
	ID int

	mu       sync.Mutex
	cash     int64
	holdings map[string]int64
	loans    []Loan // sorted by DueDay ascending
	bankrupt bool
	quit     bool
	notes    []string
}

// NewParticipant creates a participant with the given endowment.
func NewParticipant(id int, cash int64, holdings map[string]int64) *Participant {
	h := make(map[string]int64, len(holdings))
	for sym, qty := range holdings {
		if qty > 0 {
			h[sym] = qty
		}
	}
	return &Participant{
		ID:       id,
		cash:     cash,
		holdings: h,
	}
}

// Cash returns the cash balance in cents.
func (p *Participant) Cash() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cash
}

// Holding returns the quantity held of symbol, or 0.
func (p *Participant) Holding(symbol string) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.holdings[symbol]
}

// Bankrupt reports whether cash went negative and is awaiting resolution.
func (p *Participant) Bankrupt() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bankrupt
}

// Quit reports whether the participant has left the market.
func (p *Participant) Quit() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.quit
}

// CanBuy reports whether paying quantity × price keeps cash at or above
// -tolerance.
func (p *Participant) CanBuy(quantity, price, tolerance int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cash-quantity*price >= -tolerance
}

// CanSell reports whether the participant holds at least quantity of symbol.
func (p *Participant) CanSell(symbol string, quantity int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.holdings[symbol] >= quantity
}

// SettleBuy applies the buying leg of a fill. Nothing changes on error.
func (p *Participant) SettleBuy(symbol string, quantity, price, tolerance int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.quit {
		return ErrParticipantInactive
	}
	cost := quantity * price
	if p.cash-cost < -tolerance {
		return ErrInsufficientFunds
	}
	p.cash -= cost
	p.holdings[symbol] += quantity
	p.markIfNegative()
	p.notes = append(p.notes, fmt.Sprintf("bought %d %s at %s", quantity, symbol, FormatCents(price)))
	return nil
}

// SettleSell applies the selling leg of a fill. Nothing changes on error.
func (p *Participant) SettleSell(symbol string, quantity, price int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.quit {
		return ErrParticipantInactive
	}
	if p.holdings[symbol] < quantity {
		return ErrInsufficientHoldings
	}
	p.holdings[symbol] -= quantity
	if p.holdings[symbol] == 0 {
		delete(p.holdings, symbol)
	}
	p.cash += quantity * price
	p.notes = append(p.notes, fmt.Sprintf("sold %d %s at %s", quantity, symbol, FormatCents(price)))
	return nil
}

// Property is cash plus the market value of every holding.
func (p *Participant) Property(quotes []Quote) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := p.cash
	for _, q := range quotes {
		total += p.holdings[q.Symbol] * q.Price
	}
	return total
}

// HoldingValues returns the market value of each quoted holding.
func (p *Participant) HoldingValues(quotes []Quote) map[string]int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]int64, len(quotes))
	for _, q := range quotes {
		out[q.Symbol] = p.holdings[q.Symbol] * q.Price
	}
	return out
}

// OutstandingLoans returns the sum of unpaid principal.
func (p *Participant) OutstandingLoans() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outstanding()
}

func (p *Participant) outstanding() int64 {
	var total int64
	for _, l := range p.loans {
		total += l.Amount
	}
	return total
}

// ApplyLoan grants a loan of type t taken on day. The amount must be
// positive and within policy.MaxLoan for the participant's property.
func (p *Participant) ApplyLoan(day int, t LoanType, amount int64, policy *MarketPolicy, quotes []Quote) (Loan, error) {
	if !policy.ValidLoanType(t) {
		return Loan{}, &ValidationError{Message: fmt.Sprintf("unknown loan type %d", t)}
	}
	if amount <= 0 {
		return Loan{}, ErrInvalidLoan
	}

	property := p.Property(quotes)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.quit {
		return Loan{}, ErrParticipantInactive
	}
	if amount > policy.MaxLoan(property, p.outstanding()) {
		return Loan{}, ErrInvalidLoan
	}

	loan := Loan{
		LoanID:  uuid.New().String(),
		Type:    t,
		Amount:  amount,
		TakenOn: day,
		DueDay:  day + policy.LoanTerms[t],
	}

	// Insert after any loan due on the same day so repayment order follows
	// the order loans were taken.
	idx := sort.Search(len(p.loans), func(i int) bool {
		return p.loans[i].DueDay > loan.DueDay
	})
	p.loans = append(p.loans, Loan{})
	copy(p.loans[idx+1:], p.loans[idx:])
	p.loans[idx] = loan

	p.cash += amount
	p.notes = append(p.notes, fmt.Sprintf("took loan type %d of %s due day %d", t, FormatCents(amount), loan.DueDay))
	return loan, nil
}

// RepayDueLoans repays the principal of every loan due on or before day and
// returns them. Cash may go negative, which flags the participant bankrupt.
func (p *Participant) RepayDueLoans(day int) []Loan {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := sort.Search(len(p.loans), func(i int) bool {
		return p.loans[i].DueDay > day
	})
	if cutoff == 0 {
		return nil
	}

	due := make([]Loan, cutoff)
	copy(due, p.loans[:cutoff])
	p.loans = p.loans[cutoff:]

	for _, l := range due {
		p.cash -= l.Amount
		p.notes = append(p.notes, fmt.Sprintf("repaid loan of %s", FormatCents(l.Amount)))
	}
	p.markIfNegative()
	return due
}

// PayInterest charges one period of interest on every outstanding loan at
// the policy's current rates and returns the total charged.
func (p *Participant) PayInterest(policy *MarketPolicy) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	var total int64
	for _, l := range p.loans {
		total += policy.Interest(l.Amount, l.Type)
	}
	if total == 0 {
		return 0
	}
	p.cash -= total
	p.notes = append(p.notes, fmt.Sprintf("paid interest of %s", FormatCents(total)))
	p.markIfNegative()
	return total
}

// ResolveBankruptcy liquidates holdings at the quoted prices, in quote
// order, selling only as many shares as needed to bring cash back to zero.
// It returns true when even selling everything cannot clear the debt; the
// participant is then marked as quit.
func (p *Participant) ResolveBankruptcy(quotes []Quote) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cash >= 0 {
		p.bankrupt = false
		return false
	}

	for _, q := range quotes {
		if p.cash >= 0 {
			break
		}
		held := p.holdings[q.Symbol]
		if held == 0 || q.Price <= 0 {
			continue
		}
		need := (-p.cash + q.Price - 1) / q.Price
		sell := min(need, held)
		p.holdings[q.Symbol] -= sell
		if p.holdings[q.Symbol] == 0 {
			delete(p.holdings, q.Symbol)
		}
		p.cash += sell * q.Price
		p.notes = append(p.notes, fmt.Sprintf("liquidated %d %s at %s", sell, q.Symbol, FormatCents(q.Price)))
	}

	if p.cash < 0 {
		p.quit = true
		return true
	}
	p.bankrupt = false
	return false
}

// AddNote appends to the participant's log for the day.
func (p *Participant) AddNote(note string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notes = append(p.notes, note)
}

// ClearNotes empties the day's log.
func (p *Participant) ClearNotes() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notes = nil
}

// Notes returns a copy of the day's log.
func (p *Participant) Notes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.notes...)
}

// Snapshot copies the participant's state.
func (p *Participant) Snapshot() ParticipantState {
	p.mu.Lock()
	defer p.mu.Unlock()

	holdings := make(map[string]int64, len(p.holdings))
	for sym, qty := range p.holdings {
		holdings[sym] = qty
	}
	return ParticipantState{
		ID:       p.ID,
		Cash:     p.cash,
		Holdings: holdings,
		Loans:    append([]Loan(nil), p.loans...),
		Bankrupt: p.bankrupt,
		Quit:     p.quit,
		Notes:    append([]string(nil), p.notes...),
	}
}

func (p *Participant) markIfNegative() {
	if p.cash < 0 {
		p.bankrupt = true
	}
}
