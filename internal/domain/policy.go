package domain

import (
	"github.com/shopspring/decimal"
)

// LoanType indexes the loan terms and rates of a MarketPolicy.
type LoanType int

// MarketEvent is a scripted shock: on Day the loan rates switch to Rates and
// Message is broadcast on the forum.
type MarketEvent struct {
	Day     int
	Rates   []decimal.Decimal
	Message string
}

var monthsPerYear = decimal.NewFromInt(12)

// MarketPolicy is the economic policy of a run. The controller owns it and
// changes it only when applying events at the start of a day.
type MarketPolicy struct {
	LoanTerms          []int             // days until repayment, per loan type
	LoanRates          []decimal.Decimal // annual rate, per loan type
	RepaymentDays      map[int]bool
	Events             []MarketEvent
	MaxLoanRatio       decimal.Decimal
	OverdraftTolerance int64 // cents a buy may push cash below zero
}

// ValidLoanType reports whether t indexes a configured loan type.
func (p *MarketPolicy) ValidLoanType(t LoanType) bool {
	return t >= 0 && int(t) < len(p.LoanTerms) && int(t) < len(p.LoanRates)
}

// IsRepaymentDay reports whether interest is charged on day.
func (p *MarketPolicy) IsRepaymentDay(day int) bool {
	return p.RepaymentDays[day]
}

// Interest returns one period's interest on amount cents for loan type t,
// computed as amount × annual rate / 12 and rounded to the cent.
func (p *MarketPolicy) Interest(amount int64, t LoanType) int64 {
	if !p.ValidLoanType(t) {
		return 0
	}
	return decimal.NewFromInt(amount).
		Mul(p.LoanRates[t]).
		Div(monthsPerYear).
		Round(0).
		IntPart()
}

// MaxLoan is the most a participant with the given property and already
// outstanding debt may borrow. Never negative.
func (p *MarketPolicy) MaxLoan(property, outstanding int64) int64 {
	limit := decimal.NewFromInt(property).Mul(p.MaxLoanRatio).Floor().IntPart() - outstanding
	if limit < 0 {
		return 0
	}
	return limit
}

// ApplyEvents switches the loan rates for every event scheduled on day and
// returns the events that fired.
func (p *MarketPolicy) ApplyEvents(day int) []MarketEvent {
	var fired []MarketEvent
	for _, ev := range p.Events {
		if ev.Day != day {
			continue
		}
		if len(ev.Rates) > 0 {
			p.LoanRates = append([]decimal.Decimal(nil), ev.Rates...)
		}
		fired = append(fired, ev)
	}
	return fired
}
