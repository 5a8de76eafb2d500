// Package decision holds the collaborators that decide what participants do:
// a remote decision service reached over HTTP, a seeded random decider for
// offline runs, and the validator that turns free-text replies into typed
// decisions.
package decision

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/marketsim/internal/domain"
	"github.com/efreitasn/marketsim/internal/engine"
)

// Kinds of decision requested from a Decider.
const (
	KindLoan     = "loan"
	KindAction   = "action"
	KindEstimate = "estimate"
	KindMessage  = "message"
)

// State is everything a participant may look at when deciding.
type State struct {
	ParticipantID int                            `json:"participant_id"`
	Day           int                            `json:"day"`
	Session       int                            `json:"session,omitempty"`
	Cash          int64                          `json:"cash"`
	Holdings      map[string]int64               `json:"holdings"`
	Loans         []domain.Loan                  `json:"loans"`
	Property      int64                          `json:"property"`
	MaxLoan       int64                          `json:"max_loan"`
	LoanTerms     []int                          `json:"loan_terms"`
	LoanRates     []decimal.Decimal              `json:"loan_rates"`
	Quotes        []domain.Quote                 `json:"quotes"`
	History       map[string][]domain.PricePoint `json:"history,omitempty"`
	Books         []engine.BookDepth             `json:"books,omitempty"`
	Forum         []domain.ForumPost             `json:"forum,omitempty"`
	Notes         []string                       `json:"notes,omitempty"`
}

// Price returns the quoted price of symbol, or 0 when it is not quoted.
func (s State) Price(symbol string) int64 {
	for _, q := range s.Quotes {
		if q.Symbol == symbol {
			return q.Price
		}
	}
	return 0
}

// Symbols returns the quoted symbols in quote order.
func (s State) Symbols() []string {
	out := make([]string, len(s.Quotes))
	for i, q := range s.Quotes {
		out[i] = q.Symbol
	}
	return out
}

// Decider produces the decisions of one participant. Implementations must be
// safe for concurrent use. An error means the participant does nothing for
// that decision.
type Decider interface {
	LoanDecision(ctx context.Context, st State) (domain.LoanDecision, error)
	OrderIntent(ctx context.Context, st State) (domain.Intent, error)
	Estimate(ctx context.Context, st State) (domain.Estimate, error)
	Message(ctx context.Context, st State) (string, error)
}
