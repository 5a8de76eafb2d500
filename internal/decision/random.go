package decision

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand/v2"

	"github.com/efreitasn/marketsim/internal/domain"
)

// Random makes valid decisions from a seeded generator. Limit prices are
// drawn from a few ticks around the quote so orders actually meet.
//
// Every decision draws from its own generator keyed by the seed, the
// decision kind, the participant, the day and the session, so the result
// does not depend on the order in which concurrent callers arrive.
type Random struct {
	seed uint64
}

// NewRandom creates a Random decider. The same seed gives the same choice
// for the same participant, day, session and kind.
func NewRandom(seed uint64) *Random {
	return &Random{seed: seed}
}

func (r *Random) rng(kind string, st State) *rand.Rand {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s/%d/%d/%d", kind, st.ParticipantID, st.Day, st.Session)
	return rand.New(rand.NewPCG(r.seed, h.Sum64()))
}

// LoanDecision borrows about one day in ten, at most a tenth of the
// remaining headroom in whole dollars.
func (r *Random) LoanDecision(_ context.Context, st State) (domain.LoanDecision, error) {
	rng := r.rng(KindLoan, st)
	if st.MaxLoan < 100 || len(st.LoanTerms) == 0 || rng.IntN(10) != 0 {
		return domain.NoLoan{}, nil
	}
	limit := max(st.MaxLoan/10/100, 1)
	return domain.LoanRequest{
		Type:   domain.LoanType(rng.IntN(len(st.LoanTerms))),
		Amount: (1 + rng.Int64N(limit)) * 100,
	}, nil
}

// OrderIntent picks a quoted instrument and buys, sells or passes. Quantities
// are capped at ten shares and at what the participant can afford or holds.
func (r *Random) OrderIntent(_ context.Context, st State) (domain.Intent, error) {
	if len(st.Quotes) == 0 {
		return domain.NoAction{}, nil
	}
	rng := r.rng(KindAction, st)
	q := st.Quotes[rng.IntN(len(st.Quotes))]

	// Tick of 1% of the price, at least one cent.
	tick := max(q.Price/100, 1)
	price := q.Price + int64(rng.IntN(3)-1)*tick
	if price <= 0 {
		price = q.Price
	}

	switch rng.IntN(3) {
	case 0:
		affordable := min(st.Cash/price, 10)
		if affordable <= 0 {
			return domain.NoAction{}, nil
		}
		return domain.BuyOrder{Symbol: q.Symbol, Quantity: 1 + rng.Int64N(affordable), Price: price}, nil
	case 1:
		held := min(st.Holdings[q.Symbol], 10)
		if held <= 0 {
			return domain.NoAction{}, nil
		}
		return domain.SellOrder{Symbol: q.Symbol, Quantity: 1 + rng.Int64N(held), Price: price}, nil
	default:
		return domain.NoAction{}, nil
	}
}

// Estimate flips a coin for the loan and for each buy and sell intention.
func (r *Random) Estimate(_ context.Context, st State) (domain.Estimate, error) {
	rng := r.rng(KindEstimate, st)
	est := domain.Estimate{
		Loan: rng.IntN(2) == 0,
		Buy:  make(map[string]bool, len(st.Quotes)),
		Sell: make(map[string]bool, len(st.Quotes)),
	}
	for _, q := range st.Quotes {
		est.Buy[q.Symbol] = rng.IntN(2) == 0
		est.Sell[q.Symbol] = rng.IntN(2) == 0
	}
	return est, nil
}

// Message posts the participant's closing cash.
func (r *Random) Message(_ context.Context, st State) (string, error) {
	return fmt.Sprintf("Participant %d closes day %d with %s in cash.", st.ParticipantID, st.Day, domain.FormatCents(st.Cash)), nil
}
