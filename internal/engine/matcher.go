package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/efreitasn/marketsim/internal/domain"
	"github.com/efreitasn/marketsim/internal/store"
)

// Matcher implements exact-price matching for the day's books. An incoming
// order only trades against resting orders at the very same price, oldest
// first, and any remainder rests on the book.
type Matcher struct {
	books        *BookManager
	participants *store.ParticipantStore
	instruments  *domain.InstrumentRegistry
	policy       *domain.MarketPolicy
	logger       *slog.Logger
}

// NewMatcher creates a new Matcher with the given dependencies.
func NewMatcher(
	books *BookManager,
	participants *store.ParticipantStore,
	instruments *domain.InstrumentRegistry,
	policy *domain.MarketPolicy,
	logger *slog.Logger,
) *Matcher {
	return &Matcher{
		books:        books,
		participants: participants,
		instruments:  instruments,
		policy:       policy,
		logger:       logger,
	}
}

// Books returns the book manager the matcher trades against.
func (m *Matcher) Books() *BookManager {
	return m.books
}

// Submit matches an incoming order against the opposite side of its
// instrument's book and returns the trades it produced, in execution order.
//
// Every fill is settled on both sides at the order's price, recorded on the
// instrument tape and turned into a TradeRecord. Issuer legs are never
// settled. A resting order whose owner cannot settle is removed and the
// scan continues. When the incoming owner cannot settle, the remainder of
// the incoming order is dropped and the error returned alongside the trades
// already made. In both cases the book stays consistent.
//
// The per-symbol write lock is held for the entire matching pass.
func (m *Matcher) Submit(order *domain.Order) ([]domain.TradeRecord, error) {
	if order.Quantity <= 0 || order.Price <= 0 {
		return nil, &domain.ValidationError{
			Message: fmt.Sprintf("order must have positive price and quantity, got %d @ %d", order.Quantity, order.Price),
		}
	}
	inst, err := m.instruments.Get(order.Symbol)
	if err != nil {
		return nil, err
	}
	if !order.Owner.Issuer {
		if _, err := m.participants.GetActive(order.Owner.ParticipantID); err != nil {
			return nil, &domain.SettlementError{Party: order.Owner, Err: err}
		}
	}

	book := m.books.GetOrCreate(order.Symbol)
	book.mu.Lock()
	defer book.mu.Unlock()

	if order.OrderID == "" {
		order.OrderID = uuid.New().String()
	}
	order.RemainingQuantity = order.Quantity

	var trades []domain.TradeRecord
	opposite := order.Side.Opposite()

	for order.RemainingQuantity > 0 {
		entry, found := book.FirstAt(opposite, order.Price)
		if !found {
			break
		}
		resting := entry.Order

		fillQty := min(order.RemainingQuantity, resting.RemainingQuantity)
		price := order.Price

		var bid, ask *domain.Order
		if order.Side == domain.OrderSideBid {
			bid, ask = order, resting
		} else {
			bid, ask = resting, order
		}

		// Check both legs before touching any balance so a failing leg
		// leaves everything as it was. A self-trade nets to zero cash, so
		// only its holdings matter.
		selfTrade := order.Owner == resting.Owner
		if err := m.checkLeg(order.Owner, order.Side, order.Symbol, fillQty, price, selfTrade); err != nil {
			return trades, err
		}
		if err := m.checkLeg(resting.Owner, resting.Side, order.Symbol, fillQty, price, selfTrade); err != nil {
			m.logger.Warn("dropping resting order",
				slog.String("order_id", resting.OrderID),
				slog.String("symbol", order.Symbol),
				slog.String("error", err.Error()),
			)
			book.Remove(resting.OrderID)
			continue
		}

		// Sell leg first: for a self-trade the proceeds fund the buy.
		if err := m.settleSell(ask.Owner, order.Symbol, fillQty, price); err != nil {
			return trades, err
		}
		if err := m.settleBuy(bid.Owner, order.Symbol, fillQty, price); err != nil {
			return trades, err
		}
		if ask.Owner.Issuer {
			inst.Issue(fillQty)
		}

		order.RemainingQuantity -= fillQty
		resting.RemainingQuantity -= fillQty
		if resting.RemainingQuantity == 0 {
			book.Remove(resting.OrderID)
		}

		inst.RecordFill(price, fillQty)
		trade := domain.TradeRecord{
			TradeID:  uuid.New().String(),
			Day:      order.Day,
			Session:  order.Session,
			Symbol:   order.Symbol,
			Buyer:    bid.Owner,
			Seller:   ask.Owner,
			Quantity: fillQty,
			Price:    price,
		}
		trades = append(trades, trade)

		m.logger.Info("trade executed",
			slog.String("symbol", trade.Symbol),
			slog.String("buyer", trade.Buyer.String()),
			slog.String("seller", trade.Seller.String()),
			slog.Int64("price", trade.Price),
			slog.Int64("quantity", trade.Quantity),
		)
	}

	if order.RemainingQuantity > 0 {
		book.Insert(order)
	}
	return trades, nil
}

// checkLeg reports whether party could settle its side of a fill right now.
// A funded bid skips the cash check.
func (m *Matcher) checkLeg(party domain.Party, side domain.OrderSide, symbol string, qty, price int64, funded bool) error {
	if party.Issuer {
		return nil
	}
	p, err := m.participants.GetActive(party.ParticipantID)
	if err != nil {
		return &domain.SettlementError{Party: party, Err: err}
	}
	if side == domain.OrderSideBid {
		if funded {
			return nil
		}
		if !p.CanBuy(qty, price, m.policy.OverdraftTolerance) {
			return &domain.SettlementError{Party: party, Err: domain.ErrInsufficientFunds}
		}
		return nil
	}
	if !p.CanSell(symbol, qty) {
		return &domain.SettlementError{Party: party, Err: domain.ErrInsufficientHoldings}
	}
	return nil
}

func (m *Matcher) settleBuy(party domain.Party, symbol string, qty, price int64) error {
	if party.Issuer {
		return nil
	}
	p, err := m.participants.GetActive(party.ParticipantID)
	if err == nil {
		err = p.SettleBuy(symbol, qty, price, m.policy.OverdraftTolerance)
	}
	if err != nil {
		return &domain.SettlementError{Party: party, Err: err}
	}
	return nil
}

func (m *Matcher) settleSell(party domain.Party, symbol string, qty, price int64) error {
	if party.Issuer {
		return nil
	}
	p, err := m.participants.GetActive(party.ParticipantID)
	if err == nil {
		err = p.SettleSell(symbol, qty, price)
	}
	if err != nil {
		return &domain.SettlementError{Party: party, Err: err}
	}
	return nil
}

// IsSettlementFailure reports whether err came from a party that could not
// settle its leg, as opposed to a malformed order.
func IsSettlementFailure(err error) bool {
	var se *domain.SettlementError
	return errors.As(err, &se)
}
