package service

import (
	"sort"

	"github.com/efreitasn/marketsim/internal/domain"
	"github.com/efreitasn/marketsim/internal/store"
)

// HoldingBalance represents a single holding in the participant response.
type HoldingBalance struct {
	Symbol   string
	Quantity int64
	Value    int64
}

// ParticipantResponse represents the response for GET /participants/{id}.
type ParticipantResponse struct {
	ParticipantID    int
	Cash             int64
	Property         int64
	OutstandingLoans int64
	Holdings         []HoldingBalance
	Loans            []domain.Loan
	Bankrupt         bool
	Quit             bool
	Notes            []string
}

// ParticipantService handles participant balance queries.
type ParticipantService struct {
	store       *store.ParticipantStore
	instruments *domain.InstrumentRegistry
}

// NewParticipantService creates a new ParticipantService.
func NewParticipantService(store *store.ParticipantStore, instruments *domain.InstrumentRegistry) *ParticipantService {
	return &ParticipantService{
		store:       store,
		instruments: instruments,
	}
}

// List returns every participant ever created, active or not, by id.
func (s *ParticipantService) List() []*ParticipantResponse {
	all := s.store.All()
	quotes := s.instruments.Quotes()
	out := make([]*ParticipantResponse, len(all))
	for i, p := range all {
		out[i] = s.describe(p, quotes)
	}
	return out
}

// Get retrieves a participant's balance valued at current prices.
func (s *ParticipantService) Get(id int) (*ParticipantResponse, error) {
	p, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	return s.describe(p, s.instruments.Quotes()), nil
}

func (s *ParticipantService) describe(p *domain.Participant, quotes []domain.Quote) *ParticipantResponse {
	snap := p.Snapshot()
	values := p.HoldingValues(quotes)

	holdings := make([]HoldingBalance, 0, len(snap.Holdings))
	for symbol, qty := range snap.Holdings {
		holdings = append(holdings, HoldingBalance{
			Symbol:   symbol,
			Quantity: qty,
			Value:    values[symbol],
		})
	}
	sort.Slice(holdings, func(i, j int) bool {
		return holdings[i].Symbol < holdings[j].Symbol
	})

	return &ParticipantResponse{
		ParticipantID:    snap.ID,
		Cash:             snap.Cash,
		Property:         p.Property(quotes),
		OutstandingLoans: p.OutstandingLoans(),
		Holdings:         holdings,
		Loans:            snap.Loans,
		Bankrupt:         snap.Bankrupt,
		Quit:             snap.Quit,
		Notes:            snap.Notes,
	}
}
