package service

import (
	"time"

	"github.com/efreitasn/marketsim/internal/domain"
	"github.com/efreitasn/marketsim/internal/engine"
	"github.com/efreitasn/marketsim/internal/store"
)

// InstrumentResponse represents the response for GET /instruments/{symbol}.
type InstrumentResponse struct {
	Symbol     string
	Price      int64
	OfferPrice int64
	Unissued   int64
	History    []domain.PricePoint
}

// BookPriceLevel represents an aggregated price level in the book response.
type BookPriceLevel struct {
	Price         int64
	TotalQuantity int64
	OrderCount    int
}

// BookResponse represents the response for GET /instruments/{symbol}/book.
type BookResponse struct {
	Symbol     string
	Bids       []BookPriceLevel
	Asks       []BookPriceLevel
	Spread     *int64 // nil if either side empty
	SnapshotAt time.Time
}

// MarketService answers read-only queries about instruments, books and
// trades while a run progresses.
type MarketService struct {
	instruments *domain.InstrumentRegistry
	books       *engine.BookManager
	trades      *store.TradeStore
}

// NewMarketService creates a new MarketService with the given dependencies.
func NewMarketService(
	instruments *domain.InstrumentRegistry,
	books *engine.BookManager,
	trades *store.TradeStore,
) *MarketService {
	return &MarketService{
		instruments: instruments,
		books:       books,
		trades:      trades,
	}
}

// ListInstruments returns the current quote of every instrument in
// registration order.
func (s *MarketService) ListInstruments() []domain.Quote {
	return s.instruments.Quotes()
}

// GetInstrument returns an instrument's price, issuance state and history.
func (s *MarketService) GetInstrument(symbol string) (*InstrumentResponse, error) {
	inst, err := s.instruments.Get(symbol)
	if err != nil {
		return nil, err
	}
	return &InstrumentResponse{
		Symbol:     inst.Symbol,
		Price:      inst.Price(),
		OfferPrice: inst.OfferPrice(),
		Unissued:   inst.Unissued(),
		History:    inst.History(),
	}, nil
}

// GetBook returns the top N price levels of the order book for a symbol.
func (s *MarketService) GetBook(symbol string, depth int) (*BookResponse, error) {
	if !s.instruments.Exists(symbol) {
		return nil, domain.ErrInstrumentNotFound
	}

	if depth < 1 || depth > 50 {
		return nil, &domain.ValidationError{
			Message: "depth must be between 1 and 50",
		}
	}

	book := s.books.GetOrCreate(symbol)

	book.RLock()
	defer book.RUnlock()

	topBids := book.TopBids(depth)
	topAsks := book.TopAsks(depth)

	resp := &BookResponse{
		Symbol:     symbol,
		Bids:       toBookLevels(topBids),
		Asks:       toBookLevels(topAsks),
		SnapshotAt: time.Now(),
	}

	// spread = best_ask - best_bid
	if len(topBids) > 0 && len(topAsks) > 0 {
		spread := topAsks[0].Price - topBids[0].Price
		resp.Spread = &spread
	}

	return resp, nil
}

func toBookLevels(levels []engine.PriceLevel) []BookPriceLevel {
	out := make([]BookPriceLevel, len(levels))
	for i, pl := range levels {
		out[i] = BookPriceLevel{
			Price:         pl.Price,
			TotalQuantity: pl.TotalQuantity,
			OrderCount:    pl.OrderCount,
		}
	}
	return out
}

// GetTrades returns the trades of a symbol, all of them when day is 0.
func (s *MarketService) GetTrades(symbol string, day int) ([]domain.TradeRecord, error) {
	if !s.instruments.Exists(symbol) {
		return nil, domain.ErrInstrumentNotFound
	}
	if day < 0 {
		return nil, &domain.ValidationError{
			Message: "day must be a positive integer",
		}
	}
	if day == 0 {
		return s.trades.GetBySymbol(symbol), nil
	}
	return s.trades.GetBySymbolAndDay(symbol, day), nil
}
