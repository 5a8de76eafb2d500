package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/marketsim/internal/domain"
	"github.com/efreitasn/marketsim/internal/service"
)

// MarketHandler handles HTTP requests for instrument endpoints.
type MarketHandler struct {
	marketSvc *service.MarketService
}

// NewMarketHandler creates a new MarketHandler.
func NewMarketHandler(marketSvc *service.MarketService) *MarketHandler {
	return &MarketHandler{marketSvc: marketSvc}
}

// quoteResponse is a single entry of GET /instruments.
type quoteResponse struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

// pricePointResponse is one session close in the instrument history.
type pricePointResponse struct {
	Day     int     `json:"day"`
	Session int     `json:"session"`
	Price   float64 `json:"price"`
	Volume  int64   `json:"volume"`
}

// instrumentResponse is the JSON response for GET /instruments/{symbol}.
type instrumentResponse struct {
	Symbol     string               `json:"symbol"`
	Price      float64              `json:"price"`
	OfferPrice float64              `json:"offer_price"`
	Unissued   int64                `json:"unissued"`
	History    []pricePointResponse `json:"history"`
}

// bookLevelResponse is a single price level in the book response.
type bookLevelResponse struct {
	Price         float64 `json:"price"`
	TotalQuantity int64   `json:"total_quantity"`
	OrderCount    int     `json:"order_count"`
}

// bookResponse is the JSON response for GET /instruments/{symbol}/book.
type bookResponse struct {
	Symbol     string              `json:"symbol"`
	Bids       []bookLevelResponse `json:"bids"`
	Asks       []bookLevelResponse `json:"asks"`
	Spread     *float64            `json:"spread"`
	SnapshotAt string              `json:"snapshot_at"`
}

// tradeResponse is a single trade in GET /instruments/{symbol}/trades.
type tradeResponse struct {
	TradeID  string  `json:"trade_id"`
	Day      int     `json:"day"`
	Session  int     `json:"session"`
	Buyer    string  `json:"buyer"`
	Seller   string  `json:"seller"`
	Quantity int64   `json:"quantity"`
	Price    float64 `json:"price"`
}

// ListInstruments handles GET /instruments.
func (h *MarketHandler) ListInstruments(w http.ResponseWriter, r *http.Request) {
	quotes := h.marketSvc.ListInstruments()
	resp := make([]quoteResponse, len(quotes))
	for i, q := range quotes {
		resp[i] = quoteResponse{Symbol: q.Symbol, Price: domain.CentsToDollars(q.Price)}
	}
	WriteJSON(w, http.StatusOK, resp)
}

// GetInstrument handles GET /instruments/{symbol}.
func (h *MarketHandler) GetInstrument(w http.ResponseWriter, r *http.Request) {
	inst, err := h.marketSvc.GetInstrument(chi.URLParam(r, "symbol"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	history := make([]pricePointResponse, len(inst.History))
	for i, p := range inst.History {
		history[i] = pricePointResponse{
			Day:     p.Day,
			Session: p.Session,
			Price:   domain.CentsToDollars(p.Price),
			Volume:  p.Volume,
		}
	}

	WriteJSON(w, http.StatusOK, instrumentResponse{
		Symbol:     inst.Symbol,
		Price:      domain.CentsToDollars(inst.Price),
		OfferPrice: domain.CentsToDollars(inst.OfferPrice),
		Unissued:   inst.Unissued,
		History:    history,
	})
}

// GetBook handles GET /instruments/{symbol}/book.
func (h *MarketHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	// Parse depth query param (default 10, max 50).
	depth := 10
	if d := r.URL.Query().Get("depth"); d != "" {
		var err error
		depth, err = strconv.Atoi(d)
		if err != nil {
			writeBadParam(w, "depth must be a valid integer")
			return
		}
	}

	book, err := h.marketSvc.GetBook(symbol, depth)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	resp := bookResponse{
		Symbol:     book.Symbol,
		Bids:       toBookLevelResponses(book.Bids),
		Asks:       toBookLevelResponses(book.Asks),
		SnapshotAt: book.SnapshotAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	if book.Spread != nil {
		v := domain.CentsToDollars(*book.Spread)
		resp.Spread = &v
	}

	WriteJSON(w, http.StatusOK, resp)
}

func toBookLevelResponses(levels []service.BookPriceLevel) []bookLevelResponse {
	out := make([]bookLevelResponse, len(levels))
	for i, l := range levels {
		out[i] = bookLevelResponse{
			Price:         domain.CentsToDollars(l.Price),
			TotalQuantity: l.TotalQuantity,
			OrderCount:    l.OrderCount,
		}
	}
	return out
}

// GetTrades handles GET /instruments/{symbol}/trades.
func (h *MarketHandler) GetTrades(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	day := 0
	if d := r.URL.Query().Get("day"); d != "" {
		var err error
		day, err = strconv.Atoi(d)
		if err != nil {
			writeBadParam(w, "day must be a valid integer")
			return
		}
	}

	trades, err := h.marketSvc.GetTrades(symbol, day)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	resp := make([]tradeResponse, len(trades))
	for i, t := range trades {
		resp[i] = tradeResponse{
			TradeID:  t.TradeID,
			Day:      t.Day,
			Session:  t.Session,
			Buyer:    t.Buyer.String(),
			Seller:   t.Seller.String(),
			Quantity: t.Quantity,
			Price:    domain.CentsToDollars(t.Price),
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}
