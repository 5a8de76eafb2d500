package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/marketsim/internal/domain"
	"github.com/efreitasn/marketsim/internal/service"
)

// ParticipantHandler handles HTTP requests for participant endpoints.
type ParticipantHandler struct {
	participantSvc *service.ParticipantService
}

// NewParticipantHandler creates a new ParticipantHandler.
func NewParticipantHandler(participantSvc *service.ParticipantService) *ParticipantHandler {
	return &ParticipantHandler{participantSvc: participantSvc}
}

type holdingResponse struct {
	Symbol   string  `json:"symbol"`
	Quantity int64   `json:"quantity"`
	Value    float64 `json:"value"`
}

type loanResponse struct {
	LoanID  string  `json:"loan_id"`
	Type    int     `json:"type"`
	Amount  float64 `json:"amount"`
	TakenOn int     `json:"taken_on"`
	DueDay  int     `json:"due_day"`
}

// participantResponse is the JSON response for GET /participants/{id}.
type participantResponse struct {
	ParticipantID    int               `json:"participant_id"`
	Cash             float64           `json:"cash"`
	Property         float64           `json:"property"`
	OutstandingLoans float64           `json:"outstanding_loans"`
	Holdings         []holdingResponse `json:"holdings"`
	Loans            []loanResponse    `json:"loans"`
	Bankrupt         bool              `json:"bankrupt"`
	Quit             bool              `json:"quit"`
	Notes            []string          `json:"notes"`
}

func toParticipantResponse(p *service.ParticipantResponse) participantResponse {
	holdings := make([]holdingResponse, len(p.Holdings))
	for i, h := range p.Holdings {
		holdings[i] = holdingResponse{
			Symbol:   h.Symbol,
			Quantity: h.Quantity,
			Value:    domain.CentsToDollars(h.Value),
		}
	}
	loans := make([]loanResponse, len(p.Loans))
	for i, l := range p.Loans {
		loans[i] = loanResponse{
			LoanID:  l.LoanID,
			Type:    int(l.Type),
			Amount:  domain.CentsToDollars(l.Amount),
			TakenOn: l.TakenOn,
			DueDay:  l.DueDay,
		}
	}
	notes := p.Notes
	if notes == nil {
		notes = []string{}
	}
	return participantResponse{
		ParticipantID:    p.ParticipantID,
		Cash:             domain.CentsToDollars(p.Cash),
		Property:         domain.CentsToDollars(p.Property),
		OutstandingLoans: domain.CentsToDollars(p.OutstandingLoans),
		Holdings:         holdings,
		Loans:            loans,
		Bankrupt:         p.Bankrupt,
		Quit:             p.Quit,
		Notes:            notes,
	}
}

// List handles GET /participants.
func (h *ParticipantHandler) List(w http.ResponseWriter, r *http.Request) {
	all := h.participantSvc.List()
	resp := make([]participantResponse, len(all))
	for i, p := range all {
		resp[i] = toParticipantResponse(p)
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Get handles GET /participants/{id}.
func (h *ParticipantHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeBadParam(w, "id must be a valid integer")
		return
	}

	p, err := h.participantSvc.Get(id)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, toParticipantResponse(p))
}
