package handler

import (
	"net/http"

	"github.com/efreitasn/marketsim/internal/service"
)

// SimulationHandler exposes the controller's progress and forum.
type SimulationHandler struct {
	sim *service.Simulation
}

// NewSimulationHandler creates a new SimulationHandler.
func NewSimulationHandler(sim *service.Simulation) *SimulationHandler {
	return &SimulationHandler{sim: sim}
}

type statusResponse struct {
	RunID              string  `json:"run_id"`
	Phase              string  `json:"phase"`
	Day                int     `json:"day"`
	Session            int     `json:"session"`
	Days               int     `json:"days"`
	Sessions           int     `json:"sessions"`
	ActiveParticipants int     `json:"active_participants"`
	StartedAt          *string `json:"started_at"`
}

type forumPostResponse struct {
	Day           int    `json:"day"`
	ParticipantID int    `json:"participant_id"`
	Broadcast     bool   `json:"broadcast"`
	Message       string `json:"message"`
}

// Status handles GET /status.
func (h *SimulationHandler) Status(w http.ResponseWriter, r *http.Request) {
	st := h.sim.Status()
	resp := statusResponse{
		RunID:              st.RunID,
		Phase:              string(st.Phase),
		Day:                st.Day,
		Session:            st.Session,
		Days:               st.Days,
		Sessions:           st.Sessions,
		ActiveParticipants: st.ActiveParticipants,
	}
	if !st.StartedAt.IsZero() {
		s := st.StartedAt.UTC().Format("2006-01-02T15:04:05Z")
		resp.StartedAt = &s
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Forum handles GET /forum: the posts the current day's decisions read.
func (h *SimulationHandler) Forum(w http.ResponseWriter, r *http.Request) {
	posts := h.sim.Forum()
	resp := make([]forumPostResponse, len(posts))
	for i, p := range posts {
		resp[i] = forumPostResponse{
			Day:           p.Day,
			ParticipantID: p.ParticipantID,
			Broadcast:     p.Broadcast,
			Message:       p.Message,
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}
