package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/efreitasn/marketsim/internal/domain"
)

// WriteJSON writes data as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// errorResponse is the body of every error reply. Error is a stable
// snake_case code, Message is for humans.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError writes an error reply with the given code and message.
func WriteError(w http.ResponseWriter, status int, errorCode, message string) {
	WriteJSON(w, status, errorResponse{
		Error:   errorCode,
		Message: message,
	})
}

// writeBadParam reports a malformed path or query parameter.
func writeBadParam(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "validation_error", message)
}

// notFound lists the lookups that answer 404. The sentinel's text is the
// error code.
var notFound = []error{
	domain.ErrInstrumentNotFound,
	domain.ErrParticipantNotFound,
}

// WriteDomainError maps an error from the service layer to a reply:
// validation failures are 400, unknown instruments and participants 404,
// anything else 500 without details.
func WriteDomainError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		writeBadParam(w, validationErr.Message)
		return
	}
	for _, sentinel := range notFound {
		if errors.Is(err, sentinel) {
			WriteError(w, http.StatusNotFound, sentinel.Error(), err.Error())
			return
		}
	}
	WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
}
