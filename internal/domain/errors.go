package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain-level error handling.
// The engine and controller log these; none of them stops a run.
var (
	ErrParticipantNotFound  = errors.New("participant_not_found")
	ErrParticipantExists    = errors.New("participant_already_exists")
	ErrParticipantInactive  = errors.New("participant_inactive")
	ErrInsufficientFunds    = errors.New("insufficient_funds")
	ErrInsufficientHoldings = errors.New("insufficient_holdings")
	ErrInstrumentNotFound   = errors.New("instrument_not_found")
	ErrMalformedResponse    = errors.New("malformed_response")
	ErrNoParticipants       = errors.New("no_participants")
	ErrInvalidLoan          = errors.New("invalid_loan")
)

// ValidationError represents a decision that failed format or policy checks.
// The message is fed back to the decision service on retry.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// SettlementError reports the party whose leg of a fill could not be settled.
type SettlementError struct {
	Party Party
	Err   error
}

func (e *SettlementError) Error() string {
	return fmt.Sprintf("settle %s: %v", e.Party, e.Err)
}

func (e *SettlementError) Unwrap() error {
	return e.Err
}
