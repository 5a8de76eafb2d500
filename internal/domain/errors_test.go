package domain

import (
	"errors"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Message: "Value of key 'loan' should be yes or no."}
	if err.Error() != "Value of key 'loan' should be yes or no." {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestSettlementError_UnwrapsSentinel(t *testing.T) {
	var err error = &SettlementError{Party: ParticipantParty(3), Err: ErrInsufficientHoldings}

	if !errors.Is(err, ErrInsufficientHoldings) {
		t.Error("errors.Is(err, ErrInsufficientHoldings) = false, want true")
	}
	if errors.Is(err, ErrInsufficientFunds) {
		t.Error("errors.Is(err, ErrInsufficientFunds) = true, want false")
	}

	var se *SettlementError
	if !errors.As(err, &se) {
		t.Fatal("errors.As failed for *SettlementError")
	}
	if se.Party != ParticipantParty(3) {
		t.Errorf("Party = %v, want participant 3", se.Party)
	}
	if got := err.Error(); got != "settle 3: insufficient_holdings" {
		t.Errorf("Error() = %q", got)
	}
}

func TestSentinelErrors_AreDistinct(t *testing.T) {
	errs := []error{
		ErrParticipantNotFound,
		ErrParticipantExists,
		ErrParticipantInactive,
		ErrInsufficientFunds,
		ErrInsufficientHoldings,
		ErrInstrumentNotFound,
		ErrMalformedResponse,
		ErrNoParticipants,
		ErrInvalidLoan,
	}
	for i := 0; i < len(errs); i++ {
		for j := i + 1; j < len(errs); j++ {
			if errors.Is(errs[i], errs[j]) {
				t.Errorf("sentinel errors %d and %d should be distinct", i, j)
			}
		}
	}
}
