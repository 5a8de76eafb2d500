package domain

import "testing"

func TestOrderSide_Opposite(t *testing.T) {
	if got := OrderSideBid.Opposite(); got != OrderSideAsk {
		t.Errorf("bid.Opposite() = %s, want ask", got)
	}
	if got := OrderSideAsk.Opposite(); got != OrderSideBid {
		t.Errorf("ask.Opposite() = %s, want bid", got)
	}
}

func TestOrder_FilledQuantity(t *testing.T) {
	o := &Order{Quantity: 10, RemainingQuantity: 6}
	if got := o.FilledQuantity(); got != 4 {
		t.Errorf("FilledQuantity() = %d, want 4", got)
	}
}

func TestParty_String(t *testing.T) {
	if got := IssuerParty.String(); got != "issuer" {
		t.Errorf("IssuerParty.String() = %q, want issuer", got)
	}
	if got := ParticipantParty(12).String(); got != "12" {
		t.Errorf("ParticipantParty(12).String() = %q, want 12", got)
	}
	if ParticipantParty(0) == IssuerParty {
		t.Error("participant 0 must not equal the issuer")
	}
}
