package domain

import "strconv"

// Party identifies the owner of an order or one side of a trade: either a
// participant or the primary issuer of an instrument. The issuer is never
// settled against, it only supplies shares.
type Party struct {
	Issuer        bool `json:"issuer,omitempty"`
	ParticipantID int  `json:"participant_id"`
}

// IssuerParty is the counterpart for primary issuance.
var IssuerParty = Party{Issuer: true, ParticipantID: -1}

// ParticipantParty returns the party for a participant id.
func ParticipantParty(id int) Party {
	return Party{ParticipantID: id}
}

// String returns "issuer" or the participant id.
func (p Party) String() string {
	if p.Issuer {
		return "issuer"
	}
	return strconv.Itoa(p.ParticipantID)
}
