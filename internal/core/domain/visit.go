package domain

// VisitAttempt carries one zone tap into the store transaction that decides
// first-visit and applies the award. Both award amounts are resolved by the
// caller so the whole decision can ride on the store's conditional write.
type VisitAttempt struct {
	MemberID       string
	TeamID         string
	ZoneLabel      string
	FirstVisit     int
	RepeatVisit    int
	AwardOnlyFirst bool
}

// VisitOutcome reports what the transaction did. FirstVisit is true exactly
// when the conditional insert of the (member, zone) marker succeeded.
type VisitOutcome struct {
	FirstVisit bool
	Points     int
}

// VisitResult is the ledger's answer for a scored tap.
type VisitResult struct {
	Awarded         bool              `json:"awarded"`
	Points          int               `json:"points"`
	FirstVisit      bool              `json:"first_visit"`
	TeamID          string            `json:"team_id"`
	Redemption      *RedemptionRecord `json:"redemption,omitempty"`
	RedemptionError string            `json:"redemption_error,omitempty"`
}

// Tap processing statuses. These mirror the routing outcomes: a tap is
// scored, buffered for exit, counted as an entry, or skipped for a named
// reason. Skips are normal outcomes, not errors.
const (
	TapStatusScored          = "scored"
	TapStatusBuffered        = "buffered"
	TapStatusAlreadyBuffered = "already-buffered"
	TapStatusEntered         = "entered"
	TapStatusNotEligible     = "not-eligible"
	TapStatusUnassigned      = "unassigned"
	TapStatusMemberNotFound  = "member-not-found"
	TapStatusDisabled        = "disabled"
)

// TapResult is the full outcome of processing one tap.
type TapResult struct {
	Status string       `json:"status"`
	Event  TapEvent     `json:"event"`
	Ledger *VisitResult `json:"ledger,omitempty"`
	Stack  *StackAdd    `json:"stack,omitempty"`
}
