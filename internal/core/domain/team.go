package domain

import "time"

// TeamScore is a team's running point balance. Created lazily on the first
// award; the balance is only ever moved by relative increments and
// decrements, never overwritten.
type TeamScore struct {
	TeamID      string    `json:"team_id"`
	TeamName    string    `json:"team_name"`
	TotalPoints int       `json:"total_points"`
	LastUpdated time.Time `json:"last_updated"`
}

// RedemptionRecord is an append-only audit entry for a point spend.
type RedemptionRecord struct {
	ID          string    `json:"id"`
	TeamID      string    `json:"team_id"`
	ZoneLabel   string    `json:"zone_label"`
	PointsSpent int       `json:"points_spent"`
	RedeemedBy  string    `json:"redeemed_by,omitempty"`
	RedeemedAt  time.Time `json:"redeemed_at"`
}

// RedeemInput identifies a redemption request. The cost comes from the zone
// rule, not the caller.
type RedeemInput struct {
	TeamID     string `json:"team_id"`
	ZoneLabel  string `json:"zone_label"`
	RedeemedBy string `json:"redeemed_by"`
}
