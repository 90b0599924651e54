package service

import "github.com/venuekit/tapledger/internal/core/domain"

// ZoneRule overrides scoring for a single zone. Keys in Rules.ZoneRules are
// normalized upper-case labels.
type ZoneRule struct {
	// AwardPoints overrides Rules.FirstVisitPoints for this zone when set.
	AwardPoints  *int
	Redeemable   bool
	RedeemPoints int
}

// Rules is the scoring configuration. Fixed at engine construction.
type Rules struct {
	Enabled bool

	// EligibleLabelPrefix scopes scoring: only labels starting with this
	// prefix earn points.
	EligibleLabelPrefix string

	RegistrationLabel string
	ExitLabel         string
	ExitPortal        string

	// ReleasePortal is the marker written onto cards during a bulk release.
	ReleasePortal string

	FirstVisitPoints    int
	RepeatVisitPoints   int
	AwardOnlyFirstVisit bool

	// MinPointsRequired is the eligibility threshold reported to kiosks; the
	// engine itself does not gate on it.
	MinPointsRequired int

	ZoneRules map[string]ZoneRule
}

// DefaultRules mirrors the venue's standard configuration.
func DefaultRules() Rules {
	return Rules{
		Enabled:             true,
		EligibleLabelPrefix: "CLUSTER",
		RegistrationLabel:   "REGISTER",
		ExitLabel:           "EXITOUT",
		ExitPortal:          "exitout",
		ReleasePortal:       "EXITOUT_STACK",
		FirstVisitPoints:    1,
		RepeatVisitPoints:   0,
		AwardOnlyFirstVisit: true,
		MinPointsRequired:   3,
		ZoneRules:           map[string]ZoneRule{},
	}
}

// Zone returns the rule for a label, if one is configured.
func (r Rules) Zone(label string) (ZoneRule, bool) {
	zr, ok := r.ZoneRules[domain.NormalizeLabel(label)]
	return zr, ok
}

func (r Rules) firstVisitAward(label string) int {
	if zr, ok := r.Zone(label); ok && zr.AwardPoints != nil {
		return *zr.AwardPoints
	}
	return r.FirstVisitPoints
}

func (r Rules) normalizer() domain.Normalizer {
	return domain.Normalizer{
		RegistrationLabel: r.RegistrationLabel,
		ExitLabel:         r.ExitLabel,
		ExitPortal:        r.ExitPortal,
	}
}
