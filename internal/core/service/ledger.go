package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/venuekit/tapledger/internal/core/domain"
	"github.com/venuekit/tapledger/internal/port"
)

// TapService is the engine: it owns the occupancy counter, the exit stack
// and the notification bus, and drives every store transaction for a tap.
// One instance is constructed at startup and passed by handle to callers.
type TapService struct {
	db        port.DatabaseRepository
	publisher port.StreamPublisher
	rules     Rules

	normalizer domain.Normalizer
	occupancy  *OccupancyCounter
	stack      *ExitStack
	bus        *TapBus
}

// NewTapService wires the engine. publisher may be nil when no live
// republish target is configured.
func NewTapService(db port.DatabaseRepository, publisher port.StreamPublisher, rules Rules) *TapService {
	occupancy := NewOccupancyCounter()
	return &TapService{
		db:         db,
		publisher:  publisher,
		rules:      rules,
		normalizer: rules.normalizer(),
		occupancy:  occupancy,
		stack:      NewExitStack(db, occupancy, rules.ReleasePortal),
		bus:        NewTapBus(),
	}
}

// ProcessTap normalizes one raw payload and routes it: zone taps score,
// exit taps buffer, registration taps count an entry, everything else is a
// named skip. A malformed payload (missing tag or portal) errors out and is
// never retried here; retry policy belongs to the caller.
func (s *TapService) ProcessTap(ctx context.Context, raw domain.RawTap) (domain.TapResult, error) {
	ev, err := s.normalizer.Normalize(raw)
	if err != nil {
		return domain.TapResult{}, err
	}

	// Journal the tap first so the live stream and the latest-label scan see
	// every well-formed event; a journal failure must not block routing.
	if err := s.db.RecordTap(ctx, ev); err != nil {
		log.Printf("[ledger] journal tap %s @ %s: %v", ev.CardID, ev.PortalID, err)
	}
	s.publish(ctx, ev)

	if !s.rules.Enabled {
		return domain.TapResult{Status: domain.TapStatusDisabled, Event: ev}, nil
	}

	switch {
	case strings.HasPrefix(ev.Label, s.rules.EligibleLabelPrefix):
		return s.scoreTap(ctx, ev)
	case ev.Label == s.rules.ExitLabel:
		return s.exitTap(ctx, ev)
	case ev.Label == s.rules.RegistrationLabel:
		crowd := s.occupancy.Increment(1)
		log.Printf("[ledger] entry tap %s @ %s (crowd %d)", ev.CardID, ev.PortalID, crowd)
		return domain.TapResult{Status: domain.TapStatusEntered, Event: ev}, nil
	default:
		return domain.TapResult{Status: domain.TapStatusNotEligible, Event: ev}, nil
	}
}

func (s *TapService) scoreTap(ctx context.Context, ev domain.TapEvent) (domain.TapResult, error) {
	teamID, err := s.db.TeamIDForCard(ctx, ev.CardID)
	if err != nil {
		return domain.TapResult{}, fmt.Errorf("resolve team for %s: %w", ev.CardID, err)
	}
	if teamID == "" {
		return domain.TapResult{Status: domain.TapStatusUnassigned, Event: ev}, nil
	}

	memberID, err := s.db.MemberIDForCard(ctx, teamID, ev.CardID)
	if err != nil {
		return domain.TapResult{}, fmt.Errorf("resolve member for %s: %w", ev.CardID, err)
	}
	if memberID == "" {
		return domain.TapResult{Status: domain.TapStatusMemberNotFound, Event: ev}, nil
	}

	outcome, err := s.db.ApplyVisit(ctx, domain.VisitAttempt{
		MemberID:       memberID,
		TeamID:         teamID,
		ZoneLabel:      ev.Label,
		FirstVisit:     s.rules.firstVisitAward(ev.Label),
		RepeatVisit:    s.rules.RepeatVisitPoints,
		AwardOnlyFirst: s.rules.AwardOnlyFirstVisit,
	})
	if err != nil {
		return domain.TapResult{}, fmt.Errorf("apply visit %s/%s: %w", memberID, ev.Label, err)
	}

	result := &domain.VisitResult{
		Awarded:    outcome.Points > 0,
		Points:     outcome.Points,
		FirstVisit: outcome.FirstVisit,
		TeamID:     teamID,
	}

	// Auto-redemption: a failure is captured alongside the outcome, never
	// re-raised, so a scored visit still reports as scored.
	if zr, ok := s.rules.Zone(ev.Label); ok && zr.Redeemable {
		rec, err := s.Redeem(ctx, domain.RedeemInput{TeamID: teamID, ZoneLabel: ev.Label, RedeemedBy: "auto"})
		if err != nil {
			result.RedemptionError = err.Error()
		} else {
			result.Redemption = &rec
		}
	}

	return domain.TapResult{Status: domain.TapStatusScored, Event: ev, Ledger: result}, nil
}

func (s *TapService) exitTap(ctx context.Context, ev domain.TapEvent) (domain.TapResult, error) {
	teamID, err := s.db.TeamIDForCard(ctx, ev.CardID)
	if err != nil {
		return domain.TapResult{}, fmt.Errorf("resolve team for %s: %w", ev.CardID, err)
	}
	if teamID == "" {
		// No structured exit-stack tracking is possible without a team; fall
		// back to the legacy whole-team cleanup scan.
		log.Printf("[ledger] exit tap %s has no team, trying legacy cleanup", ev.CardID)
		if err := s.legacyExitCleanup(ctx, ev.CardID); err != nil {
			log.Printf("[ledger] legacy cleanup for %s: %v", ev.CardID, err)
		}
		return domain.TapResult{Status: domain.TapStatusUnassigned, Event: ev}, nil
	}

	add := s.stack.Add(teamID, ev.CardID)
	status := domain.TapStatusBuffered
	if add.AlreadyBuffered {
		status = domain.TapStatusAlreadyBuffered
	}
	return domain.TapResult{Status: status, Event: ev, Stack: &add}, nil
}

// legacyExitCleanup purges a team's visit, redemption and score rows when
// every roster card's most recent journal entry is the exit label. Distinct
// from stack finalization by design: different trigger, no coordination.
func (s *TapService) legacyExitCleanup(ctx context.Context, cardID string) error {
	teamID, err := s.db.TeamIDForCard(ctx, cardID)
	if err != nil {
		return err
	}
	if teamID == "" {
		return nil
	}
	cards, err := s.db.TeamCards(ctx, teamID)
	if err != nil {
		return err
	}
	if len(cards) == 0 {
		return nil
	}
	latest, err := s.db.LatestLabels(ctx, cards)
	if err != nil {
		return err
	}
	for _, card := range cards {
		if latest[card] != s.rules.ExitLabel {
			return nil
		}
	}
	return s.db.PurgeTeam(ctx, teamID)
}

// Redeem spends a redeemable zone's cost from the team balance and appends
// the audit record, atomically against the store. Insufficient balance is a
// reported failure with zero side effects.
func (s *TapService) Redeem(ctx context.Context, in domain.RedeemInput) (domain.RedemptionRecord, error) {
	if in.TeamID == "" {
		return domain.RedemptionRecord{}, domain.ErrTeamRequired
	}
	label := domain.NormalizeLabel(in.ZoneLabel)
	zr, ok := s.rules.Zone(label)
	if !ok || !zr.Redeemable || zr.RedeemPoints < 0 {
		return domain.RedemptionRecord{}, domain.ErrZoneNotRedeemable
	}

	rec := domain.RedemptionRecord{
		ID:          uuid.NewString(),
		TeamID:      in.TeamID,
		ZoneLabel:   label,
		PointsSpent: zr.RedeemPoints,
		RedeemedBy:  in.RedeemedBy,
		RedeemedAt:  time.Now(),
	}
	if err := s.db.Redeem(ctx, rec); err != nil {
		return domain.RedemptionRecord{}, err
	}
	return rec, nil
}

// TeamScore reads a team's current balance.
func (s *TapService) TeamScore(ctx context.Context, teamID string) (int, error) {
	return s.db.TeamScore(ctx, teamID)
}

// Exit-stack surface.

func (s *TapService) StackSnapshot() []domain.TeamStack { return s.stack.Snapshot() }

func (s *TapService) StackStats() domain.StackStats { return s.stack.Stats() }

func (s *TapService) ReleaseTeam(ctx context.Context, teamID string) domain.ReleaseResult {
	return s.stack.Release(ctx, teamID)
}

func (s *TapService) ClearStack() domain.StackStats { return s.stack.Clear() }

// Occupancy returns the live in-venue count.
func (s *TapService) Occupancy() int { return s.occupancy.Read() }

// SubscribeTaps registers a live-stream handler and returns its
// deregistration func.
func (s *TapService) SubscribeTaps(fn func(domain.TapEvent)) func() {
	return s.bus.Subscribe(fn)
}

func (s *TapService) publish(ctx context.Context, ev domain.TapEvent) {
	s.bus.Publish(ev)
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishTap(ctx, ev); err != nil {
		log.Printf("[ledger] republish tap %s: %v", ev.CardID, err)
	}
}
