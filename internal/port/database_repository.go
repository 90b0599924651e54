package port

import (
	"context"

	"github.com/venuekit/tapledger/internal/core/domain"
)

type DatabaseRepository interface {
	// RecordTap appends a normalized tap to the journal.
	RecordTap(ctx context.Context, ev domain.TapEvent) error

	// TeamIDForCard resolves the team a card belongs to; "" when unassigned.
	TeamIDForCard(ctx context.Context, cardID string) (string, error)

	// MemberIDForCard resolves the roster row for (team, card); "" when absent.
	MemberIDForCard(ctx context.Context, teamID, cardID string) (string, error)

	// TeamCards lists every card on a team's roster.
	TeamCards(ctx context.Context, teamID string) ([]string, error)

	// ApplyVisit runs the first-visit conditional insert and the point award
	// in one transaction. The conditional write is the sole source of truth
	// for first-visit.
	ApplyVisit(ctx context.Context, visit domain.VisitAttempt) (domain.VisitOutcome, error)

	// Redeem debits the team balance under a row lock and appends the audit
	// record, atomically. Returns domain.ErrInsufficientPoints with no side
	// effects when the balance cannot cover the spend.
	Redeem(ctx context.Context, rec domain.RedemptionRecord) error

	// TeamScore reads the current balance; 0 when no row exists.
	TeamScore(ctx context.Context, teamID string) (int, error)

	// ReleaseCards releases every card in one transaction, collecting
	// per-card outcomes; one card's failure does not abort the others. A
	// transaction-level error rolls everything back.
	ReleaseCards(ctx context.Context, teamID string, cards []string, portal string) ([]domain.CardRelease, error)

	// DeleteTeamScore removes a team's balance row.
	DeleteTeamScore(ctx context.Context, teamID string) error

	// PurgeTeam removes a team's visits, redemptions and balance in one
	// transaction.
	PurgeTeam(ctx context.Context, teamID string) error

	// LatestLabels returns the most recent journal label per card.
	LatestLabels(ctx context.Context, cards []string) (map[string]string, error)
}
