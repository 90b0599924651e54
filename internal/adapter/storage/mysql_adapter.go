package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/venuekit/tapledger/internal/core/domain"
)

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) RecordTap(ctx context.Context, ev domain.TapEvent) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO taps (tap_time, card_id, portal, label)
		VALUES (?, ?, ?, ?)`,
		ev.Timestamp, ev.CardID, ev.PortalID, ev.Label,
	)
	if err != nil {
		return fmt.Errorf("insert tap: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) TeamIDForCard(ctx context.Context, cardID string) (string, error) {
	var teamID string
	err := m.db.QueryRowContext(ctx, `
		SELECT team_id FROM members WHERE card_id = ? LIMIT 1`, cardID,
	).Scan(&teamID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query team for card: %w", err)
	}
	return teamID, nil
}

func (m *MySQLAdapter) MemberIDForCard(ctx context.Context, teamID, cardID string) (string, error) {
	var memberID string
	err := m.db.QueryRowContext(ctx, `
		SELECT id FROM members WHERE team_id = ? AND card_id = ? LIMIT 1`,
		teamID, cardID,
	).Scan(&memberID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query member: %w", err)
	}
	return memberID, nil
}

func (m *MySQLAdapter) TeamCards(ctx context.Context, teamID string) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT card_id FROM members WHERE team_id = ?`, teamID)
	if err != nil {
		return nil, fmt.Errorf("query team cards: %w", err)
	}
	defer rows.Close()

	var cards []string
	for rows.Next() {
		var card string
		if err := rows.Scan(&card); err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		cards = append(cards, card)
	}
	return cards, rows.Err()
}

// ApplyVisit marks the member's first visit and applies the award in one
// transaction. The unique (member_id, zone_label) key makes INSERT IGNORE
// the conditional write: one affected row means first visit, zero means the
// marker already existed.
func (m *MySQLAdapter) ApplyVisit(ctx context.Context, visit domain.VisitAttempt) (domain.VisitOutcome, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.VisitOutcome{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT IGNORE INTO member_zone_visits (member_id, zone_label, first_visit_at)
		VALUES (?, ?, NOW())`,
		visit.MemberID, visit.ZoneLabel,
	)
	if err != nil {
		return domain.VisitOutcome{}, fmt.Errorf("insert visit: %w", err)
	}
	rows, _ := res.RowsAffected()
	first := rows > 0

	points := visit.RepeatVisit
	if first {
		points = visit.FirstVisit
	} else if visit.AwardOnlyFirst {
		points = 0
	}

	if points > 0 {
		if err := ensureTeamScore(ctx, tx, visit.TeamID); err != nil {
			return domain.VisitOutcome{}, err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE team_scores
			SET total_points = total_points + ?, last_updated = NOW()
			WHERE team_id = ?`,
			points, visit.TeamID,
		)
		if err != nil {
			return domain.VisitOutcome{}, fmt.Errorf("add points: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.VisitOutcome{}, fmt.Errorf("commit visit: %w", err)
	}
	return domain.VisitOutcome{FirstVisit: first, Points: points}, nil
}

// Redeem debits the balance and appends the audit row in one transaction.
// The FOR UPDATE read serializes concurrent redemptions for the same team so
// two requests cannot both pass the check against a balance only one can
// afford.
func (m *MySQLAdapter) Redeem(ctx context.Context, rec domain.RedemptionRecord) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := ensureTeamScore(ctx, tx, rec.TeamID); err != nil {
		return err
	}

	var balance int
	err = tx.QueryRowContext(ctx, `
		SELECT total_points FROM team_scores WHERE team_id = ? FOR UPDATE`,
		rec.TeamID,
	).Scan(&balance)
	if err != nil {
		return fmt.Errorf("lock balance: %w", err)
	}
	if balance < rec.PointsSpent {
		return domain.ErrInsufficientPoints
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE team_scores
		SET total_points = total_points - ?, last_updated = NOW()
		WHERE team_id = ?`,
		rec.PointsSpent, rec.TeamID,
	)
	if err != nil {
		return fmt.Errorf("debit balance: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO redemptions (id, team_id, zone_label, points_spent, redeemed_by, redeemed_at)
		VALUES (?, ?, ?, ?, NULLIF(?, ''), ?)`,
		rec.ID, rec.TeamID, rec.ZoneLabel, rec.PointsSpent, rec.RedeemedBy, rec.RedeemedAt,
	)
	if err != nil {
		return fmt.Errorf("insert redemption: %w", err)
	}

	return tx.Commit()
}

func (m *MySQLAdapter) TeamScore(ctx context.Context, teamID string) (int, error) {
	var points int
	err := m.db.QueryRowContext(ctx, `
		SELECT total_points FROM team_scores WHERE team_id = ?`, teamID,
	).Scan(&points)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query score: %w", err)
	}
	return points, nil
}

// ReleaseCards processes every buffered card in one transaction: point the
// card at the release portal marker, detach it from the roster, flag it
// released. A failing card is recorded and the rest continue; only a
// begin/commit failure rolls the whole batch back.
func (m *MySQLAdapter) ReleaseCards(ctx context.Context, teamID string, cards []string, portal string) ([]domain.CardRelease, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	results := make([]domain.CardRelease, 0, len(cards))
	for _, card := range cards {
		if err := releaseCard(ctx, tx, card, portal); err != nil {
			results = append(results, domain.CardRelease{CardID: card, Error: err.Error()})
			continue
		}
		results = append(results, domain.CardRelease{CardID: card, Released: true})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit release: %w", err)
	}
	return results, nil
}

func releaseCard(ctx context.Context, tx *sql.Tx, cardID, portal string) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE rfid_cards SET portal = ? WHERE card_id = ?`, portal, cardID)
	if err != nil {
		return fmt.Errorf("lock card: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO rfid_cards (card_id, status, portal)
			VALUES (?, 'released', ?)
			ON DUPLICATE KEY UPDATE portal = ?`,
			cardID, portal, portal,
		)
		if err != nil {
			return fmt.Errorf("create card: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM members WHERE card_id = ?`, cardID); err != nil {
		return fmt.Errorf("detach member: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE rfid_cards SET status = 'released' WHERE card_id = ?`, cardID); err != nil {
		return fmt.Errorf("mark released: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) DeleteTeamScore(ctx context.Context, teamID string) error {
	_, err := m.db.ExecContext(ctx, `
		DELETE FROM team_scores WHERE team_id = ?`, teamID)
	if err != nil {
		return fmt.Errorf("delete score: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) PurgeTeam(ctx context.Context, teamID string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM member_zone_visits
		WHERE member_id IN (SELECT id FROM members WHERE team_id = ?)`, teamID); err != nil {
		return fmt.Errorf("purge visits: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM redemptions WHERE team_id = ?`, teamID); err != nil {
		return fmt.Errorf("purge redemptions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM team_scores WHERE team_id = ?`, teamID); err != nil {
		return fmt.Errorf("purge score: %w", err)
	}
	return tx.Commit()
}

// LatestLabels scans the journal newest-first; the first row seen per card
// is its most recent label.
func (m *MySQLAdapter) LatestLabels(ctx context.Context, cards []string) (map[string]string, error) {
	if len(cards) == 0 {
		return map[string]string{}, nil
	}
	placeholders := strings.Repeat("?,", len(cards))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(cards))
	for i, c := range cards {
		args[i] = c
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT card_id, label FROM taps
		WHERE card_id IN (`+placeholders+`)
		ORDER BY tap_time DESC, id DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("query latest labels: %w", err)
	}
	defer rows.Close()

	latest := make(map[string]string, len(cards))
	for rows.Next() {
		var card, label string
		if err := rows.Scan(&card, &label); err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		if _, seen := latest[card]; !seen {
			latest[card] = label
		}
	}
	return latest, rows.Err()
}

// ensureTeamScore lazily creates the balance row at zero, capturing the team
// name from the registration when present.
func ensureTeamScore(ctx context.Context, tx *sql.Tx, teamID string) error {
	var name sql.NullString
	err := tx.QueryRowContext(ctx, `
		SELECT team_name FROM registrations WHERE id = ? LIMIT 1`, teamID,
	).Scan(&name)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("query team name: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT IGNORE INTO team_scores (team_id, team_name, total_points)
		VALUES (?, COALESCE(NULLIF(?, ''), CONCAT('TEAM-', ?)), 0)`,
		teamID, name.String, teamID,
	)
	if err != nil {
		return fmt.Errorf("ensure score row: %w", err)
	}
	return nil
}
