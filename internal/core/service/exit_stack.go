package service

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/venuekit/tapledger/internal/core/domain"
	"github.com/venuekit/tapledger/internal/port"
)

const finalizeTimeout = 5 * time.Second

// ExitStack buffers per-team exit taps until a bulk release. The buffer is
// process-memory only: a restart loses not-yet-released entries, which is an
// accepted tradeoff since each entry is a transient buffer, not a system of
// record.
type ExitStack struct {
	mu     sync.Mutex
	stacks map[string]map[string]struct{}

	db            port.DatabaseRepository
	occupancy     *OccupancyCounter
	releasePortal string
}

func NewExitStack(db port.DatabaseRepository, occupancy *OccupancyCounter, releasePortal string) *ExitStack {
	return &ExitStack{
		stacks:        make(map[string]map[string]struct{}),
		db:            db,
		occupancy:     occupancy,
		releasePortal: releasePortal,
	}
}

// Add buffers a card for its team. A card already buffered is reported as
// such with no further effect, so duplicate exit taps decrement occupancy
// exactly once. On a fresh insert the occupancy counter drops by one
// immediately; the whole-roster finalization check then runs asynchronously
// and best-effort.
func (s *ExitStack) Add(teamID, cardID string) domain.StackAdd {
	s.mu.Lock()
	teamStack, ok := s.stacks[teamID]
	if !ok {
		teamStack = make(map[string]struct{})
		s.stacks[teamID] = teamStack
	}
	if _, dup := teamStack[cardID]; dup {
		size := len(teamStack)
		s.mu.Unlock()
		log.Printf("[exitstack] card %s already buffered for team %s", cardID, teamID)
		return domain.StackAdd{TeamID: teamID, CardID: cardID, StackSize: size, AlreadyBuffered: true}
	}
	teamStack[cardID] = struct{}{}
	size := len(teamStack)
	s.mu.Unlock()

	crowd := s.occupancy.Decrement(1)
	log.Printf("[exitstack] buffered %s for team %s (stack %d, crowd %d)", cardID, teamID, size, crowd)

	go s.finalizeIfComplete(teamID)

	return domain.StackAdd{TeamID: teamID, CardID: cardID, StackSize: size}
}

// finalizeIfComplete deletes the team's score row once every roster card is
// buffered. The roster read is a snapshot against concurrently-mutating data;
// errors are logged and swallowed so they never roll back into the add.
func (s *ExitStack) finalizeIfComplete(teamID string) {
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	cards, err := s.db.TeamCards(ctx, teamID)
	if err != nil {
		log.Printf("[exitstack] finalize: roster lookup for team %s: %v", teamID, err)
		return
	}
	if len(cards) == 0 {
		return
	}

	s.mu.Lock()
	teamStack := s.stacks[teamID]
	complete := teamStack != nil
	for _, card := range cards {
		if _, ok := teamStack[card]; !ok {
			complete = false
			break
		}
	}
	s.mu.Unlock()

	if !complete {
		return
	}
	if err := s.db.DeleteTeamScore(ctx, teamID); err != nil {
		log.Printf("[exitstack] finalize: delete score for team %s: %v", teamID, err)
		return
	}
	log.Printf("[exitstack] team %s fully buffered, score row removed", teamID)
}

// Release flushes a team's buffer in one store transaction. Per-card
// failures are collected without aborting the rest; a transaction-level
// failure rolls back entirely, leaves the buffer intact and releases
// nothing. Occupancy is never re-adjusted here, it already changed at
// buffering time.
func (s *ExitStack) Release(ctx context.Context, teamID string) domain.ReleaseResult {
	s.mu.Lock()
	teamStack := s.stacks[teamID]
	cards := make([]string, 0, len(teamStack))
	for card := range teamStack {
		cards = append(cards, card)
	}
	s.mu.Unlock()
	sort.Strings(cards)

	if len(cards) == 0 {
		return domain.ReleaseResult{TeamID: teamID, Status: domain.ReleaseEmpty}
	}

	results, err := s.db.ReleaseCards(ctx, teamID, cards, s.releasePortal)
	if err != nil {
		log.Printf("[exitstack] release transaction for team %s: %v", teamID, err)
		failed := make([]domain.CardRelease, len(cards))
		for i, card := range cards {
			failed[i] = domain.CardRelease{CardID: card, Error: err.Error()}
		}
		return domain.ReleaseResult{
			TeamID: teamID,
			Status: domain.ReleaseFailed,
			Errors: len(cards),
			Cards:  failed,
		}
	}

	s.mu.Lock()
	delete(s.stacks, teamID)
	s.mu.Unlock()

	released, errored := 0, 0
	for _, r := range results {
		if r.Released {
			released++
		} else {
			errored++
		}
	}
	log.Printf("[exitstack] released %d cards (%d errors) for team %s", released, errored, teamID)

	return domain.ReleaseResult{
		TeamID:   teamID,
		Status:   domain.ReleaseCompleted,
		Released: released,
		Errors:   errored,
		Cards:    results,
	}
}

// Snapshot returns the buffered teams ordered lexicographically by team id,
// cards sorted within each team. Empty buffers are omitted.
func (s *ExitStack) Snapshot() []domain.TeamStack {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.TeamStack, 0, len(s.stacks))
	for teamID, teamStack := range s.stacks {
		if len(teamStack) == 0 {
			continue
		}
		cards := make([]string, 0, len(teamStack))
		for card := range teamStack {
			cards = append(cards, card)
		}
		sort.Strings(cards)
		out = append(out, domain.TeamStack{TeamID: teamID, CardCount: len(cards), Cards: cards})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TeamID < out[j].TeamID })
	return out
}

func (s *ExitStack) Stats() domain.StackStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsLocked()
}

func (s *ExitStack) statsLocked() domain.StackStats {
	stats := domain.StackStats{Teams: len(s.stacks)}
	for _, teamStack := range s.stacks {
		stats.Cards += len(teamStack)
	}
	return stats
}

// Clear discards all buffered state with no release side effects and returns
// the pre-clear stats. A "forget the buffer", not a "release everyone".
func (s *ExitStack) Clear() domain.StackStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := s.statsLocked()
	s.stacks = make(map[string]map[string]struct{})
	log.Printf("[exitstack] cleared buffer (%d teams, %d cards)", stats.Teams, stats.Cards)
	return stats
}
