package service

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/venuekit/tapledger/internal/core/domain"
)

func newTestStack(store *mockStore) (*ExitStack, *OccupancyCounter) {
	occupancy := NewOccupancyCounter()
	return NewExitStack(store, occupancy, "EXITOUT_STACK"), occupancy
}

func TestExitStack_DuplicateAddDecrementsOnce(t *testing.T) {
	store := newMockStore()
	store.addMember("team-1", "AA11", "m-1")
	store.addMember("team-1", "BB22", "m-2")
	stack, occupancy := newTestStack(store)
	occupancy.Increment(5)

	first := stack.Add("team-1", "AA11")
	if first.AlreadyBuffered {
		t.Fatal("first add reported as duplicate")
	}
	if occupancy.Read() != 4 {
		t.Errorf("expected occupancy 4, got %d", occupancy.Read())
	}

	dup := stack.Add("team-1", "AA11")
	if !dup.AlreadyBuffered {
		t.Error("expected duplicate to be reported")
	}
	if dup.StackSize != 1 {
		t.Errorf("expected stack size 1, got %d", dup.StackSize)
	}
	if occupancy.Read() != 4 {
		t.Errorf("duplicate add must not decrement again, got %d", occupancy.Read())
	}
}

func TestExitStack_FinalizeDeletesScoreWhenRosterBuffered(t *testing.T) {
	store := newMockStore()
	store.addMember("team-1", "AA11", "m-1")
	store.addMember("team-1", "BB22", "m-2")
	store.scores["team-1"] = 3
	stack, _ := newTestStack(store)

	stack.Add("team-1", "AA11")
	stack.Add("team-1", "BB22")

	// Finalization is asynchronous and best-effort.
	time.Sleep(100 * time.Millisecond)

	store.mu.Lock()
	deleted := append([]string(nil), store.deletedScores...)
	store.mu.Unlock()
	if len(deleted) == 0 {
		t.Error("expected score row deleted once whole roster buffered")
	}
}

func TestExitStack_NoFinalizeWhileRosterIncomplete(t *testing.T) {
	store := newMockStore()
	store.addMember("team-1", "AA11", "m-1")
	store.addMember("team-1", "BB22", "m-2")
	store.scores["team-1"] = 3
	stack, _ := newTestStack(store)

	stack.Add("team-1", "AA11")
	time.Sleep(100 * time.Millisecond)

	store.mu.Lock()
	deleted := len(store.deletedScores)
	store.mu.Unlock()
	if deleted != 0 {
		t.Error("score must not be deleted while a roster card is unbuffered")
	}
}

func TestExitStack_ReleaseEmpty(t *testing.T) {
	stack, _ := newTestStack(newMockStore())

	result := stack.Release(context.Background(), "team-1")
	if result.Status != domain.ReleaseEmpty {
		t.Errorf("expected %s, got %s", domain.ReleaseEmpty, result.Status)
	}
	if result.Released != 0 || result.Errors != 0 {
		t.Errorf("empty release must have zero effect: %+v", result)
	}
}

func TestExitStack_ReleasePartialFailure(t *testing.T) {
	store := newMockStore()
	store.addMember("team-1", "AA11", "m-1")
	store.addMember("team-1", "BB22", "m-2")
	store.releaseErrFor["BB22"] = "card locked"
	stack, occupancy := newTestStack(store)
	occupancy.Increment(2)

	stack.Add("team-1", "AA11")
	stack.Add("team-1", "BB22")
	crowdBefore := occupancy.Read()

	result := stack.Release(context.Background(), "team-1")
	if result.Status != domain.ReleaseCompleted {
		t.Fatalf("expected completed, got %s", result.Status)
	}
	if result.Released != 1 || result.Errors != 1 {
		t.Errorf("expected released=1 errors=1, got %d/%d", result.Released, result.Errors)
	}
	if len(stack.Snapshot()) != 0 {
		t.Error("buffer must be cleared after release")
	}
	if occupancy.Read() != crowdBefore {
		t.Errorf("release must not re-adjust occupancy: %d != %d", occupancy.Read(), crowdBefore)
	}
}

func TestExitStack_ReleaseTransactionFailureKeepsBuffer(t *testing.T) {
	store := newMockStore()
	store.addMember("team-1", "AA11", "m-1")
	store.releaseTxErr = errors.New("connection reset")
	stack, _ := newTestStack(store)

	stack.Add("team-1", "AA11")

	result := stack.Release(context.Background(), "team-1")
	if result.Status != domain.ReleaseFailed {
		t.Fatalf("expected %s, got %s", domain.ReleaseFailed, result.Status)
	}
	if result.Released != 0 || result.Errors != 1 {
		t.Errorf("expected released=0 errors=1, got %d/%d", result.Released, result.Errors)
	}

	snapshot := stack.Snapshot()
	if len(snapshot) != 1 || snapshot[0].CardCount != 1 {
		t.Errorf("buffer must survive a failed transaction: %+v", snapshot)
	}
}

func TestExitStack_SnapshotDeterministicOrder(t *testing.T) {
	store := newMockStore()
	store.addMember("team-b", "BB22", "m-1")
	store.addMember("team-a", "AA11", "m-2")
	store.addMember("team-a", "CC33", "m-3")
	stack, _ := newTestStack(store)

	stack.Add("team-b", "BB22")
	stack.Add("team-a", "CC33")
	stack.Add("team-a", "AA11")

	snapshot := stack.Snapshot()
	if len(snapshot) != 2 {
		t.Fatalf("expected 2 teams, got %d", len(snapshot))
	}
	if snapshot[0].TeamID != "team-a" || snapshot[1].TeamID != "team-b" {
		t.Errorf("teams not in lexicographic order: %+v", snapshot)
	}
	if !reflect.DeepEqual(snapshot[0].Cards, []string{"AA11", "CC33"}) {
		t.Errorf("cards not sorted: %v", snapshot[0].Cards)
	}
}

func TestExitStack_ClearReturnsPreClearStats(t *testing.T) {
	store := newMockStore()
	store.addMember("team-a", "AA11", "m-1")
	store.addMember("team-b", "BB22", "m-2")
	stack, occupancy := newTestStack(store)
	occupancy.Increment(2)

	stack.Add("team-a", "AA11")
	stack.Add("team-b", "BB22")

	stats := stack.Clear()
	if stats.Teams != 2 || stats.Cards != 2 {
		t.Errorf("expected pre-clear stats 2/2, got %+v", stats)
	}
	if len(stack.Snapshot()) != 0 {
		t.Error("expected empty snapshot after clear")
	}
	if after := stack.Stats(); after.Teams != 0 || after.Cards != 0 {
		t.Errorf("expected empty stats after clear, got %+v", after)
	}
	// Clear forgets the buffer; it never releases or re-adjusts occupancy.
	if occupancy.Read() != 0 {
		t.Errorf("expected occupancy unchanged at 0, got %d", occupancy.Read())
	}
}
