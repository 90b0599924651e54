package tests

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/venuekit/tapledger/internal/adapter/storage"
	"github.com/venuekit/tapledger/internal/adapter/stream"
	"github.com/venuekit/tapledger/internal/core/domain"
	"github.com/venuekit/tapledger/internal/core/service"
)

type testEnv struct {
	redis   *redis.Client
	mysql   *sql.DB
	db      *storage.MySQLAdapter
	cleanup func()
}

func setupTestEnv(t *testing.T) *testEnv {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		mysqlDSN = "root:root@tcp(localhost:3306)/tapledger?parseTime=true"
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	return &testEnv{
		redis: rdb,
		mysql: db,
		db:    storage.NewMySQLAdapter(db),
		cleanup: func() {
			rdb.Close()
			db.Close()
		},
	}
}

func (e *testEnv) seedTeam(t *testing.T, teamID string, cards map[string]string) {
	ctx := context.Background()
	if _, err := e.mysql.ExecContext(ctx, `
		INSERT INTO registrations (id, team_name) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE team_name = team_name`, teamID, "Team "+teamID); err != nil {
		t.Fatalf("seed registration: %v", err)
	}
	for memberID, cardID := range cards {
		if _, err := e.mysql.ExecContext(ctx, `
			INSERT INTO members (id, team_id, card_id) VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE card_id = card_id`, memberID, teamID, cardID); err != nil {
			t.Fatalf("seed member: %v", err)
		}
	}
	t.Cleanup(func() {
		e.mysql.ExecContext(ctx, `DELETE FROM member_zone_visits WHERE member_id IN (SELECT id FROM members WHERE team_id = ?)`, teamID)
		e.mysql.ExecContext(ctx, `DELETE FROM redemptions WHERE team_id = ?`, teamID)
		e.mysql.ExecContext(ctx, `DELETE FROM team_scores WHERE team_id = ?`, teamID)
		for _, cardID := range cards {
			e.mysql.ExecContext(ctx, `DELETE FROM taps WHERE card_id = ?`, cardID)
			e.mysql.ExecContext(ctx, `DELETE FROM rfid_cards WHERE card_id = ?`, cardID)
		}
		e.mysql.ExecContext(ctx, `DELETE FROM members WHERE team_id = ?`, teamID)
		e.mysql.ExecContext(ctx, `DELETE FROM registrations WHERE id = ?`, teamID)
	})
}

func TestIntegration_TapPipeline(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	teamID := "it-" + uuid.NewString()[:8]
	cardA := "IT-CARD-A-" + uuid.NewString()[:8]
	cardB := "IT-CARD-B-" + uuid.NewString()[:8]
	env.seedTeam(t, teamID, map[string]string{
		"it-m1-" + teamID: cardA,
		"it-m2-" + teamID: cardB,
	})

	ingest := "taps:it:" + teamID
	live := "taps:it:live:" + teamID
	redisStream := stream.NewRedisStream(env.redis, ingest, live, 64)
	svc := service.NewTapService(env.db, redisStream, service.DefaultRules())

	taps := redisStream.Subscribe(ctx)
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for raw := range taps {
				tapCtx, tapCancel := context.WithTimeout(context.Background(), 5*time.Second)
				svc.ProcessTap(tapCtx, raw)
				tapCancel()
			}
		}()
	}
	time.Sleep(100 * time.Millisecond)

	publish := func(raw domain.RawTap) {
		payload, _ := json.Marshal(raw)
		if err := env.redis.Publish(ctx, ingest, payload).Err(); err != nil {
			t.Fatalf("publish failed: %v", err)
		}
	}

	// Entry, two zone visits (one duplicated), then both cards exit.
	publish(domain.RawTap{TagID: cardA, Reader: "reader-1", Label: "REGISTER"})
	publish(domain.RawTap{TagID: cardB, Reader: "reader-1", Label: "REGISTER"})
	publish(domain.RawTap{TagID: cardA, Reader: "reader-2", Label: "CLUSTER1"})
	publish(domain.RawTap{TagID: cardA, Reader: "reader-2", Label: "CLUSTER1"})
	publish(domain.RawTap{TagID: cardB, Reader: "reader-3", Label: "CLUSTER2"})
	publish(domain.RawTap{TagID: cardA, Reader: "gate-4", Label: "EXITOUT"})
	publish(domain.RawTap{TagID: cardB, Reader: "exitout", Label: "REGISTER"}) // rewritten to EXITOUT

	// Let the workers drain.
	time.Sleep(500 * time.Millisecond)

	score, err := svc.TeamScore(ctx, teamID)
	if err != nil {
		t.Fatalf("score read failed: %v", err)
	}
	if score != 2 {
		t.Errorf("expected 2 first-visit awards, got %d", score)
	}

	if svc.Occupancy() != 0 {
		t.Errorf("expected occupancy 0 after two entries and two exits, got %d", svc.Occupancy())
	}

	snapshot := svc.StackSnapshot()
	if len(snapshot) != 1 || snapshot[0].CardCount != 2 {
		t.Fatalf("expected both cards buffered, got %+v", snapshot)
	}

	release := svc.ReleaseTeam(ctx, teamID)
	if release.Status != domain.ReleaseCompleted || release.Released != 2 {
		t.Fatalf("expected 2 released, got %+v", release)
	}
	if stats := svc.StackStats(); stats.Cards != 0 {
		t.Errorf("expected empty stack after release, got %+v", stats)
	}

	// Released cards are off the roster.
	if team, _ := env.db.TeamIDForCard(ctx, cardA); team != "" {
		t.Errorf("card %s still assigned to %s", cardA, team)
	}

	cancel()
	wg.Wait()
}

func TestIntegration_RedeemSerializedOnBalance(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	teamID := "it-" + uuid.NewString()[:8]
	card := "IT-CARD-" + uuid.NewString()[:8]
	memberID := "it-m-" + teamID
	env.seedTeam(t, teamID, map[string]string{memberID: card})

	// Seed a balance of 5.
	if _, err := env.db.ApplyVisit(ctx, domain.VisitAttempt{
		MemberID: memberID, TeamID: teamID, ZoneLabel: "CLUSTER1",
		FirstVisit: 5, AwardOnlyFirst: true,
	}); err != nil {
		t.Fatalf("seed visit failed: %v", err)
	}

	// Two concurrent spends of 3; only one can afford.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = env.db.Redeem(ctx, domain.RedemptionRecord{
				ID: uuid.NewString(), TeamID: teamID, ZoneLabel: "CLUSTER1",
				PointsSpent: 3, RedeemedBy: "race", RedeemedAt: time.Now(),
			})
		}(i)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			failures++
		}
	}
	if failures != 1 {
		t.Errorf("expected exactly one rejected spend, got %d failures", failures)
	}

	score, _ := env.db.TeamScore(ctx, teamID)
	if score != 2 {
		t.Errorf("expected balance 2 after one spend, got %d", score)
	}
}
