package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/venuekit/tapledger/internal/core/domain"
)

const (
	redisAddr     = "localhost:6379"
	ingestChannel = "taps:ingest"
	totalTaps     = 200
	senders       = 10
)

// tapgen floods the ingest channel with synthetic taps: zone visits, entry
// taps and exit taps across a handful of fake cards.
func main() {
	ctx := context.Background()

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	labels := []string{"CLUSTER1", "CLUSTER2", "CLUSTER3", "REGISTER", "EXITOUT"}
	portals := []string{"reader-1", "reader-2", "exitout"}

	var wg sync.WaitGroup
	start := time.Now()

	for s := 0; s < senders; s++ {
		wg.Add(1)
		go func(sender int) {
			defer wg.Done()
			for i := 0; i < totalTaps/senders; i++ {
				raw := domain.RawTap{
					TagID:  fmt.Sprintf("CARD-%08X", sender*1000+i),
					Reader: portals[i%len(portals)],
					Label:  labels[i%len(labels)],
				}
				payload, _ := json.Marshal(raw)
				if err := rdb.Publish(ctx, ingestChannel, payload).Err(); err != nil {
					log.Printf("sender %d: publish: %v", sender, err)
				}
			}
		}(s)
	}

	wg.Wait()
	elapsed := time.Since(start)

	fmt.Println("========== TAP GENERATOR ==========")
	fmt.Printf("Run ID:          %s\n", uuid.NewString())
	fmt.Printf("Taps published:  %d\n", totalTaps)
	fmt.Printf("Senders:         %d\n", senders)
	fmt.Printf("Duration:        %v\n", elapsed)
	fmt.Printf("Throughput:      %.0f taps/s\n", float64(totalTaps)/elapsed.Seconds())
	fmt.Println("===================================")
}
