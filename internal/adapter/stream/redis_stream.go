package stream

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/venuekit/tapledger/internal/core/domain"
)

// RedisStream carries taps over Redis Pub/Sub: readers publish raw payloads
// on the ingest channel, and the engine republishes normalized events on the
// live channel for displays. The client reconnects on its own; that is this
// adapter's only recovery responsibility.
type RedisStream struct {
	client *redis.Client
	ingest string
	live   string
	buffer int
}

func NewRedisStream(client *redis.Client, ingestChannel, liveChannel string, buffer int) *RedisStream {
	return &RedisStream{
		client: client,
		ingest: ingestChannel,
		live:   liveChannel,
		buffer: buffer,
	}
}

// PublishTap republishes a normalized tap on the live channel.
func (r *RedisStream) PublishTap(ctx context.Context, ev domain.TapEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.live, payload).Err()
}

// Subscribe starts consuming the ingest channel and returns the decoded raw
// taps. Payloads that fail to decode are logged and dropped. The returned
// channel closes when ctx is cancelled.
func (r *RedisStream) Subscribe(ctx context.Context) <-chan domain.RawTap {
	pubsub := r.client.Subscribe(ctx, r.ingest)
	out := make(chan domain.RawTap, r.buffer)

	go func() {
		defer close(out)
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var raw domain.RawTap
				if err := json.Unmarshal([]byte(msg.Payload), &raw); err != nil {
					log.Printf("[ingest] bad payload on %s: %v", r.ingest, err)
					continue
				}
				out <- raw
			}
		}
	}()

	return out
}
