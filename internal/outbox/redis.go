package outbox

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisBroker implements Broker on a Redis Stream via XADD.
type RedisBroker struct {
	client *redis.Client
}

// NewRedisBroker creates a broker with its own pooled client.
func NewRedisBroker(addr, password string, db int) *RedisBroker {
	return &RedisBroker{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

// NewRedisBrokerFromClient wraps an externally owned client. Close still
// closes the client; callers sharing a client should not call Close here.
func NewRedisBrokerFromClient(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

// Append XADDs one entry with a broker-assigned ("*") sequence id and
// returns the assigned id.
func (b *RedisBroker) Append(ctx context.Context, stream string, values map[string]any) (string, error) {
	return b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		ID:     "*",
		Values: values,
	}).Result()
}

// Close releases the underlying client and its connection pool.
func (b *RedisBroker) Close() error {
	return b.client.Close()
}
