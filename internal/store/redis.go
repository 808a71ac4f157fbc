package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"classroom/internal/applog"
	"classroom/internal/recordstore"
)

// Redis wraps redis client.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to redis with short timeouts.
func NewRedis(addr string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{Client: client}
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

// Close closes the client.
func (r *Redis) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}

// RedisFeed carries record changes over a pub/sub channel so every process
// sharing the store sees every write.
type RedisFeed struct {
	client  *redis.Client
	channel string
}

// NewRedisFeed publishes and listens on channel.
func NewRedisFeed(client *redis.Client, channel string) *RedisFeed {
	if channel == "" {
		channel = "classroom:changes"
	}
	return &RedisFeed{client: client, channel: channel}
}

func (f *RedisFeed) Publish(ctx context.Context, c recordstore.Change) error {
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, f.channel, b).Err()
}

func (f *RedisFeed) Listen(ctx context.Context) (<-chan recordstore.Change, error) {
	ps := f.client.Subscribe(ctx, f.channel)
	// wait for the subscription to be confirmed so no publish is missed
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, err
	}
	out := make(chan recordstore.Change, 64)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var c recordstore.Change
				if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
					applog.Printf("redis feed: bad payload: %v", err)
					continue
				}
				select {
				case out <- c:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close is a no-op; the redis client is owned by the caller.
func (f *RedisFeed) Close() error { return nil }
