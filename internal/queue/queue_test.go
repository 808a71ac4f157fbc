package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "channel closed")
		return msg
	case <-time.After(3 * time.Second):
		t.Fatal("no message")
		return Message{}
	}
}

func TestInMemory(t *testing.T) {
	q := NewInMemory(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, q.Publish(ctx, Message{Type: "image.offload", Body: []byte(`{"field":"image"}`)}))
	assert.Error(t, q.Publish(ctx, Message{Type: "overflow"}))

	ch, err := q.Consume(ctx)
	require.NoError(t, err)
	msg := receive(t, ch)
	assert.Equal(t, "image.offload", msg.Type)
	assert.JSONEq(t, `{"field":"image"}`, string(msg.Body))

	cancel()
	for range ch {
	}
}

func TestRedisQueue(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	q := NewRedisQueue(client, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// bodies are opaque, separators included
	body := []byte(`a|b|c`)
	require.NoError(t, q.Publish(ctx, Message{Type: "image.offload", Body: body}))
	require.NoError(t, q.Publish(ctx, Message{Type: "second"}))

	ch, err := q.Consume(ctx)
	require.NoError(t, err)
	first := receive(t, ch)
	assert.Equal(t, "image.offload", first.Type)
	assert.Equal(t, body, first.Body)
	assert.Equal(t, "second", receive(t, ch).Type)
}
