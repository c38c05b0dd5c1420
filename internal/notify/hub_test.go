package notify

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/agentdesk/pkg/logging"
)

func TestHubDropsWhenSubscriberIsFull(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe("u-1")
	for i := 0; i < subscriberBuffer+5; i++ {
		require.NoError(t, hub.Publish(context.Background(), Notification{UserID: "u-1"}))
	}
	assert.Len(t, ch, subscriberBuffer)

	cancel()
	cancel()
	assert.Zero(t, hub.Subscribers("u-1"))
	assert.Zero(t, hub.deliver(Notification{UserID: "u-1"}))
}

func TestHubRoutesByUser(t *testing.T) {
	hub := NewHub()
	a, cancelA := hub.Subscribe("a")
	defer cancelA()
	b, cancelB := hub.Subscribe("b")
	defer cancelB()

	hub.deliver(Notification{ID: "n-1", UserID: "a"})
	assert.Len(t, a, 1)
	assert.Len(t, b, 0)
}

func TestRedisBroadcasterRelaysToHub(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	hub := NewHub()
	b := NewRedisBroadcaster(client, hub, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx, ready) }()

	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not ready")
	}

	ch, unsubscribe := hub.Subscribe("u-1")
	defer unsubscribe()

	require.NoError(t, b.Publish(ctx, Notification{ID: "n-1", UserID: "u-1", Type: TypeTest, Title: "hi"}))

	select {
	case n := <-ch:
		assert.Equal(t, "n-1", n.ID)
		assert.Equal(t, "hi", n.Title)
	case <-time.After(2 * time.Second):
		t.Fatal("notification was not relayed")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("broadcaster did not stop")
	}
}
