package relay

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"conveniencia/internal/redis"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	c := redis.NewClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { c.Close() })
	return c
}

func TestEventRoundTrip(t *testing.T) {
	ev, err := NewEvent("origin-a", ItemsAdded, map[string]string{"comanda_id": "t1"})
	require.NoError(t, err)

	payload, err := ev.Marshal()
	require.NoError(t, err)

	got, err := Unmarshal(payload)
	require.NoError(t, err)
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, ItemsAdded, got.Action)
	assert.JSONEq(t, `{"comanda_id":"t1"}`, string(got.Data))

	_, err = Unmarshal([]byte(`{"type":"OTHER","id":"x"}`))
	assert.Error(t, err)
}

func TestLocalBusDeliversAcrossRelays(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewLocalBus()
	sender := New(10*time.Millisecond, bus)
	receiver := New(10*time.Millisecond, bus)

	var refreshes, own int32
	require.NoError(t, receiver.Listen(ctx, func(Event) { atomic.AddInt32(&refreshes, 1) }))
	require.NoError(t, sender.Listen(ctx, func(Event) { atomic.AddInt32(&own, 1) }))

	sender.Broadcast(ctx, TabCreated, map[string]string{"id": "t1"})

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&refreshes) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&own), "own events must not trigger a refresh")
}

func TestLocalBusHandleSeesOwnEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewLocalBus()
	r := New(0, bus)

	got := make(chan Event, 1)
	require.NoError(t, bus.Handle(ctx, func(ev Event) { got <- ev }))

	r.Broadcast(ctx, CatalogChanged, map[string]string{"id": "p1"})

	select {
	case ev := <-got:
		assert.Equal(t, CatalogChanged, ev.Action)
		assert.Equal(t, r.Origin(), ev.Origin)
	case <-time.After(time.Second):
		t.Fatal("event not delivered to the in-process handler")
	}
}

func TestDebounceCollapsesBursts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewLocalBus()
	sender := New(0, bus)
	receiver := New(50*time.Millisecond, bus)

	var refreshes int32
	require.NoError(t, receiver.Listen(ctx, func(Event) { atomic.AddInt32(&refreshes, 1) }))

	for i := 0; i < 5; i++ {
		sender.Broadcast(ctx, ItemsAdded, nil)
	}

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&refreshes) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&refreshes))
}

func TestRedisBackendsDeduplicate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rc := newRedis(t)
	newRelay := func() *Relay {
		return New(20*time.Millisecond,
			NewPubSubBackend(rc, "test:pedidos"),
			NewStreamBackend(rc, "test:pedidos:stream", 50, 20*time.Millisecond),
		)
	}
	sender, receiver := newRelay(), newRelay()
	defer receiver.Close()

	var refreshes int32
	var last atomic.Value
	require.NoError(t, receiver.Listen(ctx, func(ev Event) {
		atomic.AddInt32(&refreshes, 1)
		last.Store(ev.Action)
	}))

	sender.Broadcast(ctx, TabFinalized, map[string]string{"id": "t9"})

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&refreshes) >= 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&refreshes))
	assert.Equal(t, TabFinalized, last.Load())
}

func TestBroadcastSurvivesBackendFailure(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	rc := redis.NewClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1}))
	defer rc.Close()
	mr.Close()

	backend := NewPubSubBackend(rc, "test:down")
	assert.False(t, backend.Available(context.Background()))

	r := New(0, backend, NewLocalBus())
	assert.NotPanics(t, func() { r.Broadcast(context.Background(), TotalUpdated, nil) })
}
