package relay

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// PubSubClient is the part of the Redis client the broadcast backend needs.
type PubSubClient interface {
	Ping(ctx context.Context) error
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// PubSubBackend is the direct broadcast channel.
type PubSubBackend struct {
	client  PubSubClient
	channel string

	mu   sync.Mutex
	subs []*redis.PubSub
}

func NewPubSubBackend(client PubSubClient, channel string) *PubSubBackend {
	return &PubSubBackend{client: client, channel: channel}
}

func (b *PubSubBackend) Name() string { return "pubsub" }

func (b *PubSubBackend) Available(ctx context.Context) bool {
	return b.client.Ping(ctx) == nil
}

func (b *PubSubBackend) Publish(ctx context.Context, ev Event) error {
	payload, err := ev.Marshal()
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload)
}

func (b *PubSubBackend) Subscribe(ctx context.Context) (<-chan Event, error) {
	ps := b.client.Subscribe(ctx, b.channel)
	// wait for the subscription to be confirmed before reporting success
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, ps)
	b.mu.Unlock()

	out := make(chan Event, subscriberBuffer)
	msgs := ps.Channel()
	go func() {
		defer close(out)
		defer ps.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				ev, err := Unmarshal([]byte(msg.Payload))
				if err != nil {
					log.Printf("relay: dropping pubsub message: %v", err)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *PubSubBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ps := range b.subs {
		ps.Close()
	}
	b.subs = nil
	return nil
}

// StreamClient is the part of the Redis client the stream backend needs.
type StreamClient interface {
	Ping(ctx context.Context) error
	AppendStream(ctx context.Context, stream string, maxLen int64, values map[string]interface{}) (string, error)
	ReadStream(ctx context.Context, stream, lastID string, count int64, block time.Duration) ([]redis.XMessage, error)
	LastStreamID(ctx context.Context, stream string) (string, error)
}

// StreamBackend is the storage-event relay: every event is appended to a
// short capped stream and readers tail it from the position they joined at.
type StreamBackend struct {
	client StreamClient
	stream string
	maxLen int64
	wait   time.Duration

	done      chan struct{}
	closeOnce sync.Once
}

const streamPayloadField = "payload"

func NewStreamBackend(client StreamClient, stream string, maxLen int64, wait time.Duration) *StreamBackend {
	if maxLen <= 0 {
		maxLen = 100
	}
	if wait <= 0 {
		wait = time.Second
	}
	return &StreamBackend{client: client, stream: stream, maxLen: maxLen, wait: wait, done: make(chan struct{})}
}

func (b *StreamBackend) Name() string { return "stream" }

func (b *StreamBackend) Available(ctx context.Context) bool {
	return b.client.Ping(ctx) == nil
}

func (b *StreamBackend) Publish(ctx context.Context, ev Event) error {
	payload, err := ev.Marshal()
	if err != nil {
		return err
	}
	_, err = b.client.AppendStream(ctx, b.stream, b.maxLen, map[string]interface{}{
		streamPayloadField: string(payload),
	})
	return err
}

func (b *StreamBackend) Subscribe(ctx context.Context) (<-chan Event, error) {
	lastID, err := b.client.LastStreamID(ctx, b.stream)
	if err != nil {
		return nil, fmt.Errorf("failed to read stream position: %w", err)
	}

	out := make(chan Event, subscriberBuffer)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-b.done:
				return
			default:
			}

			msgs, err := b.client.ReadStream(ctx, b.stream, lastID, subscriberBuffer, b.wait)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("relay: stream read failed: %v", err)
				b.pause(ctx)
				continue
			}
			for _, msg := range msgs {
				lastID = msg.ID
				raw, _ := msg.Values[streamPayloadField].(string)
				ev, err := Unmarshal([]byte(raw))
				if err != nil {
					log.Printf("relay: dropping stream entry %s: %v", msg.ID, err)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *StreamBackend) pause(ctx context.Context) {
	t := time.NewTimer(b.wait)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	case <-b.done:
	}
}

func (b *StreamBackend) Close() error {
	b.closeOnce.Do(func() { close(b.done) })
	return nil
}
