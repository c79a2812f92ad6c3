package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	invalidationsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmgate_invalidations_published_total",
			Help: "Invalidation messages published, by namespace",
		},
		[]string{"namespace"},
	)

	invalidationsReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "llmgate_invalidations_received_total",
			Help: "Invalidation messages received from the bus",
		},
	)
)

// Message is one invalidation event: evict this id from this namespace.
type Message struct {
	Namespace string `json:"namespace"`
	ID        string `json:"id"`
}

// Bus fans invalidation events out to every replica over one Redis channel.
// Delivery is best-effort; the cache's TTL bounds the damage of a lost
// message.
type Bus struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger

	pubsub *redis.PubSub
	wg     sync.WaitGroup
}

func NewBus(redisURL, channel string, logger *zap.Logger) (*Bus, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cache bus URL: %w", err)
	}
	return &Bus{
		client:  redis.NewClient(opt),
		channel: channel,
		logger:  logger,
	}, nil
}

// Ping verifies the bus connection. Called at startup and by the readiness
// probe.
func (b *Bus) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cache bus unreachable: %w", err)
	}
	return nil
}

// Publish sends one invalidation event. Callers treat failure as a logging
// matter, never a request failure: the TTL still expires the stale entry.
func (b *Bus) Publish(ctx context.Context, namespace, id string) error {
	payload, err := json.Marshal(Message{Namespace: namespace, ID: id})
	if err != nil {
		return fmt.Errorf("failed to marshal invalidation: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish invalidation: %w", err)
	}
	invalidationsPublished.WithLabelValues(namespace).Inc()
	b.logger.Debug("Published cache invalidation",
		zap.String("namespace", namespace),
		zap.String("id", id))
	return nil
}

// Listen subscribes to the channel and calls handler for every well-formed
// message until Close. Malformed payloads are logged and skipped so one bad
// publisher cannot wedge the listener.
func (b *Bus) Listen(handler func(namespace, id string)) {
	b.pubsub = b.client.Subscribe(context.Background(), b.channel)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for msg := range b.pubsub.Channel() {
			var m Message
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				b.logger.Warn("Ignoring malformed invalidation payload",
					zap.String("payload", msg.Payload),
					zap.Error(err))
				continue
			}
			if m.Namespace == "" || m.ID == "" {
				b.logger.Warn("Ignoring incomplete invalidation payload",
					zap.String("payload", msg.Payload))
				continue
			}
			invalidationsReceived.Inc()
			handler(m.Namespace, m.ID)
		}
	}()
}

// Close unsubscribes, waits for the listener to drain, and releases the
// client.
func (b *Bus) Close() error {
	if b.pubsub != nil {
		if err := b.pubsub.Close(); err != nil {
			b.logger.Warn("Failed to close bus subscription", zap.Error(err))
		}
	}
	b.wg.Wait()
	return b.client.Close()
}
