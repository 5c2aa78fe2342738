package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/therealutkarshpriyadarshi/videosync/internal/logging"
	"github.com/therealutkarshpriyadarshi/videosync/internal/metrics"
	"github.com/therealutkarshpriyadarshi/videosync/pkg/models"
)

const (
	redisTransport = "redis"
	channelPrefix  = "videosync:changes:"
)

// Channel returns the pub/sub channel carrying events for table
func Channel(table string) string {
	return channelPrefix + table
}

// Redis is a change feed over Redis pub/sub. Events are JSON encoded
// ChangeEvents; every API replica and client sharing the Redis instance
// sees every commit.
type Redis struct {
	client *redis.Client
	logger *logging.Logger
}

// NewRedis creates a feed on an existing client. The client is not closed by the feed.
func NewRedis(client *redis.Client, logger *logging.Logger) *Redis {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Redis{
		client: client,
		logger: logger.WithComponent("feed").WithField("transport", redisTransport),
	}
}

// Publish encodes event and publishes it on the table's channel
func (r *Redis) Publish(ctx context.Context, event models.ChangeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		metrics.RecordFeedPublish(redisTransport, string(event.Kind), err)
		return fmt.Errorf("failed to encode change event: %w", err)
	}

	err = r.client.Publish(ctx, Channel(event.Table), payload).Err()
	metrics.RecordFeedPublish(redisTransport, string(event.Kind), err)
	if err != nil {
		return fmt.Errorf("failed to publish change event: %w", err)
	}

	r.logger.LogFeedEvent("publish", string(event.Kind), event.Table, event.RecordID())
	return nil
}

// Subscribe opens a pub/sub subscription on table's channel. It returns once
// Redis has confirmed the subscription, so no commit published afterwards is missed.
func (r *Redis) Subscribe(ctx context.Context, table string, handler Handler) (Subscription, error) {
	pubsub := r.client.Subscribe(ctx, Channel(table))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", table, err)
	}

	sub := &redisSubscription{
		pubsub:  pubsub,
		handler: handler,
		logger:  r.logger.WithField("table", table),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	metrics.FeedSubscriptionsActive.WithLabelValues(redisTransport).Inc()
	go sub.run(pubsub.Channel())

	sub.logger.Debug("Subscription opened")
	return sub, nil
}

type redisSubscription struct {
	pubsub  *redis.PubSub
	handler Handler
	logger  *logging.Logger

	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
	err     error
}

func (s *redisSubscription) run(messages <-chan *redis.Message) {
	defer close(s.stopped)

	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}

			var event models.ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				s.logger.WarnWithErr("Dropping undecodable change event", err)
				metrics.RecordError("feed", "decode")
				continue
			}

			select {
			case <-s.done:
				return
			default:
			}

			metrics.RecordFeedDelivery(redisTransport, string(event.Kind))
			s.logger.LogFeedEvent("deliver", string(event.Kind), event.Table, event.RecordID())
			s.handler(event)
		}
	}
}

// Unsubscribe closes the pub/sub connection and waits for an in-flight
// handler to return. It must not be called from inside the handler.
func (s *redisSubscription) Unsubscribe() error {
	s.once.Do(func() {
		close(s.done)
		s.err = s.pubsub.Close()
		metrics.FeedSubscriptionsActive.WithLabelValues(redisTransport).Dec()
	})
	<-s.stopped
	return s.err
}
