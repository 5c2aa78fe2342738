package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/therealutkarshpriyadarshi/videosync/internal/config"
	"github.com/therealutkarshpriyadarshi/videosync/internal/logging"
	"github.com/therealutkarshpriyadarshi/videosync/internal/metrics"
	"github.com/therealutkarshpriyadarshi/videosync/pkg/models"
)

const (
	RefreshQueueName = "video_refresh"
	ExchangeName     = "videosync"
)

// Handler processes one refresh job. A returned error schedules a retry.
type Handler func(ctx context.Context, job *models.RefreshJob) error

// publisher is the part of an AMQP channel used to send messages
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Queue carries metadata refresh jobs between the API and the worker
type Queue struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	pub     publisher
	logger  *logging.Logger
	now     func() time.Time
}

// URL renders the AMQP connection URL for cfg
func URL(cfg config.QueueConfig) string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Vhost)
}

// New connects to RabbitMQ and declares the refresh, retry and dead letter topology
func New(cfg config.QueueConfig, logger *logging.Logger) (*Queue, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	conn, err := amqp.Dial(URL(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	q := &Queue{
		conn:    conn,
		channel: channel,
		pub:     channel,
		logger:  logger.WithComponent("queue"),
		now:     func() time.Time { return time.Now().UTC() },
	}

	if err := q.declare(); err != nil {
		q.Close()
		return nil, err
	}
	if err := q.setupDeadLetterQueue(); err != nil {
		q.Close()
		return nil, err
	}
	return q, nil
}

func (q *Queue) declare() error {
	err := q.channel.ExchangeDeclare(
		ExchangeName,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	_, err = q.channel.QueueDeclare(
		RefreshQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := q.channel.QueueBind(RefreshQueueName, RefreshQueueName, ExchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}
	return nil
}

// Close closes the queue connection
func (q *Queue) Close() error {
	if q.channel != nil {
		q.channel.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

// NewRefreshJob builds a first-attempt job for a video
func NewRefreshJob(videoID, ownerID string) *models.RefreshJob {
	return &models.RefreshJob{
		ID:          uuid.New().String(),
		VideoID:     videoID,
		OwnerID:     ownerID,
		RequestedAt: time.Now().UTC(),
	}
}

// PublishRefresh enqueues a refresh job
func (q *Queue) PublishRefresh(ctx context.Context, job *models.RefreshJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	err = q.pub.PublishWithContext(ctx,
		ExchangeName,
		RefreshQueueName,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    job.ID,
			Body:         body,
			Timestamp:    q.now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish job: %w", err)
	}

	metrics.RecordRefreshJob("enqueued", 0)
	q.logger.LogJobEvent(job.ID, "enqueued", "pending", map[string]interface{}{
		"video_id": job.VideoID,
		"attempt":  job.Attempt,
	})
	return nil
}

// ConsumeRefresh delivers refresh jobs to handler one at a time until ctx
// is cancelled or the channel closes
func (q *Queue) ConsumeRefresh(ctx context.Context, handler Handler) error {
	// One unacked job at a time per worker
	if err := q.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := q.channel.Consume(
		RefreshQueueName,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				q.handleDelivery(ctx, msg, handler)
			}
		}
	}()

	return nil
}

// handleDelivery runs handler for one message and settles it. Failed jobs
// move to the retry queue; the original message is acked once the retry is
// safely published and nacked with requeue otherwise.
func (q *Queue) handleDelivery(ctx context.Context, msg amqp.Delivery, handler Handler) {
	var job models.RefreshJob
	if err := json.Unmarshal(msg.Body, &job); err != nil || job.VideoID == "" {
		q.logger.Warn("Dropping undecodable refresh job")
		metrics.RecordError("queue", "decode")
		_ = msg.Nack(false, false)
		return
	}

	start := time.Now()
	err := handler(ctx, &job)
	duration := time.Since(start).Seconds()

	if err == nil {
		metrics.RecordRefreshJob("completed", duration)
		_ = msg.Ack(false)
		return
	}

	metrics.RecordRefreshJob("failed", duration)
	q.logger.WithJobID(job.ID).WithVideoID(job.VideoID).ErrorWithErr("Refresh job failed", err)

	if retryErr := q.PublishToRetryQueue(ctx, &job, err.Error()); retryErr != nil {
		q.logger.WithJobID(job.ID).ErrorWithErr("Failed to schedule retry", retryErr)
		_ = msg.Nack(false, true)
		return
	}
	_ = msg.Ack(false)
}

// GetQueueDepth returns the number of messages in the refresh queue
func (q *Queue) GetQueueDepth() (int, error) {
	info, err := q.channel.QueueInspect(RefreshQueueName)
	if err != nil {
		return 0, fmt.Errorf("failed to inspect queue: %w", err)
	}

	return info.Messages, nil
}
