package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/therealutkarshpriyadarshi/videosync/pkg/models"
)

const (
	DeadLetterQueueName    = "video_refresh_dlq"
	DeadLetterExchangeName = "videosync_dlq"
	RetryQueueName         = "video_refresh_retry"
	MaxAttempts            = 5
)

// setupDeadLetterQueue declares the retry queue, whose expired messages
// return to the refresh queue, and the dead letter queue for exhausted jobs
func (q *Queue) setupDeadLetterQueue() error {
	err := q.channel.ExchangeDeclare(
		DeadLetterExchangeName,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare DLQ exchange: %w", err)
	}

	if _, err := q.channel.QueueDeclare(DeadLetterQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare DLQ: %w", err)
	}

	if err := q.channel.QueueBind(DeadLetterQueueName, DeadLetterQueueName, DeadLetterExchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind DLQ: %w", err)
	}

	retryArgs := amqp.Table{
		"x-dead-letter-exchange":    ExchangeName,
		"x-dead-letter-routing-key": RefreshQueueName,
	}
	if _, err := q.channel.QueueDeclare(RetryQueueName, true, false, false, false, retryArgs); err != nil {
		return fmt.Errorf("failed to declare retry queue: %w", err)
	}

	q.logger.Debug("Dead letter queue infrastructure set up")
	return nil
}

// PublishToRetryQueue schedules job for another attempt after a backoff.
// Jobs that have used all attempts go to the dead letter queue instead.
func (q *Queue) PublishToRetryQueue(ctx context.Context, job *models.RefreshJob, reason string) error {
	if job.Attempt+1 >= MaxAttempts {
		return q.PublishToDeadLetterQueue(ctx, job, "max retries exceeded: "+reason)
	}

	retry := *job
	retry.Attempt = job.Attempt + 1
	body, err := json.Marshal(&retry)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	delay := calculateBackoffDelay(job.Attempt)

	err = q.pub.PublishWithContext(ctx,
		"",
		RetryQueueName,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    retry.ID,
			Body:         body,
			Timestamp:    q.now(),
			Headers:      amqp.Table{"x-retry-count": int32(retry.Attempt)},
			Expiration:   fmt.Sprintf("%d", delay.Milliseconds()),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish to retry queue: %w", err)
	}

	q.logger.LogJobEvent(job.ID, "retry_scheduled", "pending", map[string]interface{}{
		"attempt": retry.Attempt,
		"delay":   delay.String(),
	})
	return nil
}

// PublishToDeadLetterQueue parks a job that cannot be processed
func (q *Queue) PublishToDeadLetterQueue(ctx context.Context, job *models.RefreshJob, reason string) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	err = q.pub.PublishWithContext(ctx,
		DeadLetterExchangeName,
		DeadLetterQueueName,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    job.ID,
			Body:         body,
			Timestamp:    q.now(),
			Headers: amqp.Table{
				"x-failure-reason": reason,
				"x-failed-at":      q.now().Format(time.RFC3339),
			},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish to DLQ: %w", err)
	}

	q.logger.LogJobEvent(job.ID, "dead_lettered", "failed", map[string]interface{}{"reason": reason})
	return nil
}

// GetDLQDepth returns the number of messages in the dead letter queue
func (q *Queue) GetDLQDepth() (int, error) {
	info, err := q.channel.QueueInspect(DeadLetterQueueName)
	if err != nil {
		return 0, fmt.Errorf("failed to inspect DLQ: %w", err)
	}

	return info.Messages, nil
}

// calculateBackoffDelay doubles from 30s per attempt, capped at 30 minutes
func calculateBackoffDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 10 {
		attempt = 10
	}
	delay := 30 * time.Second * time.Duration(1<<attempt)
	if delay > 30*time.Minute {
		delay = 30 * time.Minute
	}
	return delay
}
