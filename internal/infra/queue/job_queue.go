package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"crime-scene-platform/internal/domain/model"
	qport "crime-scene-platform/internal/domain/ports/queue"
	"crime-scene-platform/internal/infra/metrics"
)

var _ qport.JobQueue = (*JobQueue)(nil)

// JobQueue layers the typed at-least-once protocol over a Broker. Dequeue
// stamps the delivery onto the processing entry and hands the message those
// exact bytes as its delivery token, so Ack and Nack remove by value without
// re-deriving the serialized form.
type JobQueue struct {
	broker            qport.Broker
	visibilityTimeout time.Duration
	log               *zerolog.Logger
}

func NewJobQueue(broker qport.Broker, visibilityTimeout time.Duration, log *zerolog.Logger) *JobQueue {
	if visibilityTimeout <= 0 {
		visibilityTimeout = 5 * time.Minute
	}
	return &JobQueue{broker: broker, visibilityTimeout: visibilityTimeout, log: log}
}

func (q *JobQueue) Enqueue(ctx context.Context, job *model.Job) error {
	msg := qport.JobMessage{
		JobID:      job.ID,
		CaseID:     job.CaseID,
		Type:       job.Type,
		Input:      job.Input,
		EnqueuedAt: time.Now().UTC(),
		Attempts:   job.RetryCount,
	}
	data, err := json.Marshal(&msg)
	if err != nil {
		return fmt.Errorf("marshal job message: %w", err)
	}
	return q.broker.Push(ctx, Topic(job.Type), data)
}

func (q *JobQueue) Dequeue(ctx context.Context, t model.JobType, timeout time.Duration) (*qport.JobMessage, error) {
	raw, err := q.broker.PopToProcessing(ctx, Topic(t), ProcessingTopic(t), timeout)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	var msg qport.JobMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		// Poison payload: nothing can process it, park it in the DLQ so the
		// processing topic does not grow without bound.
		if rmErr := q.moveRawToDLQ(ctx, t, raw); rmErr != nil {
			q.log.Error().Err(rmErr).Str("type", string(t)).Msg("failed to dead-letter unparsable message")
		}
		return nil, fmt.Errorf("unmarshal job message: %w", err)
	}
	msg.Attempts++
	now := time.Now().UTC()
	msg.LastAttempt = &now

	// The processing entry must carry the delivery stamp, otherwise the
	// stale sweep would measure queue-wait time as processing time and
	// reclaim a fresh delivery that merely sat in the main queue too long.
	stamped, err := json.Marshal(&msg)
	if err != nil {
		return nil, fmt.Errorf("marshal job message: %w", err)
	}
	if err := q.broker.Swap(ctx, ProcessingTopic(t), raw, stamped); err != nil {
		// Undelivered; the pre-stamp entry stays on the processing topic and
		// the sweep reclaims it via the enqueue-time fallback.
		return nil, err
	}
	msg.Raw = stamped
	return &msg, nil
}

func (q *JobQueue) Ack(ctx context.Context, msg *qport.JobMessage) error {
	n, err := q.broker.Remove(ctx, ProcessingTopic(msg.Type), msg.Raw)
	if err != nil {
		return err
	}
	if n == 0 {
		// The recovery sweep reclaimed this delivery first; the message will
		// be redelivered and the consumer's idempotency guard absorbs it.
		q.log.Warn().Str("job_id", msg.JobID.String()).Msg("ack found no in-flight entry")
	}
	return nil
}

func (q *JobQueue) Nack(ctx context.Context, msg *qport.JobMessage, maxRetries int) error {
	if _, err := q.broker.Remove(ctx, ProcessingTopic(msg.Type), msg.Raw); err != nil {
		return err
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal job message: %w", err)
	}

	if msg.Attempts >= maxRetries {
		metrics.IncDeadLettered(string(msg.Type))
		return q.broker.Push(ctx, DeadLetterTopic(msg.Type), data)
	}

	// Re-queued at the tail: a failed job loses its original position.
	metrics.IncJobRetry(string(msg.Type))
	return q.broker.Push(ctx, Topic(msg.Type), data)
}

// RecoverStale sweeps the processing topic and moves every message whose
// last delivery is older than the visibility timeout back to the main topic.
// A message that never recorded a delivery (worker died between the broker
// move and the attempt stamp) falls back to its enqueue time.
func (q *JobQueue) RecoverStale(ctx context.Context, t model.JobType) (int, error) {
	entries, err := q.broker.List(ctx, ProcessingTopic(t))
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().UTC().Add(-q.visibilityTimeout)
	recovered := 0
	for _, raw := range entries {
		var msg qport.JobMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		ref := msg.EnqueuedAt
		if msg.LastAttempt != nil {
			ref = *msg.LastAttempt
		}
		if !ref.Before(cutoff) {
			continue
		}
		if err := q.broker.MoveBack(ctx, ProcessingTopic(t), Topic(t), raw); err != nil {
			q.log.Error().Err(err).Str("type", string(t)).Msg("stale recovery move failed")
			continue
		}
		recovered++
	}
	if recovered > 0 {
		metrics.AddStaleRecovered(string(t), recovered)
	}
	return recovered, nil
}

func (q *JobQueue) Len(ctx context.Context, t model.JobType) (int64, error) {
	return q.broker.Len(ctx, Topic(t))
}

func (q *JobQueue) ProcessingLen(ctx context.Context, t model.JobType) (int64, error) {
	return q.broker.Len(ctx, ProcessingTopic(t))
}

func (q *JobQueue) DLQLen(ctx context.Context, t model.JobType) (int64, error) {
	return q.broker.Len(ctx, DeadLetterTopic(t))
}

func (q *JobQueue) Close() error { return q.broker.Close() }

func (q *JobQueue) moveRawToDLQ(ctx context.Context, t model.JobType, raw []byte) error {
	return q.broker.MoveBack(ctx, ProcessingTopic(t), DeadLetterTopic(t), raw)
}
