package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"crime-scene-platform/internal/domain/model"
)

// Broker is the minimal durable-list contract the job queue is built on.
// The atomic head-of-source to tail-of-dest move in PopToProcessing is the
// correctness anchor: a payload is visible in exactly one of {source list,
// processing list, consumer's hand} at any instant.
type Broker interface {
	// Push appends payload to the tail of topic.
	Push(ctx context.Context, topic string, payload []byte) error
	// PopToProcessing blocks up to timeout for the head of topic and
	// atomically moves it to processing. Returns (nil, nil) on timeout;
	// timeout is the normal "no work" signal, not an error.
	PopToProcessing(ctx context.Context, topic, processing string, timeout time.Duration) ([]byte, error)
	// Remove deletes one occurrence of payload from topic, matching by
	// exact bytes. Returns the number of entries removed.
	Remove(ctx context.Context, topic string, payload []byte) (int64, error)
	// Swap atomically replaces one occurrence of prev on topic with next.
	// The queue uses it to stamp delivery metadata onto the in-flight
	// processing entry.
	Swap(ctx context.Context, topic string, prev, next []byte) error
	// MoveBack atomically removes payload from `from` and pushes it to `to`.
	MoveBack(ctx context.Context, from, to string, payload []byte) error
	Len(ctx context.Context, topic string) (int64, error)
	// List returns every payload currently on topic; order is unspecified.
	List(ctx context.Context, topic string) ([][]byte, error)
	Close() error
}

// JobMessage is the wire form of a job, distinct from the durable Job row.
// While in flight it is owned by the queue; a dequeue hands a copy to
// exactly one worker.
type JobMessage struct {
	JobID       uuid.UUID       `json:"job_id"`
	CaseID      uuid.UUID       `json:"case_id"`
	Type        model.JobType   `json:"type"`
	Input       json.RawMessage `json:"input"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
	Attempts    int             `json:"attempts"`
	LastAttempt *time.Time      `json:"last_attempt,omitempty"`

	// Raw holds the exact bytes of this delivery's processing-list entry
	// and acts as the delivery token for Ack/Nack. Carrying the bytes
	// instead of re-serializing the struct on every call keeps
	// value-matched removal immune to encoding drift.
	Raw []byte `json:"-"`
}

// JobQueue is the typed at-least-once delivery protocol on top of Broker.
type JobQueue interface {
	Enqueue(ctx context.Context, job *model.Job) error
	// Dequeue returns (nil, nil) when no work arrived within timeout.
	Dequeue(ctx context.Context, t model.JobType, timeout time.Duration) (*JobMessage, error)
	Ack(ctx context.Context, msg *JobMessage) error
	// Nack re-queues the message for another attempt, or dead-letters it
	// once attempts reach maxRetries.
	Nack(ctx context.Context, msg *JobMessage, maxRetries int) error
	// RecoverStale moves messages stuck on the processing topic longer than
	// the visibility timeout back to the main topic.
	RecoverStale(ctx context.Context, t model.JobType) (int, error)
	Len(ctx context.Context, t model.JobType) (int64, error)
	ProcessingLen(ctx context.Context, t model.JobType) (int64, error)
	DLQLen(ctx context.Context, t model.JobType) (int64, error)
	Close() error
}
