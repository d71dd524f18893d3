package queue

import "crime-scene-platform/internal/domain/model"

const (
	topicPrefix      = "jobs:"
	processingSuffix = ":processing"
	deadLetterSuffix = ":dlq"
)

// Topic returns the main queue topic for a job type, e.g. "jobs:reconstruction".
func Topic(t model.JobType) string { return topicPrefix + string(t) }

// ProcessingTopic holds in-flight messages awaiting Ack/Nack.
func ProcessingTopic(t model.JobType) string { return Topic(t) + processingSuffix }

// DeadLetterTopic holds messages that exhausted their retry budget.
func DeadLetterTopic(t model.JobType) string { return Topic(t) + deadLetterSuffix }
