package worker

import (
	"context"
	"errors"

	"crime-scene-platform/internal/domain/model"
	qport "crime-scene-platform/internal/domain/ports/queue"
	"crime-scene-platform/internal/usecase"
)

// ProgressFunc reports the completed share of the running job in percent.
// Reports are advisory; the stored value never decreases and completion is
// recorded separately.
type ProgressFunc func(percent int)

// NoProgress discards progress reports.
func NoProgress(int) {}

// Worker processes one job type. Implementations are thin: decode the typed
// input, delegate to the processing backend, shape the result commit,
// reporting stage progress along the way.
type Worker interface {
	Type() model.JobType
	Process(ctx context.Context, msg *qport.JobMessage, report ProgressFunc) (*usecase.JobResult, error)
}

// FatalError marks a processing failure that no retry can fix (invalid
// input, unsupported payload). The manager dead-letters these immediately
// instead of burning the retry budget.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return "fatal: " + e.Err.Error() }

func (e *FatalError) Unwrap() error { return e.Err }

// Fatal wraps err as non-retryable.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsFatal reports whether err carries a FatalError anywhere in its chain.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
