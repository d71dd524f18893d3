package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid executor context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")

	// Job errors
	ErrUnsupportedJobType = errors.New("no worker registered for job type")
	ErrInvalidTransition  = errors.New("invalid job status transition")
	ErrJobNotCancelable   = errors.New("job is already in a terminal state")

	// Timeline errors
	ErrParentCommitNotFound = errors.New("parent commit not found in case")
	ErrDuplicateBranchName  = errors.New("branch name already exists for case")
	ErrBaseCommitNotFound   = errors.New("base commit not found in case")
	ErrSummaryTooLong       = errors.New("commit summary exceeds maximum length")
	ErrCommitChainCorrupt   = errors.New("commit parent chain is cyclic or broken")

	// Queue errors
	ErrBrokerUnavailable = errors.New("queue broker unavailable")
)
