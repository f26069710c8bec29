package storage

import "errors"

var (
	// ErrNotFound reports an absent record.
	ErrNotFound = errors.New("storage: record not found")

	// ErrConditionFailed reports a guarded write whose condition did not hold
	// against current state. Nothing was applied.
	ErrConditionFailed = errors.New("storage: condition failed")

	// ErrUnavailable reports a transport or backend failure. The outcome of
	// the attempted operation is unknown; callers must re-read state before
	// retrying a financial transaction.
	ErrUnavailable = errors.New("storage: backend unavailable")
)
