package errors

import (
	stderrors "errors"

	"github.com/auctionhouse/marketplace/internal/storage"
)

// FromStore maps a storage error onto the service taxonomy. The message
// describes the operation that failed; the storage error stays in the chain.
func FromStore(err error, message string) *ServiceError {
	switch {
	case stderrors.Is(err, storage.ErrNotFound):
		return NotFound(message)
	case stderrors.Is(err, storage.ErrConditionFailed):
		return PreconditionFailed(message, err)
	case stderrors.Is(err, storage.ErrUnavailable):
		return StoreUnavailable(message, err)
	default:
		return Internal(message, err)
	}
}
