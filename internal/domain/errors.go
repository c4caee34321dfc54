package domain

import "errors"

// Domain errors
var (
	ErrScanInProgress = errors.New("a scan is already in progress")
	ErrUnknownMetric  = errors.New("unknown metric")
	ErrInvalidRequest = errors.New("invalid request")
	ErrInternalError  = errors.New("internal server error")
)

// IsConflictError checks if an error should map to a conflict response
func IsConflictError(err error) bool {
	return errors.Is(err, ErrScanInProgress)
}
