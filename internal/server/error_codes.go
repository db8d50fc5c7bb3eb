package server

const (
	// Validation (1xxx)
	ErrCodeInvalidArgument   = 1000
	ErrCodeInvalidJSON       = 1001
	ErrCodeRequestTooLarge   = 1002
	ErrCodeInvalidQuery      = 1003
	ErrCodeInvalidID         = 1004
	ErrCodeMissingRequired   = 1009
	ErrCodeInvalidExpiry     = 1010
	ErrCodeInvalidSourceURL  = 1015
	ErrCodeInvalidContent    = 1016
	ErrCodeConflictingSource = 1017

	// Domain state (2xxx)
	ErrCodeBlobNotFound = 2001

	// Auth & limits (3xxx)
	ErrCodeUnauthorized      = 3001
	ErrCodeForbidden         = 3002
	ErrCodeResourceExhausted = 3003
	ErrCodeCapacityExceeded  = 3004

	// Internal/system (4xxx)
	ErrCodeInternal            = 4001
	ErrCodeStoreFailure        = 4002
	ErrCodeNotImplemented      = 4005
	ErrCodeUpstreamFetchFailed = 4006
	ErrCodeContentStoreFailure = 4007
)

func defaultErrorCodeByStatus(status int) int {
	switch status {
	case 400:
		return ErrCodeInvalidArgument
	case 401:
		return ErrCodeUnauthorized
	case 403:
		return ErrCodeForbidden
	case 404:
		return ErrCodeBlobNotFound
	case 413:
		return ErrCodeCapacityExceeded
	case 429:
		return ErrCodeResourceExhausted
	case 500:
		return ErrCodeInternal
	case 501:
		return ErrCodeNotImplemented
	case 502:
		return ErrCodeUpstreamFetchFailed
	default:
		return 0
	}
}
