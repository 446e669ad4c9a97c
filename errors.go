package merchant

import "github.com/pkg/errors"

var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrNotFound            = errors.New("not found")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrProviderRejected    = errors.New("provider rejected")
	ErrAuthTokenMissing    = errors.New("auth token missing")
	ErrPreconditionFailed  = errors.New("precondition failed")
	ErrAlreadyExists       = errors.New("already exists")
	ErrNotSupported        = errors.New("not supported")
)

// InvalidRequest wraps ErrInvalidRequest with a reason visible to the caller.
func InvalidRequest(reason string) error {
	return errors.Wrap(ErrInvalidRequest, reason)
}

// ErrorCode maps an error to the HTTP status the API reports for it.
func ErrorCode(err error) int {
	switch errors.Cause(err) {
	case nil:
		return 200
	case ErrInvalidRequest:
		return 400
	case ErrNotFound:
		return 404
	case ErrPreconditionFailed, ErrAlreadyExists:
		return 409
	case ErrProviderUnavailable:
		return 502
	case ErrNotSupported:
		return 501
	default:
		return 500
	}
}
