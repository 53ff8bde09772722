package jobs

import "errors"

var (
	ErrInvalidJobType      = errors.New("invalid job type")
	ErrInvalidJobPayload   = errors.New("invalid job payload")
	ErrPayloadTypeMismatch = errors.New("payload type mismatch for job type")

	// ErrNoJob means a dequeue timed out with nothing to run.
	ErrNoJob = errors.New("no job available")
)

// IsPermanent reports whether retrying the job can never succeed.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrInvalidJobType) ||
		errors.Is(err, ErrInvalidJobPayload) ||
		errors.Is(err, ErrPayloadTypeMismatch)
}
