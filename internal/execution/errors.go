package execution

import "errors"

// Execution errors. Outcome.Err wraps exactly one of these.
var (
	// ErrExternalService: quote, build or submit call failed after retries.
	ErrExternalService = errors.New("external service failure")

	// ErrMissingField: an aggregator response lacked a required field.
	ErrMissingField = errors.New("missing expected response field")

	// ErrSigning: the unsigned transaction could not be signed.
	ErrSigning = errors.New("signing failure")

	// ErrAbandoned: the cycle context ended before the next stage started.
	ErrAbandoned = errors.New("cycle abandoned")
)
