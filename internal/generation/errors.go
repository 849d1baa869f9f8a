package generation

import "errors"

// Common errors returned by compute adapters and the registry.
var (
	// ErrSubmissionFailed is returned when the external service could
	// not start the job.
	ErrSubmissionFailed = errors.New("job submission failed")

	// ErrJobNotFound is returned for an unknown external job identifier.
	ErrJobNotFound = errors.New("external job not found")

	// ErrTransientFailure is returned for failures worth retrying, such
	// as network errors or rate limiting by the external service.
	ErrTransientFailure = errors.New("transient compute failure")

	// ErrInvalidConfig is returned when adapter configuration is
	// missing or malformed.
	ErrInvalidConfig = errors.New("invalid adapter configuration")

	// ErrInvalidResponse is returned when the external service responds
	// with output that cannot be used as a result.
	ErrInvalidResponse = errors.New("invalid response from compute service")

	// ErrContentBlocked is returned when the external service refuses
	// the work on content policy grounds. Never retried.
	ErrContentBlocked = errors.New("content blocked by compute service")

	// ErrUnsupportedWorkType is returned by the registry when no
	// adapter is registered for a work type. Registrations happen at
	// startup, so this surfaces misconfiguration before first use.
	ErrUnsupportedWorkType = errors.New("no adapter registered for work type")
)
