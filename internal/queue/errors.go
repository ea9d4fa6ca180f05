package queue

// notFoundError signals an unknown request id.
type notFoundError struct{ id string }

func (e notFoundError) Error() string { return "request not found: " + e.id }

// ErrNotFound constructs a notFoundError.
func ErrNotFound(id string) error { return notFoundError{id: id} }

// IsNotFound reports whether err indicates an unknown request id.
func IsNotFound(err error) bool {
	_, ok := err.(notFoundError)
	return ok
}

// tooBusyError signals queue overflow for 429 mapping.
type tooBusyError struct{}

func (tooBusyError) Error() string { return "queue full" }

// ErrTooBusy constructs a tooBusyError.
func ErrTooBusy() error { return tooBusyError{} }

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool {
	_, ok := err.(tooBusyError)
	return ok
}

// conflictError signals a caller-supplied request id that is already in
// use, so the submission cannot be admitted.
type conflictError struct{ id string }

func (e conflictError) Error() string { return "request id already in use: " + e.id }

// ErrConflict constructs a conflictError.
func ErrConflict(id string) error { return conflictError{id: id} }

// IsConflict reports whether err indicates a duplicate request id.
func IsConflict(err error) bool {
	_, ok := err.(conflictError)
	return ok
}

// waitTimeoutError signals that WaitResult gave up before the request
// finished. Distinct from executionTimeoutError: the request may still
// complete.
type waitTimeoutError struct{ id string }

func (e waitTimeoutError) Error() string { return "timed out waiting for result of " + e.id }

// ErrWaitTimeout constructs a waitTimeoutError.
func ErrWaitTimeout(id string) error { return waitTimeoutError{id: id} }

// IsWaitTimeout reports whether err is a result-wait timeout.
func IsWaitTimeout(err error) bool {
	_, ok := err.(waitTimeoutError)
	return ok
}

// executionTimeoutError signals that the request's execution exceeded its
// budget (worker timeout or visibility timeout).
type executionTimeoutError struct{ msg string }

func (e executionTimeoutError) Error() string { return e.msg }

// ErrExecutionTimeout constructs an executionTimeoutError.
func ErrExecutionTimeout(msg string) error { return executionTimeoutError{msg: msg} }

// IsExecutionTimeout reports whether err indicates the execution budget
// was exceeded.
func IsExecutionTimeout(err error) bool {
	_, ok := err.(executionTimeoutError)
	return ok
}

// cancelledError marks user/system-initiated cancellation. Explicitly
// excluded from circuit-breaker accounting.
type cancelledError struct{ id string }

func (e cancelledError) Error() string { return "request cancelled: " + e.id }

// ErrCancelled constructs a cancelledError.
func ErrCancelled(id string) error { return cancelledError{id: id} }

// IsCancelled reports whether err indicates cancellation.
func IsCancelled(err error) bool {
	_, ok := err.(cancelledError)
	return ok
}

// degradedError signals rejection by an open circuit breaker.
type degradedError struct{}

func (degradedError) Error() string { return "service degraded, try again shortly" }

// ErrDegraded constructs a degradedError.
func ErrDegraded() error { return degradedError{} }

// IsDegraded reports whether err indicates circuit-breaker rejection.
func IsDegraded(err error) bool {
	_, ok := err.(degradedError)
	return ok
}

// shutdownError signals the queue was closed while the request was
// pending.
type shutdownError struct{}

func (shutdownError) Error() string { return "queue shut down" }

// ErrShutdown constructs a shutdownError.
func ErrShutdown() error { return shutdownError{} }

// IsShutdown reports whether err indicates queue shutdown.
func IsShutdown(err error) bool {
	_, ok := err.(shutdownError)
	return ok
}
