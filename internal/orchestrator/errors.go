package orchestrator

import "fmt"

// unknownResourceError signals a resource id absent from the active
// profile. This is a configuration error and is never retried.
type unknownResourceError struct{ id string }

func (e unknownResourceError) Error() string { return "unknown resource: " + e.id }

// ErrUnknownResource constructs an unknownResourceError.
func ErrUnknownResource(id string) error { return unknownResourceError{id: id} }

// IsUnknownResource reports whether err indicates a resource id missing
// from the active profile.
func IsUnknownResource(err error) bool {
	_, ok := err.(unknownResourceError)
	return ok
}

// insufficientCapacityError signals that eviction plus bounded waiting
// could not free enough memory for a load.
type insufficientCapacityError struct {
	id          string
	requiredMB  int
	availableMB int
}

func (e insufficientCapacityError) Error() string {
	return fmt.Sprintf("insufficient capacity for %s: need %d MB, %d MB available", e.id, e.requiredMB, e.availableMB)
}

// ErrInsufficientCapacity constructs an insufficientCapacityError.
func ErrInsufficientCapacity(id string, requiredMB, availableMB int) error {
	return insufficientCapacityError{id: id, requiredMB: requiredMB, availableMB: availableMB}
}

// IsInsufficientCapacity reports whether err indicates resource
// exhaustion after eviction.
func IsInsufficientCapacity(err error) bool {
	_, ok := err.(insufficientCapacityError)
	return ok
}
