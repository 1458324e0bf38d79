package models

import "errors"

// Sentinel errors shared across the storage and dispatch layers. The HTTP
// frontend maps them to status codes; background workers log and absorb them.
var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned on a unique-constraint collision.
	ErrDuplicate = errors.New("already exists")
	// ErrInUse is returned when deletion is refused because references remain.
	ErrInUse = errors.New("still in use")
	// ErrForbidden is returned on a semantic rejection, such as renaming an
	// extension tag.
	ErrForbidden = errors.New("operation not allowed")
	// ErrWouldCycle is returned when a function declaration would make the
	// tag-flow graph cyclic.
	ErrWouldCycle = errors.New("would create a cycle in the tag pipeline")
)
