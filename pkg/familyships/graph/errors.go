package graph

import "errors"

var (
	// ErrAlreadyLinked is returned when the exact (family, person) link of
	// the requested kind already exists.
	ErrAlreadyLinked = errors.New("already linked")

	// ErrWouldCreateCycle is returned when a new link would make a person
	// their own ancestor.
	ErrWouldCreateCycle = errors.New("link would create a cycle")
)
