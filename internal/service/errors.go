// Package service holds the reservation engine: the hold, release and book
// transactions, the per-viewer seat views and the broadcasts that follow
// every successful mutation.
package service

import (
	"errors"
	"fmt"
)

// Errors returned by ReservationService.  Callers compare with errors.Is;
// the wrapped message carries the detail.  Any other error is an
// infrastructure failure and says nothing about the state of the seats.
var (
	// ErrValidation marks a malformed request.
	ErrValidation = errors.New("validation failed")
	// ErrConflict marks a seat that is unavailable right now.  The caller
	// may retry.
	ErrConflict = errors.New("conflict")
	// ErrNotFound marks a missing layout, a seat outside it, or a hold the
	// caller does not own.
	ErrNotFound = errors.New("not found")

	// ErrNotContiguous is returned by BookSeats before any store access.
	ErrNotContiguous = fmt.Errorf("%w: seats must be contiguous", ErrConflict)
)
