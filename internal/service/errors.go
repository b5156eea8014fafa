package service

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/iliyamo/showtime-chatbot/internal/model"
)

// Sentinel errors returned by BookingService.Book.  Use errors.Is to test
// for them; the typed errors below carry the details.
var (
	ErrInvalidTickets    = errors.New("ticket count must be a positive integer")
	ErrIncompleteKey     = errors.New("showtime key needs movie, theater, date and time")
	ErrShowtimeNotFound  = errors.New("showtime not found")
	ErrAmbiguousShowtime = errors.New("ambiguous showtime")
	ErrInsufficientSeats = errors.New("insufficient seats")
	ErrPersistence       = errors.New("booking could not be saved")
)

// AmbiguousShowtimeError lists the records a booking key matched.
type AmbiguousShowtimeError struct {
	Candidates []model.Showtime
}

func (e *AmbiguousShowtimeError) Error() string {
	return fmt.Sprintf("ambiguous showtime: %d candidates", len(e.Candidates))
}

func (e *AmbiguousShowtimeError) Is(target error) bool { return target == ErrAmbiguousShowtime }

// InsufficientSeatsError reports how many seats were left.
type InsufficientSeatsError struct {
	Available int
	Requested int
}

func (e *InsufficientSeatsError) Error() string {
	return fmt.Sprintf("insufficient seats: %d requested, %d available", e.Requested, e.Available)
}

func (e *InsufficientSeatsError) Is(target error) bool { return target == ErrInsufficientSeats }

// PersistenceError wraps a store failure.  The seat count is unchanged
// when this is returned.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string { return "booking could not be saved: " + e.Err.Error() }

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }
