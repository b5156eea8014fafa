package repository

import (
	"context"

	"github.com/iliyamo/showtime-chatbot/internal/model"
)

// ShowtimeStore is the record store shared by lookups and bookings.
//
// Find returns the records matching every non-empty field of the key,
// compared case-insensitively, in backing order.  An empty result is not an
// error.
//
// UpdateSeats stores a new seat count for the record identified by key.
// It is all-or-nothing, and a Find issued after it returns observes the new
// value.
type ShowtimeStore interface {
	Find(ctx context.Context, criteria model.ShowtimeKey) ([]model.Showtime, error)
	UpdateSeats(ctx context.Context, key model.ShowtimeKey, newCount int) error
	Close() error
}

// ConditionalUpdater is implemented by stores that can compare-and-swap
// the seat count in one statement, which keeps bookings safe across
// processes sharing the same table.
type ConditionalUpdater interface {
	UpdateSeatsIf(ctx context.Context, key model.ShowtimeKey, expected, newCount int) error
}
