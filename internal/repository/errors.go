// Package repository holds the showtime record store and its file and
// database backends.
package repository

import "github.com/cockroachdb/errors"

// ErrNegativeSeats is returned when an update would store a negative seat
// count.
var ErrNegativeSeats = errors.New("available seats cannot be negative")

// ErrRecordNotFound is returned by updates whose key matches no record.
var ErrRecordNotFound = errors.New("showtime record not found")

// ErrDuplicateKey is returned by updates whose key matches more than one
// record.
var ErrDuplicateKey = errors.New("showtime key matches more than one record")

// ErrStaleSeats is returned by a conditional update when the stored seat
// count no longer equals the expected value.
var ErrStaleSeats = errors.New("seat count changed concurrently")

// ErrMalformedTable is returned when the backing table cannot be parsed.
var ErrMalformedTable = errors.New("malformed showtime table")
