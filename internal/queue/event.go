// Package queue defines message payloads exchanged over the message broker.
package queue

import "time"

// BookingQueueName is the durable queue booking confirmations go to.
const BookingQueueName = "booking.confirmed"

// BookingConfirmedEvent is published after seats for a showtime have been
// decremented.  It carries the confirmation code handed to the user so the
// ledger can be searched by it.
type BookingConfirmedEvent struct {
	EventID          string `json:"event_id"`
	ConfirmationCode string `json:"confirmation_code"`
	SessionID        string `json:"session_id,omitempty"`
	MovieName        string `json:"movie_name"`
	TheaterLocation  string `json:"theater_location"`
	Date             string `json:"date"`
	Time             string `json:"time"`
	Language         string `json:"language,omitempty"`
	Tickets          int    `json:"tickets"`
	RemainingSeats   int    `json:"remaining_seats"`
	ConfirmedAt      string `json:"confirmed_at"`
}

// Timestamp formats t the way ConfirmedAt is stored.
func Timestamp(t time.Time) string { return t.UTC().Format(time.RFC3339) }
