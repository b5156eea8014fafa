package model

// BookingRequest asks for Tickets seats on the showtime identified by Key.
// Key.Language may be empty, in which case any language is accepted.
type BookingRequest struct {
	Key     ShowtimeKey `json:"key"`
	Tickets int         `json:"tickets"`
}

// BookingResult is the outcome of a booking attempt.  Exactly one of
// ConfirmationCode and Reason is set.  The confirmation code is a random
// token for display only; it is not stored anywhere.
type BookingResult struct {
	Success          bool      `json:"success"`
	ConfirmationCode string    `json:"confirmation_code,omitempty"`
	Reason           string    `json:"reason,omitempty"`
	Showtime         *Showtime `json:"showtime,omitempty"`
	Tickets          int       `json:"tickets"`
	RemainingSeats   int       `json:"remaining_seats"`
}
