package model

import "strings"

// Showtime is a single screening of a movie at a theater.  The tuple
// (MovieName, TheaterLocation, Date, Time, Language) is the business key;
// ID is only populated when the record comes from the database.
//
// AvailableSeats never goes negative and is only changed by the booking
// service.
type Showtime struct {
	ID              uint64 `json:"id,omitempty"`
	MovieName       string `json:"movie_name"`
	TheaterLocation string `json:"theater_location"`
	Address         string `json:"address,omitempty"`
	City            string `json:"city,omitempty"`
	Date            string `json:"date"` // YYYY-MM-DD
	Time            string `json:"time"` // HH:MM, 24h
	Language        string `json:"language,omitempty"`
	Genre           string `json:"genre,omitempty"`
	AvailableSeats  int    `json:"available_seats"`
}

// Key returns the business key of the showtime.
func (s Showtime) Key() ShowtimeKey {
	return ShowtimeKey{
		MovieName:       s.MovieName,
		TheaterLocation: s.TheaterLocation,
		Date:            s.Date,
		Time:            s.Time,
		Language:        s.Language,
	}
}

// ShowtimeKey identifies a showtime.  Any empty field acts as a wildcard
// when the key is used as a lookup filter.
type ShowtimeKey struct {
	MovieName       string `json:"movie_name"`
	TheaterLocation string `json:"theater_location"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	Language        string `json:"language,omitempty"`
}

// Matches reports whether s satisfies every non-empty field of k.  Text
// comparison is case-insensitive and ignores surrounding whitespace; dates
// and times are compared in their canonical form.
func (k ShowtimeKey) Matches(s Showtime) bool {
	return fieldMatches(k.MovieName, s.MovieName) &&
		fieldMatches(k.TheaterLocation, s.TheaterLocation) &&
		fieldMatches(CanonicalDate(k.Date), CanonicalDate(s.Date)) &&
		fieldMatches(CanonicalTime(k.Time), CanonicalTime(s.Time)) &&
		fieldMatches(k.Language, s.Language)
}

// Same reports whether two keys name the same showtime.
func (k ShowtimeKey) Same(o ShowtimeKey) bool {
	return strings.EqualFold(strings.TrimSpace(k.MovieName), strings.TrimSpace(o.MovieName)) &&
		strings.EqualFold(strings.TrimSpace(k.TheaterLocation), strings.TrimSpace(o.TheaterLocation)) &&
		CanonicalDate(k.Date) == CanonicalDate(o.Date) &&
		CanonicalTime(k.Time) == CanonicalTime(o.Time) &&
		strings.EqualFold(strings.TrimSpace(k.Language), strings.TrimSpace(o.Language))
}

// LockKey is a normalized string form of the key, used to serialize
// bookings on the same showtime.
func (k ShowtimeKey) LockKey() string {
	parts := []string{k.MovieName, k.TheaterLocation, CanonicalDate(k.Date), CanonicalTime(k.Time), k.Language}
	for i, p := range parts {
		parts[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return strings.Join(parts, "|")
}

func fieldMatches(want, got string) bool {
	want = strings.TrimSpace(want)
	if want == "" {
		return true
	}
	return strings.EqualFold(want, strings.TrimSpace(got))
}
