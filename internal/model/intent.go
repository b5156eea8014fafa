package model

import "strings"

// IntentKind is the classified purpose of a user message.
type IntentKind string

const (
	IntentMovieReview    IntentKind = "movie_review"
	IntentShowtimes      IntentKind = "showtimes"
	IntentCinemaLocation IntentKind = "cinema_location"
	IntentBookTickets    IntentKind = "book_tickets"
	IntentGeneral        IntentKind = "general"
)

// ParseIntentKind maps the label produced by the extractor onto the closed
// set of kinds.  Older prompt labels are folded into their closest kind and
// anything unknown becomes IntentGeneral.
func ParseIntentKind(s string) IntentKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "movie_review", "movie_info", "review":
		return IntentMovieReview
	case "showtimes", "showtime", "genre_search":
		return IntentShowtimes
	case "cinema_location", "cinema", "cinemas":
		return IntentCinemaLocation
	case "book_tickets", "booking", "book":
		return IntentBookTickets
	default:
		return IntentGeneral
	}
}

// ParsedIntent is the structured form of one user turn.  Only Intent is
// always set; everything else is optional.
type ParsedIntent struct {
	Intent      IntentKind `json:"intent"`
	MovieName   string     `json:"movie_name,omitempty"`
	City        string     `json:"city,omitempty"`
	Locality    string     `json:"locality,omitempty"`
	CinemaName  string     `json:"cinema_name,omitempty"`
	Showtime    string     `json:"showtime,omitempty"`
	Date        string     `json:"date,omitempty"`
	Time        string     `json:"time,omitempty"`
	NumTickets  *int       `json:"num_tickets,omitempty"`
	Language    string     `json:"language,omitempty"`
	Genre       string     `json:"genre,omitempty"`
	TimeContext string     `json:"time_context,omitempty"`
}

// Tickets returns the requested ticket count, defaulting to 1.
func (p *ParsedIntent) Tickets() int {
	if p.NumTickets == nil {
		return 1
	}
	return *p.NumTickets
}
