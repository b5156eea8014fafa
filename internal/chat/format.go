package chat

import (
	"fmt"
	"sort"
	"strings"

	"github.com/iliyamo/showtime-chatbot/internal/model"
	"github.com/iliyamo/showtime-chatbot/internal/omdb"
)

// FormatShowtimes groups records by theater, theaters in case-insensitive
// alphabetical order, and lists each theater's shows by date then time.
func FormatShowtimes(recs []model.Showtime) string {
	type group struct {
		name    string
		address string
		shows   []model.Showtime
	}
	groups := map[string]*group{}
	var keys []string
	for _, r := range recs {
		k := strings.ToLower(strings.TrimSpace(r.TheaterLocation))
		g, ok := groups[k]
		if !ok {
			g = &group{name: r.TheaterLocation, address: r.Address}
			groups[k] = g
			keys = append(keys, k)
		}
		g.shows = append(g.shows, r)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		g := groups[k]
		sort.SliceStable(g.shows, func(a, c int) bool {
			x, y := g.shows[a], g.shows[c]
			if x.Date != y.Date {
				return x.Date < y.Date
			}
			if x.Time != y.Time {
				return x.Time < y.Time
			}
			return strings.ToLower(x.MovieName) < strings.ToLower(y.MovieName)
		})
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("🎬 " + g.name)
		if g.address != "" {
			b.WriteString(" (" + g.address + ")")
		}
		b.WriteString("\n")
		for _, s := range g.shows {
			fmt.Fprintf(&b, "  %s %s  %s", s.Date, s.Time, s.MovieName)
			if s.Language != "" {
				fmt.Fprintf(&b, " [%s]", s.Language)
			}
			fmt.Fprintf(&b, " - %s\n", seatsLabel(s.AvailableSeats))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatMatches lists search hits one per line, keeping the order they
// were ranked in.
func FormatMatches(recs []model.Showtime) string {
	var b strings.Builder
	for i, s := range recs {
		fmt.Fprintf(&b, "%d. %s at %s on %s %s", i+1, s.MovieName, s.TheaterLocation, s.Date, s.Time)
		if s.Language != "" {
			fmt.Fprintf(&b, " [%s]", s.Language)
		}
		fmt.Fprintf(&b, " - %s\n", seatsLabel(s.AvailableSeats))
	}
	return strings.TrimRight(b.String(), "\n")
}

func seatsLabel(n int) string {
	switch n {
	case 0:
		return "sold out"
	case 1:
		return "1 seat left"
	}
	return fmt.Sprintf("%d seats left", n)
}

// FormatCandidates lists ambiguous booking matches as numbered options.
func FormatCandidates(recs []model.Showtime) string {
	sorted := append([]model.Showtime(nil), recs...)
	sort.SliceStable(sorted, func(a, c int) bool {
		x, y := sorted[a], sorted[c]
		if !strings.EqualFold(x.TheaterLocation, y.TheaterLocation) {
			return strings.ToLower(x.TheaterLocation) < strings.ToLower(y.TheaterLocation)
		}
		if x.Date != y.Date {
			return x.Date < y.Date
		}
		if x.Time != y.Time {
			return x.Time < y.Time
		}
		return strings.ToLower(x.Language) < strings.ToLower(y.Language)
	})
	var b strings.Builder
	b.WriteString("I found several matching shows. Which one would you like?\n")
	for i, s := range sorted {
		fmt.Fprintf(&b, "%d. %s at %s on %s %s", i+1, s.MovieName, s.TheaterLocation, s.Date, s.Time)
		if s.Language != "" {
			fmt.Fprintf(&b, " (%s)", s.Language)
		}
		b.WriteString("\n")
	}
	b.WriteString("Reply with the date, time or language you want.")
	return b.String()
}

// FormatBooking renders a successful booking.
func FormatBooking(res model.BookingResult) string {
	s := res.Showtime
	return fmt.Sprintf("Successfully booked %d ticket(s) for %s at %s for %s %s. Confirmation code: %s",
		res.Tickets, s.MovieName, s.TheaterLocation, s.Date, s.Time, res.ConfirmationCode)
}

// FormatMovie renders OMDb metadata as a short review card.
func FormatMovie(m *omdb.Movie) string {
	orNA := func(s string) string {
		if s == "" || s == "N/A" {
			return "Not available"
		}
		return s
	}
	lines := []string{fmt.Sprintf("🎬 %s (%s)", m.Title, orNA(m.Year))}
	if r := m.IMDBRating; r != "" && r != "N/A" {
		lines = append(lines, fmt.Sprintf("⭐ IMDB Rating: %s/10", r))
	}
	if rt := m.Rating("Rotten Tomatoes"); rt != "" {
		lines = append(lines, "🍅 Rotten Tomatoes: "+rt)
	}
	lines = append(lines,
		"Genre: "+orNA(m.Genre),
		"Director: "+orNA(m.Director),
		"Actors: "+orNA(m.Actors),
		"Plot: "+orNA(m.Plot),
	)
	return strings.Join(lines, "\n")
}

// FormatCinemas lists theaters with their address.
func FormatCinemas(where string, recs []model.Showtime) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Cinemas in %s:\n", where)
	for _, r := range recs {
		b.WriteString("🎬 " + r.TheaterLocation)
		if r.Address != "" {
			b.WriteString(" - " + r.Address)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// MissingInformation is the reply for an intent lacking required fields.
func MissingInformation(fields []string) string {
	return "missing information: " + strings.Join(fields, ", ") +
		". Please provide the " + strings.ReplaceAll(strings.Join(fields, " and the "), "_", " ") + "."
}
