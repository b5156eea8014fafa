// Package chat routes one user message to the handler for its intent and
// renders the answer.
package chat

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/iliyamo/showtime-chatbot/internal/logger"
	"github.com/iliyamo/showtime-chatbot/internal/model"
	"github.com/iliyamo/showtime-chatbot/internal/omdb"
	"github.com/iliyamo/showtime-chatbot/internal/repository"
	"github.com/iliyamo/showtime-chatbot/internal/service"
)

// Extractor turns a message and the recent history into an intent.
type Extractor interface {
	Extract(ctx context.Context, text string, history []model.Turn) (*model.ParsedIntent, error)
}

// Searcher answers free text questions from the showtime records.
type Searcher interface {
	Search(ctx context.Context, query string) ([]model.Showtime, error)
}

// MovieInfoFetcher looks up movie metadata by title.
type MovieInfoFetcher interface {
	MovieInfo(ctx context.Context, title string) (*omdb.Movie, error)
}

// Booker books seats.
type Booker interface {
	Book(ctx context.Context, req model.BookingRequest) (model.BookingResult, error)
}

// State is a step of the routing state machine.
type State string

const (
	StateAwaitingIntent State = "AWAITING_INTENT"
	StateReview         State = "REVIEW"
	StateShowtimes      State = "SHOWTIMES"
	StateCinema         State = "CINEMA"
	StateBooking        State = "BOOKING"
	StateGeneral        State = "GENERAL"
	StateDone           State = "DONE"
)

// DefaultWelcome greets the user when no prompt file overrides it.
const DefaultWelcome = "Hi! I'm your movie assistant. Ask me about showtimes, cinemas near you, " +
	"movie reviews, or tell me which show to book and how many tickets you need."

const (
	ApologyMessage  = "I'm having trouble understanding your query. Could you rephrase it?"
	lookupFailed    = "Sorry, something went wrong while looking that up. Please try again."
	maxCinemas      = 5
	eveningStartsAt = "17:00"
)

// Reply is the outcome of one turn.  Path lists the states visited, from
// AWAITING_INTENT to DONE.
type Reply struct {
	Text    string               `json:"reply"`
	Intent  *model.ParsedIntent  `json:"intent,omitempty"`
	Path    []State              `json:"state_path"`
	Booking *model.BookingResult `json:"booking,omitempty"`
}

// Deps are the collaborators of a Router.  Store, Extractor and Booker are
// required; a nil Searcher or Movies disables the general and review
// answers respectively.
type Deps struct {
	Extractor Extractor
	Store     repository.ShowtimeStore
	Booker    Booker
	Searcher  Searcher
	Movies    MovieInfoFetcher
	Welcome   string
	Now       func() time.Time
}

// Router dispatches parsed intents.  Each call to Handle is independent and
// Router is safe for concurrent use.
type Router struct {
	d Deps
}

func NewRouter(d Deps) *Router {
	if d.Extractor == nil || d.Store == nil || d.Booker == nil {
		panic("chat: extractor, store and booker are required")
	}
	if d.Welcome == "" {
		d.Welcome = DefaultWelcome
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Router{d: d}
}

// Handle runs one message through the state machine.  It never fails:
// every error ends in DONE with a message for the user.
func (r *Router) Handle(ctx context.Context, text string, history []model.Turn) Reply {
	rep := Reply{Path: []State{StateAwaitingIntent}}
	done := func(msg string) Reply {
		rep.Text = msg
		rep.Path = append(rep.Path, StateDone)
		return rep
	}

	text = strings.TrimSpace(text)
	if isGreeting(text, history) {
		return done(r.d.Welcome)
	}

	intent, err := r.d.Extractor.Extract(ctx, text, history)
	if err != nil || intent == nil {
		logger.Warn().Err(err).Msg("intent extraction failed")
		return done(ApologyMessage)
	}
	rep.Intent = intent

	state := stateFor(intent.Intent)
	rep.Path = append(rep.Path, state)
	var msg string
	switch state {
	case StateReview:
		msg = r.review(ctx, intent)
	case StateShowtimes:
		msg = r.showtimes(ctx, intent)
	case StateCinema:
		msg = r.cinemas(ctx, intent)
	case StateBooking:
		msg, rep.Booking = r.book(ctx, intent)
	default:
		msg = r.general(ctx, text)
	}
	logger.Info().Str("intent", string(intent.Intent)).Str("state", string(state)).Msg("turn handled")
	return done(msg)
}

func stateFor(k model.IntentKind) State {
	switch k {
	case model.IntentMovieReview:
		return StateReview
	case model.IntentShowtimes:
		return StateShowtimes
	case model.IntentCinemaLocation:
		return StateCinema
	case model.IntentBookTickets:
		return StateBooking
	case model.IntentGeneral:
		return StateGeneral
	}
	return StateGeneral
}

var greetings = map[string]bool{"hello": true, "hi": true, "hey": true, "help": true, "start": true, "/start": true, "/help": true}

// isGreeting matches the canned greetings, and single words at the start
// of a conversation.
func isGreeting(text string, history []model.Turn) bool {
	t := strings.ToLower(strings.Trim(text, " !.?"))
	if t == "" || greetings[t] {
		return true
	}
	return len(history) == 0 && len(strings.Fields(t)) < 2
}

func (r *Router) review(ctx context.Context, p *model.ParsedIntent) string {
	if p.MovieName == "" {
		return MissingInformation([]string{"movie_name"})
	}
	if r.d.Movies == nil {
		return "Movie reviews are not available right now."
	}
	m, err := r.d.Movies.MovieInfo(ctx, p.MovieName)
	if err != nil {
		if !errors.Is(err, omdb.ErrNotFound) {
			logger.Warn().Err(err).Str("movie", p.MovieName).Msg("movie lookup failed")
		}
		return "Sorry, I couldn't find ratings for '" + p.MovieName + "'. Please check the movie name and try again."
	}
	return FormatMovie(m)
}

// criteria builds the store filter for an intent, reading the date and
// time from the dedicated fields first and the showtime descriptor second.
// The second result names the fields the user gave in a form that could
// not be read; those are left empty in the key.
func (r *Router) criteria(p *model.ParsedIntent) (model.ShowtimeKey, []string) {
	now := r.d.Now()
	date := normalizeDate(p.Date, now)
	clock := normalizeTime(p.Time)
	d, c := splitShowtime(p.Showtime, now)
	dateUnread, timeUnread := unreadShowtime(p.Showtime, d, c)
	dateUnread = dateUnread || (date == "" && strings.TrimSpace(p.Date) != "")
	timeUnread = timeUnread || (clock == "" && strings.TrimSpace(p.Time) != "")
	if date == "" {
		date = d
	}
	if clock == "" {
		clock = c
	}

	var unread []string
	if dateUnread && date == "" {
		unread = append(unread, "date")
	}
	if timeUnread && clock == "" {
		unread = append(unread, "time")
	}
	if date == "" && len(unread) == 0 && strings.EqualFold(p.TimeContext, "tomorrow") {
		date = normalizeDate("tomorrow", now)
	}
	return model.ShowtimeKey{
		MovieName:       p.MovieName,
		TheaterLocation: p.CinemaName,
		Date:            date,
		Time:            clock,
		Language:        p.Language,
	}, unread
}

func containsFold(hay, needle string) bool {
	return strings.Contains(strings.ToLower(hay), strings.ToLower(strings.TrimSpace(needle)))
}

func (r *Router) showtimes(ctx context.Context, p *model.ParsedIntent) string {
	if p.MovieName == "" && p.CinemaName == "" && p.City == "" && p.Locality == "" && p.Genre == "" {
		return MissingInformation([]string{"movie_name", "locality"})
	}
	k, _ := r.criteria(p)
	recs, err := r.d.Store.Find(ctx, k)
	if err != nil {
		logger.Error().Err(err).Msg("showtime lookup failed")
		return lookupFailed
	}
	var out []model.Showtime
	for _, s := range recs {
		if p.City != "" && !containsFold(s.City, p.City) {
			continue
		}
		if p.Locality != "" && !containsFold(s.Address, p.Locality) && !containsFold(s.TheaterLocation, p.Locality) {
			continue
		}
		if p.Genre != "" && !containsFold(s.Genre, p.Genre) {
			continue
		}
		if strings.EqualFold(p.TimeContext, "evening") && k.Time == "" && s.Time < eveningStartsAt {
			continue
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return "No showtimes found for " + describe(p, k) + "."
	}
	return FormatShowtimes(out)
}

func describe(p *model.ParsedIntent, k model.ShowtimeKey) string {
	var parts []string
	if p.MovieName != "" {
		parts = append(parts, "'"+p.MovieName+"'")
	}
	if p.Genre != "" {
		parts = append(parts, p.Genre+" movies")
	}
	if p.CinemaName != "" {
		parts = append(parts, "at "+p.CinemaName)
	}
	if loc := firstNonEmpty(p.Locality, p.City); loc != "" {
		parts = append(parts, "in "+loc)
	}
	if k.Date != "" {
		parts = append(parts, "on "+k.Date)
	}
	if k.Time != "" {
		parts = append(parts, "at "+k.Time)
	}
	if len(parts) == 0 {
		return "your search"
	}
	return strings.Join(parts, " ")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func (r *Router) cinemas(ctx context.Context, p *model.ParsedIntent) string {
	if p.City == "" && p.Locality == "" {
		return MissingInformation([]string{"city or locality"})
	}
	recs, err := r.d.Store.Find(ctx, model.ShowtimeKey{})
	if err != nil {
		logger.Error().Err(err).Msg("cinema lookup failed")
		return lookupFailed
	}
	seen := map[string]bool{}
	var theaters []model.Showtime
	for _, s := range recs {
		if p.City != "" && !containsFold(s.City, p.City) {
			continue
		}
		if p.Locality != "" && !containsFold(s.TheaterLocation, p.Locality) && !containsFold(s.Address, p.Locality) {
			continue
		}
		k := strings.ToLower(s.TheaterLocation)
		if seen[k] {
			continue
		}
		seen[k] = true
		theaters = append(theaters, s)
	}
	where := firstNonEmpty(p.Locality, p.City)
	if len(theaters) == 0 {
		return "No cinemas found in " + where + "."
	}
	sort.SliceStable(theaters, func(a, b int) bool {
		return strings.ToLower(theaters[a].TheaterLocation) < strings.ToLower(theaters[b].TheaterLocation)
	})
	if len(theaters) > maxCinemas {
		theaters = theaters[:maxCinemas]
	}
	return FormatCinemas(where, theaters)
}

func (r *Router) book(ctx context.Context, p *model.ParsedIntent) (string, *model.BookingResult) {
	var missing []string
	if p.MovieName == "" {
		missing = append(missing, "movie_name")
	}
	if p.CinemaName == "" {
		missing = append(missing, "cinema_name")
	}
	if len(missing) > 0 {
		return MissingInformation(missing), nil
	}
	if p.NumTickets != nil && *p.NumTickets <= 0 {
		return "Please tell me how many tickets you need (a positive number).", nil
	}

	k, unread := r.criteria(p)
	if len(unread) > 0 {
		return unreadDateTime(unread), nil
	}
	candidates, err := r.d.Store.Find(ctx, k)
	if err != nil {
		logger.Error().Err(err).Msg("booking lookup failed")
		return lookupFailed, nil
	}
	if len(candidates) == 0 {
		return notFoundMessage(p, k), nil
	}
	if screenings(candidates) > 1 {
		return FormatCandidates(candidates), nil
	}

	show := candidates[0]
	req := model.BookingRequest{
		Key: model.ShowtimeKey{
			MovieName:       show.MovieName,
			TheaterLocation: show.TheaterLocation,
			Date:            show.Date,
			Time:            show.Time,
			Language:        k.Language,
		},
		Tickets: p.Tickets(),
	}
	res, err := r.d.Booker.Book(ctx, req)
	if err != nil {
		return bookingFailure(err, p, k), &res
	}
	return FormatBooking(res), &res
}

func unreadDateTime(fields []string) string {
	return "I couldn't understand the " + strings.Join(fields, " and ") + " you asked for. " +
		"Please give the date as YYYY-MM-DD (or today, tomorrow) and the time as HH:MM or like 6pm."
}

// screenings counts distinct (movie, theater, date, time) among recs.
func screenings(recs []model.Showtime) int {
	seen := map[string]bool{}
	for _, s := range recs {
		k := s.Key()
		k.Language = ""
		seen[k.LockKey()] = true
	}
	return len(seen)
}

func notFoundMessage(p *model.ParsedIntent, k model.ShowtimeKey) string {
	return "Sorry, I couldn't find a show of " + describe(p, k) + ". Ask me for showtimes to see what's available."
}

func bookingFailure(err error, p *model.ParsedIntent, k model.ShowtimeKey) string {
	var insufficient *service.InsufficientSeatsError
	var ambiguous *service.AmbiguousShowtimeError
	switch {
	case errors.As(err, &insufficient):
		return fmt.Sprintf("Not enough seats available. Only %d seats left.", insufficient.Available)
	case errors.As(err, &ambiguous):
		return FormatCandidates(ambiguous.Candidates)
	case errors.Is(err, service.ErrShowtimeNotFound):
		return notFoundMessage(p, k)
	case errors.Is(err, service.ErrInvalidTickets):
		return "Please tell me how many tickets you need (a positive number)."
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "The booking did not complete in time. No tickets were booked, please try again."
	default:
		logger.Error().Err(err).Msg("booking failed")
		return "Sorry, the booking could not be completed. No tickets were booked, please try again."
	}
}

func (r *Router) general(ctx context.Context, text string) string {
	if r.d.Searcher != nil {
		recs, err := r.d.Searcher.Search(ctx, text)
		if err != nil {
			logger.Warn().Err(err).Msg("search failed")
		} else if len(recs) > 0 {
			return "Here's what I found:\n" + FormatMatches(recs)
		}
	}
	return "I'm not sure about that. You can ask me about showtimes, cinemas near you, movie reviews or booking tickets."
}
