package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/showtime-chatbot/internal/history"
	"github.com/iliyamo/showtime-chatbot/internal/model"
	"github.com/iliyamo/showtime-chatbot/internal/omdb"
	"github.com/iliyamo/showtime-chatbot/internal/repository"
	"github.com/iliyamo/showtime-chatbot/internal/service"
)

type fakeExtractor struct {
	intent *model.ParsedIntent
	err    error
	calls  int
	seen   []model.Turn
}

func (f *fakeExtractor) Extract(_ context.Context, _ string, history []model.Turn) (*model.ParsedIntent, error) {
	f.calls++
	f.seen = history
	return f.intent, f.err
}

type memStore struct {
	mu      sync.Mutex
	rows    []model.Showtime
	finds   int
	updates int
}

func (m *memStore) Find(_ context.Context, k model.ShowtimeKey) ([]model.Showtime, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finds++
	out := []model.Showtime{}
	for _, r := range m.rows {
		if k.Matches(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) UpdateSeats(_ context.Context, k model.ShowtimeKey, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	for i := range m.rows {
		if m.rows[i].Key().Same(k) {
			m.rows[i].AvailableSeats = n
			return nil
		}
	}
	return repository.ErrRecordNotFound
}

func (m *memStore) Close() error { return nil }

func (m *memStore) seats(movie, theater, date, clock string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.MovieName == movie && r.TheaterLocation == theater && r.Date == date && r.Time == clock {
			return r.AvailableSeats
		}
	}
	return -1
}

type fakeMovies struct {
	movie *omdb.Movie
	err   error
}

func (f fakeMovies) MovieInfo(context.Context, string) (*omdb.Movie, error) { return f.movie, f.err }

type fakeSearcher struct{ recs []model.Showtime }

func (f fakeSearcher) Search(context.Context, string) ([]model.Showtime, error) { return f.recs, nil }

func fixture() []model.Showtime {
	return []model.Showtime{
		{MovieName: "Dune", TheaterLocation: "PVR", Address: "Forum Mall Koramangala", City: "Bangalore", Date: "2024-12-15", Time: "17:30", Language: "English", Genre: "Sci-Fi", AvailableSeats: 2},
		{MovieName: "Dune", TheaterLocation: "PVR", Address: "Forum Mall Koramangala", City: "Bangalore", Date: "2024-12-15", Time: "21:00", Language: "English", Genre: "Sci-Fi", AvailableSeats: 50},
		{MovieName: "Dune", TheaterLocation: "INOX", Address: "Garuda Mall", City: "Bangalore", Date: "2024-12-15", Time: "11:00", Language: "Hindi", Genre: "Sci-Fi", AvailableSeats: 10},
		{MovieName: "Kanguva", TheaterLocation: "Cinepolis", Address: "Orion Mall", City: "Bangalore", Date: "2024-12-16", Time: "18:00", Language: "Tamil", Genre: "Action", AvailableSeats: 30},
		{MovieName: "Kanguva", TheaterLocation: "Cinepolis", Address: "Orion Mall", City: "Bangalore", Date: "2024-12-16", Time: "18:00", Language: "Telugu", Genre: "Action", AvailableSeats: 30},
		{MovieName: "Pushpa 2", TheaterLocation: "AMB Cinemas", Address: "Gachibowli", City: "Hyderabad", Date: "2024-12-15", Time: "20:00", Language: "Telugu", Genre: "Action", AvailableSeats: 80},
	}
}

func tickets(n int) *int { return &n }

func newTestRouter(ext Extractor, store *memStore, extra ...func(*Deps)) *Router {
	d := Deps{
		Extractor: ext,
		Store:     store,
		Booker:    service.NewBookingService(store),
		Now:       func() time.Time { return time.Date(2024, 12, 15, 9, 0, 0, 0, time.UTC) },
	}
	for _, f := range extra {
		f(&d)
	}
	return NewRouter(d)
}

func TestHandleGreetingSkipsExtractor(t *testing.T) {
	ext := &fakeExtractor{}
	r := newTestRouter(ext, &memStore{rows: fixture()})

	for _, msg := range []string{"hi", "Hello!", "help", "  ", "yo"} {
		rep := r.Handle(context.Background(), msg, nil)
		assert.Equal(t, DefaultWelcome, rep.Text, msg)
		assert.Equal(t, []State{StateAwaitingIntent, StateDone}, rep.Path)
	}
	assert.Zero(t, ext.calls)

	// a single word mid-conversation is a real answer
	ext.intent = &model.ParsedIntent{Intent: model.IntentGeneral}
	r.Handle(context.Background(), "tomorrow", []model.Turn{{Role: model.RoleUser, Content: "Dune showtimes"}})
	assert.Equal(t, 1, ext.calls)
	assert.Len(t, ext.seen, 1)
}

func TestHandleCustomWelcome(t *testing.T) {
	r := newTestRouter(&fakeExtractor{}, &memStore{}, func(d *Deps) { d.Welcome = "Welcome to the box office." })
	assert.Equal(t, "Welcome to the box office.", r.Handle(context.Background(), "hey", nil).Text)
}

func TestHandleExtractionFailureApologizes(t *testing.T) {
	store := &memStore{rows: fixture()}
	r := newTestRouter(&fakeExtractor{err: errors.New("model down")}, store)

	rep := r.Handle(context.Background(), "book dune please", nil)
	assert.Equal(t, ApologyMessage, rep.Text)
	assert.Equal(t, []State{StateAwaitingIntent, StateDone}, rep.Path)
	assert.Nil(t, rep.Intent)
	assert.Zero(t, store.finds)
}

func TestHandleBookingMissingFieldsTouchesNothing(t *testing.T) {
	store := &memStore{rows: fixture()}
	r := newTestRouter(&fakeExtractor{intent: &model.ParsedIntent{Intent: model.IntentBookTickets, NumTickets: tickets(2)}}, store)

	rep := r.Handle(context.Background(), "book two tickets", nil)
	assert.True(t, strings.HasPrefix(rep.Text, "missing information: movie_name, cinema_name"), rep.Text)
	assert.Equal(t, []State{StateAwaitingIntent, StateBooking, StateDone}, rep.Path)
	assert.Zero(t, store.finds)
	assert.Zero(t, store.updates)
}

func TestHandleBookingSucceedsThenRunsOut(t *testing.T) {
	store := &memStore{rows: fixture()}
	ext := &fakeExtractor{intent: &model.ParsedIntent{
		Intent: model.IntentBookTickets, MovieName: "dune", CinemaName: "pvr",
		Showtime: "2024-12-15 5:30 pm", NumTickets: tickets(2),
	}}
	r := newTestRouter(ext, store)

	rep := r.Handle(context.Background(), "book 2 for dune at pvr at 5:30pm", nil)
	require.NotNil(t, rep.Booking)
	assert.True(t, rep.Booking.Success)
	assert.Contains(t, rep.Text, "Successfully booked 2 ticket(s) for Dune at PVR for 2024-12-15 17:30")
	assert.Contains(t, rep.Text, rep.Booking.ConfirmationCode)
	assert.Equal(t, 0, store.seats("Dune", "PVR", "2024-12-15", "17:30"))

	ext.intent.NumTickets = tickets(1)
	rep = r.Handle(context.Background(), "one more please", nil)
	require.NotNil(t, rep.Booking)
	assert.False(t, rep.Booking.Success)
	assert.Equal(t, "Not enough seats available. Only 0 seats left.", rep.Text)
	assert.Equal(t, 0, store.seats("Dune", "PVR", "2024-12-15", "17:30"))
}

func TestHandleBookingAmbiguousListsCandidates(t *testing.T) {
	store := &memStore{rows: fixture()}
	r := newTestRouter(&fakeExtractor{intent: &model.ParsedIntent{
		Intent: model.IntentBookTickets, MovieName: "Dune", CinemaName: "PVR",
	}}, store)

	rep := r.Handle(context.Background(), "book dune at pvr", nil)
	assert.Nil(t, rep.Booking)
	assert.Contains(t, rep.Text, "1. Dune at PVR on 2024-12-15 17:30 (English)")
	assert.Contains(t, rep.Text, "2. Dune at PVR on 2024-12-15 21:00 (English)")
	assert.Zero(t, store.updates)
	assert.Equal(t, 2, store.seats("Dune", "PVR", "2024-12-15", "17:30"))
}

func TestHandleBookingLanguageVariantsNeedChoice(t *testing.T) {
	store := &memStore{rows: fixture()}
	ext := &fakeExtractor{intent: &model.ParsedIntent{
		Intent: model.IntentBookTickets, MovieName: "Kanguva", CinemaName: "Cinepolis", Date: "2024-12-16", Time: "18:00",
	}}
	r := newTestRouter(ext, store)

	rep := r.Handle(context.Background(), "book kanguva at cinepolis", nil)
	require.NotNil(t, rep.Booking)
	assert.False(t, rep.Booking.Success)
	assert.Contains(t, rep.Text, "(Tamil)")
	assert.Contains(t, rep.Text, "(Telugu)")
	assert.Zero(t, store.updates)

	ext.intent.Language = "telugu"
	rep = r.Handle(context.Background(), "telugu please", []model.Turn{{Role: model.RoleBot, Content: "which one"}})
	require.NotNil(t, rep.Booking)
	assert.True(t, rep.Booking.Success)
	assert.Equal(t, "Telugu", rep.Booking.Showtime.Language)
	assert.Equal(t, 29, rep.Booking.RemainingSeats)
}

func TestHandleBookingUnknownShow(t *testing.T) {
	store := &memStore{rows: fixture()}
	r := newTestRouter(&fakeExtractor{intent: &model.ParsedIntent{
		Intent: model.IntentBookTickets, MovieName: "Oppenheimer", CinemaName: "PVR",
	}}, store)

	rep := r.Handle(context.Background(), "book oppenheimer at pvr", nil)
	assert.Contains(t, rep.Text, "couldn't find a show of 'Oppenheimer' at PVR")
	assert.Zero(t, store.updates)
}

func TestHandleBookingUnreadableDateOrTimeBooksNothing(t *testing.T) {
	cases := []struct {
		name  string
		p     model.ParsedIntent
		field string
	}{
		{"month name date", model.ParsedIntent{Date: "December 16", Time: "17:30"}, "the date"},
		{"weekday date", model.ParsedIntent{Date: "Sunday", Time: "17:30"}, "the date"},
		{"bare hour time", model.ParsedIntent{Date: "2024-12-15", Time: "at 9"}, "the time"},
		{"bare hour descriptor", model.ParsedIntent{Showtime: "at 9"}, "the time"},
		{"weekday descriptor", model.ParsedIntent{Showtime: "sunday 5:30pm"}, "the date"},
		{"neither readable", model.ParsedIntent{Date: "16/12", Time: "half nine"}, "the date and time"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			store := &memStore{rows: fixture()[:1]}
			p := c.p
			p.Intent, p.MovieName, p.CinemaName, p.NumTickets = model.IntentBookTickets, "Dune", "PVR", tickets(2)
			r := newTestRouter(&fakeExtractor{intent: &p}, store)

			rep := r.Handle(context.Background(), "book dune at pvr", nil)
			assert.Nil(t, rep.Booking)
			assert.Contains(t, rep.Text, "couldn't understand "+c.field)
			assert.Contains(t, rep.Text, "YYYY-MM-DD")
			assert.Zero(t, store.finds)
			assert.Zero(t, store.updates)
			assert.Equal(t, 2, store.seats("Dune", "PVR", "2024-12-15", "17:30"))
		})
	}
}

func TestHandleBookingDescriptorFillsUnreadableField(t *testing.T) {
	store := &memStore{rows: fixture()[:1]}
	r := newTestRouter(&fakeExtractor{intent: &model.ParsedIntent{
		Intent: model.IntentBookTickets, MovieName: "Dune", CinemaName: "PVR",
		Date: "this sunday", Showtime: "2024-12-15 17:30", NumTickets: tickets(1),
	}}, store)

	rep := r.Handle(context.Background(), "book dune at pvr", nil)
	require.NotNil(t, rep.Booking)
	assert.True(t, rep.Booking.Success)
	assert.Equal(t, 1, store.seats("Dune", "PVR", "2024-12-15", "17:30"))
}

func TestHandleShowtimesGroupsAndFilters(t *testing.T) {
	store := &memStore{rows: fixture()}
	ext := &fakeExtractor{intent: &model.ParsedIntent{Intent: model.IntentShowtimes, MovieName: "Dune"}}
	r := newTestRouter(ext, store)

	rep := r.Handle(context.Background(), "dune showtimes", nil)
	assert.Equal(t, []State{StateAwaitingIntent, StateShowtimes, StateDone}, rep.Path)
	inox := strings.Index(rep.Text, "🎬 INOX")
	pvr := strings.Index(rep.Text, "🎬 PVR")
	require.True(t, inox >= 0 && pvr >= 0, rep.Text)
	assert.Less(t, inox, pvr)
	assert.Less(t, strings.Index(rep.Text, "17:30"), strings.Index(rep.Text, "21:00"))

	ext.intent = &model.ParsedIntent{Intent: model.IntentShowtimes, Genre: "action", City: "hyderabad"}
	rep = r.Handle(context.Background(), "action movies in hyderabad", nil)
	assert.Contains(t, rep.Text, "Pushpa 2")
	assert.NotContains(t, rep.Text, "Kanguva")

	ext.intent = &model.ParsedIntent{Intent: model.IntentShowtimes, MovieName: "Dune", TimeContext: "evening"}
	rep = r.Handle(context.Background(), "dune this evening", nil)
	assert.NotContains(t, rep.Text, "INOX")
	assert.Contains(t, rep.Text, "21:00")

	ext.intent = &model.ParsedIntent{Intent: model.IntentShowtimes, MovieName: "Dune", TimeContext: "tomorrow"}
	rep = r.Handle(context.Background(), "dune tomorrow", nil)
	assert.Equal(t, "No showtimes found for 'Dune' on 2024-12-16.", rep.Text)

	ext.intent = &model.ParsedIntent{Intent: model.IntentShowtimes}
	rep = r.Handle(context.Background(), "what is on", nil)
	assert.True(t, strings.HasPrefix(rep.Text, "missing information"))
}

func TestHandleCinemas(t *testing.T) {
	store := &memStore{rows: fixture()}
	ext := &fakeExtractor{intent: &model.ParsedIntent{Intent: model.IntentCinemaLocation, City: "Bangalore"}}
	r := newTestRouter(ext, store)

	rep := r.Handle(context.Background(), "cinemas in bangalore", nil)
	assert.Equal(t, "Cinemas in Bangalore:\n🎬 Cinepolis - Orion Mall\n🎬 INOX - Garuda Mall\n🎬 PVR - Forum Mall Koramangala", rep.Text)

	ext.intent = &model.ParsedIntent{Intent: model.IntentCinemaLocation, Locality: "Koramangala"}
	rep = r.Handle(context.Background(), "cinemas in koramangala", nil)
	assert.Equal(t, "Cinemas in Koramangala:\n🎬 PVR - Forum Mall Koramangala", rep.Text)

	ext.intent = &model.ParsedIntent{Intent: model.IntentCinemaLocation}
	rep = r.Handle(context.Background(), "cinemas near me", nil)
	assert.Equal(t, MissingInformation([]string{"city or locality"}), rep.Text)
}

func TestHandleReview(t *testing.T) {
	store := &memStore{rows: fixture()}
	ext := &fakeExtractor{intent: &model.ParsedIntent{Intent: model.IntentMovieReview, MovieName: "Dune"}}
	movie := &omdb.Movie{Title: "Dune", Year: "2021", IMDBRating: "8.0", Genre: "Sci-Fi", Director: "Denis Villeneuve"}

	r := newTestRouter(ext, store, func(d *Deps) { d.Movies = fakeMovies{movie: movie} })
	rep := r.Handle(context.Background(), "is dune any good", nil)
	assert.Equal(t, []State{StateAwaitingIntent, StateReview, StateDone}, rep.Path)
	assert.Contains(t, rep.Text, "IMDB Rating: 8.0/10")
	assert.Contains(t, rep.Text, "Director: Denis Villeneuve")
	assert.Contains(t, rep.Text, "Plot: Not available")

	r = newTestRouter(ext, store, func(d *Deps) { d.Movies = fakeMovies{err: omdb.ErrNotFound} })
	rep = r.Handle(context.Background(), "is dune any good", nil)
	assert.Contains(t, rep.Text, "couldn't find ratings for 'Dune'")
	assert.Zero(t, store.finds)
}

func TestHandleGeneralUsesSearch(t *testing.T) {
	store := &memStore{rows: fixture()}
	ext := &fakeExtractor{intent: &model.ParsedIntent{Intent: model.IntentGeneral}}

	r := newTestRouter(ext, store, func(d *Deps) { d.Searcher = fakeSearcher{recs: fixture()[5:]} })
	rep := r.Handle(context.Background(), "anything telugu tonight", nil)
	assert.Equal(t, []State{StateAwaitingIntent, StateGeneral, StateDone}, rep.Path)
	assert.Contains(t, rep.Text, "Pushpa 2")

	ranked := []model.Showtime{fixture()[2], fixture()[5]}
	r = newTestRouter(ext, store, func(d *Deps) { d.Searcher = fakeSearcher{recs: ranked} })
	rep = r.Handle(context.Background(), "dune or pushpa", nil)
	assert.Less(t, strings.Index(rep.Text, "1. Dune at INOX"), strings.Index(rep.Text, "2. Pushpa 2 at AMB Cinemas"))
	assert.True(t, strings.Index(rep.Text, "1. Dune at INOX") >= 0)

	r = newTestRouter(ext, store)
	rep = r.Handle(context.Background(), "tell me a joke", nil)
	assert.Contains(t, rep.Text, "You can ask me about showtimes")
}

func TestConversationKeepsHistory(t *testing.T) {
	store := &memStore{rows: fixture()}
	ext := &fakeExtractor{intent: &model.ParsedIntent{Intent: model.IntentGeneral}}
	h := history.NewMemory(history.DefaultWindow)
	c := NewConversation(newTestRouter(ext, store), h)

	c.Turn(context.Background(), "s1", "hello")
	c.Turn(context.Background(), "s1", "what about dune")
	require.Len(t, ext.seen, 2)
	assert.Equal(t, model.Turn{Role: model.RoleUser, Content: "hello"}, ext.seen[0])
	assert.Equal(t, model.RoleBot, ext.seen[1].Role)

	turns, _ := h.Load(context.Background(), "s1")
	assert.Len(t, turns, 4)
	other, _ := h.Load(context.Background(), "s2")
	assert.Empty(t, other)
}
