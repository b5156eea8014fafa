package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/showtime-chatbot/internal/model"
	"github.com/iliyamo/showtime-chatbot/internal/queue"
	"github.com/iliyamo/showtime-chatbot/internal/repository"
)

// memStore is an in-memory ShowtimeStore.  Find yields the scheduler so
// concurrent callers interleave between the read and the write.
type memStore struct {
	mu       sync.Mutex
	rows     []model.Showtime
	writes   atomic.Int32
	writeErr error
}

func (m *memStore) Find(_ context.Context, c model.ShowtimeKey) ([]model.Showtime, error) {
	m.mu.Lock()
	out := make([]model.Showtime, 0)
	for _, r := range m.rows {
		if c.Matches(r) {
			out = append(out, r)
		}
	}
	m.mu.Unlock()
	time.Sleep(time.Millisecond)
	return out, nil
}

func (m *memStore) UpdateSeats(_ context.Context, k model.ShowtimeKey, n int) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	if n < 0 {
		return repository.ErrNegativeSeats
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].Key().Same(k) {
			m.rows[i].AvailableSeats = n
			m.writes.Add(1)
			return nil
		}
	}
	return repository.ErrRecordNotFound
}

func (m *memStore) Close() error { return nil }

func (m *memStore) seats(k model.ShowtimeKey) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.Key().Same(k) {
			return r.AvailableSeats
		}
	}
	return -1
}

// casStore adds a compare-and-swap that loses the first staleFor attempts.
type casStore struct {
	*memStore
	staleFor int
	calls    int
}

func (c *casStore) UpdateSeatsIf(ctx context.Context, k model.ShowtimeKey, expected, n int) error {
	c.calls++
	if c.calls <= c.staleFor {
		return repository.ErrStaleSeats
	}
	if got := c.seats(k); got != expected {
		return repository.ErrStaleSeats
	}
	return c.UpdateSeats(ctx, k, n)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.BookingConfirmedEvent
	err    error
}

func (p *recordingPublisher) PublishBookingConfirmed(_ context.Context, ev queue.BookingConfirmedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

var dune = model.Showtime{MovieName: "Dune", TheaterLocation: "PVR", City: "Bangalore", Date: "2024-12-15", Time: "17:30", Language: "English", AvailableSeats: 2}

func newMem(rows ...model.Showtime) *memStore {
	return &memStore{rows: append([]model.Showtime(nil), rows...)}
}

func TestBookDuneScenario(t *testing.T) {
	store := newMem(dune)
	svc := NewBookingService(store)
	ctx := context.Background()

	res, err := svc.Book(ctx, model.BookingRequest{Key: dune.Key(), Tickets: 2})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Len(t, res.ConfirmationCode, 8)
	assert.Equal(t, 0, res.RemainingSeats)
	assert.Equal(t, 0, store.seats(dune.Key()))

	res, err = svc.Book(ctx, model.BookingRequest{Key: dune.Key(), Tickets: 1})
	require.Error(t, err)
	assert.False(t, res.Success)
	assert.ErrorIs(t, err, ErrInsufficientSeats)
	var ise *InsufficientSeatsError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, 0, ise.Available)
	assert.Equal(t, 0, store.seats(dune.Key()))
	assert.Equal(t, int32(1), store.writes.Load())
}

func TestBookConcurrentTwoOfTwo(t *testing.T) {
	store := newMem(dune)
	svc := NewBookingService(store)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Book(context.Background(), model.BookingRequest{Key: dune.Key(), Tickets: 2})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrInsufficientSeats)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 0, store.seats(dune.Key()))
	assert.Zero(t, svc.locks.size())
}

func TestBookConcurrentNeverOversells(t *testing.T) {
	show := dune
	show.AvailableSeats = 10
	store := newMem(show)
	svc := NewBookingService(store)

	var wg sync.WaitGroup
	var booked atomic.Int32
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := model.BookingRequest{Key: show.Key(), Tickets: 1 + i%3}
			if i%2 == 0 {
				req.Key.Language = ""
			}
			res, err := svc.Book(context.Background(), req)
			if err == nil {
				booked.Add(int32(res.Tickets))
			}
		}(i)
	}
	wg.Wait()

	left := store.seats(show.Key())
	assert.GreaterOrEqual(t, left, 0)
	assert.Equal(t, 10, int(booked.Load())+left)
}

func TestBookConcurrentOnCSVStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "showtimes.csv")
	body := "movie_name,theater_location,date,time,language,available_seats\nDune,PVR,2024-12-15,17:30,English,2\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	store, err := repository.NewCSVStore(path)
	require.NoError(t, err)
	svc := NewBookingService(store)

	var wg sync.WaitGroup
	var ok atomic.Int32
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Book(context.Background(), model.BookingRequest{Key: dune.Key(), Tickets: 2}); err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	got, err := store.Find(context.Background(), dune.Key())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0].AvailableSeats)
}

func TestBookNotFoundDoesNotWrite(t *testing.T) {
	store := newMem(dune)
	svc := NewBookingService(store)
	k := dune.Key()
	k.Time = "09:00"

	_, err := svc.Book(context.Background(), model.BookingRequest{Key: k, Tickets: 1})
	assert.ErrorIs(t, err, ErrShowtimeNotFound)
	assert.Zero(t, store.writes.Load())
}

func TestBookAmbiguousLanguage(t *testing.T) {
	hindi := dune
	hindi.Language = "Hindi"
	store := newMem(dune, hindi)
	svc := NewBookingService(store)

	k := dune.Key()
	k.Language = ""
	_, err := svc.Book(context.Background(), model.BookingRequest{Key: k, Tickets: 1})
	require.ErrorIs(t, err, ErrAmbiguousShowtime)
	var amb *AmbiguousShowtimeError
	require.ErrorAs(t, err, &amb)
	assert.Len(t, amb.Candidates, 2)
	assert.Zero(t, store.writes.Load())

	k.Language = "hindi"
	res, err := svc.Book(context.Background(), model.BookingRequest{Key: k, Tickets: 1})
	require.NoError(t, err)
	assert.Equal(t, "Hindi", res.Showtime.Language)
	assert.Equal(t, 2, store.seats(dune.Key()))
}

func TestBookPersistenceFailureLeavesSeats(t *testing.T) {
	store := newMem(dune)
	store.writeErr = errors.New("disk full")
	pub := &recordingPublisher{}
	svc := NewBookingService(store, WithPublisher(pub))

	res, err := svc.Book(context.Background(), model.BookingRequest{Key: dune.Key(), Tickets: 1})
	require.ErrorIs(t, err, ErrPersistence)
	assert.Contains(t, err.Error(), "disk full")
	assert.False(t, res.Success)
	assert.Empty(t, res.ConfirmationCode)
	assert.Equal(t, 2, store.seats(dune.Key()))
	assert.Empty(t, pub.events)
}

func TestBookValidation(t *testing.T) {
	svc := NewBookingService(newMem(dune))
	ctx := context.Background()

	_, err := svc.Book(ctx, model.BookingRequest{Key: dune.Key(), Tickets: 0})
	assert.ErrorIs(t, err, ErrInvalidTickets)
	_, err = svc.Book(ctx, model.BookingRequest{Key: dune.Key(), Tickets: -2})
	assert.ErrorIs(t, err, ErrInvalidTickets)

	k := dune.Key()
	k.Time = ""
	_, err = svc.Book(ctx, model.BookingRequest{Key: k, Tickets: 1})
	assert.ErrorIs(t, err, ErrIncompleteKey)
}

func TestBookCancelledContextAppliesNothing(t *testing.T) {
	store := newMem(dune)
	svc := NewBookingService(store)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Book(ctx, model.BookingRequest{Key: dune.Key(), Tickets: 1})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, store.seats(dune.Key()))
}

func TestBookWaitsForLockUntilContextEnds(t *testing.T) {
	store := newMem(dune)
	svc := NewBookingService(store)

	unlock, err := svc.locks.Lock(context.Background(), model.ShowtimeKey{MovieName: "Dune", TheaterLocation: "PVR", Date: "2024-12-15", Time: "17:30"}.LockKey())
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = svc.Book(ctx, model.BookingRequest{Key: dune.Key(), Tickets: 1})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, store.seats(dune.Key()))
}

func TestBookRetriesLostCompareAndSwap(t *testing.T) {
	store := &casStore{memStore: newMem(dune), staleFor: 2}
	svc := NewBookingService(store)

	res, err := svc.Book(context.Background(), model.BookingRequest{Key: dune.Key(), Tickets: 1})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 3, store.calls)
	assert.Equal(t, 1, store.seats(dune.Key()))
}

func TestBookGivesUpAfterRepeatedStaleWrites(t *testing.T) {
	store := &casStore{memStore: newMem(dune), staleFor: 100}
	svc := NewBookingService(store)

	_, err := svc.Book(context.Background(), model.BookingRequest{Key: dune.Key(), Tickets: 1})
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, repository.ErrStaleSeats)
	assert.Equal(t, casAttempts, store.calls)
	assert.Equal(t, 2, store.seats(dune.Key()))
}

func TestBookPublishesEvent(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := NewBookingService(newMem(dune), WithPublisher(pub), WithCodeGenerator(func() (string, error) { return "FIXED001", nil }))
	ctx := WithSession(context.Background(), "sess-1")

	res, err := svc.Book(ctx, model.BookingRequest{Key: dune.Key(), Tickets: 2})
	require.NoError(t, err, "publish failures do not fail the booking")
	assert.Equal(t, "FIXED001", res.ConfirmationCode)

	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	assert.Equal(t, "FIXED001", ev.ConfirmationCode)
	assert.Equal(t, "sess-1", ev.SessionID)
	assert.Equal(t, 2, ev.Tickets)
	assert.Equal(t, 0, ev.RemainingSeats)
	assert.NotEmpty(t, ev.EventID)
}

func TestBookCodeGeneratorFailureStillConfirms(t *testing.T) {
	svc := NewBookingService(newMem(dune), WithCodeGenerator(func() (string, error) { return "", errors.New("no entropy") }))
	res, err := svc.Book(context.Background(), model.BookingRequest{Key: dune.Key(), Tickets: 1})
	require.NoError(t, err)
	assert.Len(t, res.ConfirmationCode, 8)
}

func TestAppendCodeDiscardsBiasedBytes(t *testing.T) {
	got := appendCode(nil, []byte{0, 252, 255, 35, 251, 36})
	assert.Equal(t, "A99A", string(got))

	full := appendCode([]byte("ABCDEFG"), []byte{1, 2, 3})
	assert.Equal(t, "ABCDEFGB", string(full))
}

func TestConfirmationCodeAlphabet(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := ConfirmationCode()
		require.NoError(t, err)
		require.Len(t, code, 8)
		for _, r := range code {
			assert.Contains(t, codeAlphabet, string(r))
		}
	}
}
