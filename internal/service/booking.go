// Package service implements ticket booking on top of the showtime store.
package service

import (
	"context"
	"crypto/rand"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/iliyamo/showtime-chatbot/internal/logger"
	"github.com/iliyamo/showtime-chatbot/internal/model"
	"github.com/iliyamo/showtime-chatbot/internal/queue"
	"github.com/iliyamo/showtime-chatbot/internal/repository"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 8

	// casAttempts bounds how often a lost compare-and-swap is retried
	// against a fresh read before the booking is reported as failed.
	casAttempts = 3
)

// BookingService books seats.  The read of available seats and the write
// of the decremented count happen under a per-showtime lock, and through a
// compare-and-swap when the store supports one, so concurrent bookings can
// never take more seats than exist.
type BookingService struct {
	store   repository.ShowtimeStore
	locks   *keyLocks
	events  EventPublisher
	newCode func() (string, error)
	now     func() time.Time
}

type Option func(*BookingService)

// WithPublisher sends a booking.confirmed event after each booking.
func WithPublisher(p EventPublisher) Option {
	return func(s *BookingService) { s.events = p }
}

// WithCodeGenerator replaces the random confirmation code source.
func WithCodeGenerator(f func() (string, error)) Option {
	return func(s *BookingService) { s.newCode = f }
}

func NewBookingService(store repository.ShowtimeStore, opts ...Option) *BookingService {
	s := &BookingService{
		store:   store,
		locks:   newKeyLocks(),
		newCode: ConfirmationCode,
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Book takes req.Tickets seats from the showtime identified by req.Key.
// Movie, theater, date and time are required; an empty language accepts
// any language as long as only one record matches.
//
// On failure the returned result has Success false and err is one of the
// errors in errors.go, or the context error if ctx ended before the seat
// count was written.  Either way no seats have been taken.
func (s *BookingService) Book(ctx context.Context, req model.BookingRequest) (model.BookingResult, error) {
	res := model.BookingResult{Tickets: req.Tickets}
	fail := func(err error) (model.BookingResult, error) {
		res.Reason = err.Error()
		return res, err
	}

	if req.Tickets <= 0 {
		return fail(ErrInvalidTickets)
	}
	k := req.Key
	if strings.TrimSpace(k.MovieName) == "" || strings.TrimSpace(k.TheaterLocation) == "" ||
		strings.TrimSpace(k.Date) == "" || strings.TrimSpace(k.Time) == "" {
		return fail(ErrIncompleteKey)
	}

	// Language is left out of the lock key so a wildcard request and a
	// language specific one for the same screening share a lock.
	lockKey := model.ShowtimeKey{MovieName: k.MovieName, TheaterLocation: k.TheaterLocation, Date: k.Date, Time: k.Time}.LockKey()
	unlock, err := s.locks.Lock(ctx, lockKey)
	if err != nil {
		return fail(err)
	}
	defer unlock()

	cas, useCAS := s.store.(repository.ConditionalUpdater)
	var lastErr error
	for attempt := 0; attempt < casAttempts; attempt++ {
		candidates, err := s.store.Find(ctx, k)
		if err != nil {
			if ctx.Err() != nil {
				return fail(ctx.Err())
			}
			return fail(&PersistenceError{Err: errors.Wrap(err, "read showtime")})
		}
		switch {
		case len(candidates) == 0:
			return fail(ErrShowtimeNotFound)
		case len(candidates) > 1:
			return fail(&AmbiguousShowtimeError{Candidates: candidates})
		}
		show := candidates[0]
		res.Showtime = &show
		res.RemainingSeats = show.AvailableSeats
		if show.AvailableSeats < req.Tickets {
			return fail(&InsufficientSeatsError{Available: show.AvailableSeats, Requested: req.Tickets})
		}
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		remaining := show.AvailableSeats - req.Tickets
		if useCAS {
			err = cas.UpdateSeatsIf(ctx, show.Key(), show.AvailableSeats, remaining)
			if errors.Is(err, repository.ErrStaleSeats) {
				logger.Debug().Str("showtime", lockKey).Int("attempt", attempt+1).Msg("seat count moved, re-reading")
				lastErr = err
				continue
			}
		} else {
			err = s.store.UpdateSeats(ctx, show.Key(), remaining)
		}
		if err != nil {
			if ctx.Err() != nil {
				return fail(ctx.Err())
			}
			logger.Error().Err(err).Str("showtime", lockKey).Msg("seat update failed")
			return fail(&PersistenceError{Err: err})
		}

		show.AvailableSeats = remaining
		res.RemainingSeats = remaining
		code, err := s.newCode()
		if err != nil {
			// Seats are already taken; fall back to a code derived from a uuid.
			code = strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:codeLength]
		}
		res.Success = true
		res.ConfirmationCode = code
		logger.Info().Str("code", code).Str("showtime", lockKey).Int("tickets", req.Tickets).Int("remaining", remaining).Msg("booking confirmed")
		s.publish(ctx, show, res)
		return res, nil
	}
	return fail(&PersistenceError{Err: errors.Wrapf(lastErr, "gave up after %d attempts", casAttempts)})
}

func (s *BookingService) publish(ctx context.Context, show model.Showtime, res model.BookingResult) {
	if s.events == nil {
		return
	}
	ev := queue.BookingConfirmedEvent{
		EventID:          uuid.NewString(),
		ConfirmationCode: res.ConfirmationCode,
		SessionID:        SessionFromContext(ctx),
		MovieName:        show.MovieName,
		TheaterLocation:  show.TheaterLocation,
		Date:             show.Date,
		Time:             show.Time,
		Language:         show.Language,
		Tickets:          res.Tickets,
		RemainingSeats:   res.RemainingSeats,
		ConfirmedAt:      queue.Timestamp(s.now()),
	}
	// The booking is final at this point; a cancelled request context must
	// not stop the event.
	if err := s.events.PublishBookingConfirmed(context.WithoutCancel(ctx), ev); err != nil {
		logger.Warn().Err(err).Str("code", ev.ConfirmationCode).Msg("booking event not published")
	}
}

// ConfirmationCode returns a random 8 character code of upper case letters
// and digits.  Codes are for display only and may repeat.
func ConfirmationCode() (string, error) {
	code := make([]byte, 0, codeLength)
	buf := make([]byte, codeLength*2)
	for len(code) < codeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		code = appendCode(code, buf)
	}
	return string(code), nil
}

// codeByteLimit is the largest multiple of the alphabet size that fits in
// a byte; bytes at or above it are discarded so every symbol is equally
// likely.
const codeByteLimit = 256 - 256%len(codeAlphabet)

// appendCode maps random bytes onto the code alphabet until dst holds
// codeLength symbols.
func appendCode(dst, src []byte) []byte {
	for _, b := range src {
		if len(dst) == codeLength {
			break
		}
		if int(b) >= codeByteLimit {
			continue
		}
		dst = append(dst, codeAlphabet[int(b)%len(codeAlphabet)])
	}
	return dst
}

type sessionKey struct{}

// WithSession tags ctx with the chat session a booking comes from.
func WithSession(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

// SessionFromContext returns the session set by WithSession, if any.
func SessionFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}
