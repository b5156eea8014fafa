package handler

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/showtime-chatbot/internal/middleware"
	"github.com/iliyamo/showtime-chatbot/internal/model"
	"github.com/iliyamo/showtime-chatbot/internal/service"
)

// Booker books seats on one showtime.
type Booker interface {
	Book(ctx context.Context, req model.BookingRequest) (model.BookingResult, error)
}

type BookingHandler struct {
	Booker Booker
}

func NewBookingHandler(b Booker) *BookingHandler {
	if b == nil {
		panic("nil booker passed to NewBookingHandler")
	}
	return &BookingHandler{Booker: b}
}

type bookingRequest struct {
	MovieName       string `json:"movie_name"`
	TheaterLocation string `json:"theater_location"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	Language        string `json:"language"`
	Tickets         int    `json:"tickets"`
}

// Create handles POST /v1/bookings.  It bypasses the chat flow and needs
// the full showtime key.
func (h *BookingHandler) Create(c echo.Context) error {
	var body bookingRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	req := model.BookingRequest{
		Key: model.ShowtimeKey{
			MovieName:       body.MovieName,
			TheaterLocation: body.TheaterLocation,
			Date:            body.Date,
			Time:            body.Time,
			Language:        body.Language,
		},
		Tickets: body.Tickets,
	}
	ctx := service.WithSession(c.Request().Context(), middleware.SessionID(c))
	res, err := h.Booker.Book(ctx, req)
	if err != nil {
		return c.JSON(bookingStatus(err), echo.Map{
			"error":  bookingErrorCode(err),
			"result": res,
		})
	}
	return c.JSON(http.StatusCreated, res)
}

func bookingStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrShowtimeNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInsufficientSeats), errors.Is(err, service.ErrAmbiguousShowtime):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidTickets), errors.Is(err, service.ErrIncompleteKey):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func bookingErrorCode(err error) string {
	switch {
	case errors.Is(err, service.ErrShowtimeNotFound):
		return "showtime_not_found"
	case errors.Is(err, service.ErrInsufficientSeats):
		return "insufficient_seats"
	case errors.Is(err, service.ErrAmbiguousShowtime):
		return "ambiguous_showtime"
	case errors.Is(err, service.ErrInvalidTickets):
		return "invalid_tickets"
	case errors.Is(err, service.ErrIncompleteKey):
		return "incomplete_showtime"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	}
	return "booking_failed"
}
