package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/showtime-chatbot/internal/logger"
	"github.com/iliyamo/showtime-chatbot/internal/model"
	"github.com/iliyamo/showtime-chatbot/internal/repository"
)

type ShowtimeHandler struct {
	Store repository.ShowtimeStore
}

func NewShowtimeHandler(store repository.ShowtimeStore) *ShowtimeHandler {
	if store == nil {
		panic("nil store passed to NewShowtimeHandler")
	}
	return &ShowtimeHandler{Store: store}
}

// List handles GET /v1/showtimes.  Every query parameter is optional and
// an absent one matches anything.  No match is an empty list, not a 404.
func (h *ShowtimeHandler) List(c echo.Context) error {
	k := model.ShowtimeKey{
		MovieName:       strings.TrimSpace(c.QueryParam("movie")),
		TheaterLocation: strings.TrimSpace(c.QueryParam("theater")),
		Date:            strings.TrimSpace(c.QueryParam("date")),
		Time:            strings.TrimSpace(c.QueryParam("time")),
		Language:        strings.TrimSpace(c.QueryParam("language")),
	}
	recs, err := h.Store.Find(c.Request().Context(), k)
	if err != nil {
		logger.Error().Err(err).Msg("showtime list failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error":   "store_error",
			"message": "could not read showtimes",
		})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"data":  recs,
		"total": len(recs),
	})
}
