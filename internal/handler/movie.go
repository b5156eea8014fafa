package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/showtime-chatbot/internal/logger"
	"github.com/iliyamo/showtime-chatbot/internal/omdb"
)

type MovieInfoFetcher interface {
	MovieInfo(ctx context.Context, title string) (*omdb.Movie, error)
}

type MovieHandler struct {
	Movies MovieInfoFetcher
}

func NewMovieHandler(m MovieInfoFetcher) *MovieHandler {
	if m == nil {
		panic("nil fetcher passed to NewMovieHandler")
	}
	return &MovieHandler{Movies: m}
}

// Get handles GET /v1/movies/:title.
func (h *MovieHandler) Get(c echo.Context) error {
	title := strings.TrimSpace(c.Param("title"))
	if title == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "title is required"})
	}
	m, err := h.Movies.MovieInfo(c.Request().Context(), title)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, m)
	case errors.Is(err, omdb.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "movie not found"})
	case errors.Is(err, omdb.ErrNoAPIKey):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "movie lookup not configured"})
	}
	logger.Warn().Err(err).Str("title", title).Msg("movie lookup failed")
	return c.JSON(http.StatusBadGateway, echo.Map{"error": "movie lookup failed"})
}
