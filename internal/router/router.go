// Package router wires the HTTP endpoints and their middleware.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/showtime-chatbot/internal/config"
	"github.com/iliyamo/showtime-chatbot/internal/handler"
	"github.com/iliyamo/showtime-chatbot/internal/middleware"
)

// Handlers are the endpoint groups.  A nil Movies leaves the movie route
// unregistered.
type Handlers struct {
	Chat      *handler.ChatHandler
	Showtimes *handler.ShowtimeHandler
	Bookings  *handler.BookingHandler
	Movies    *handler.MovieHandler
}

// RegisterRoutes registers the health check outside of any middleware so
// probes are never rate limited.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAPI registers the /v1 endpoints.  The chat and booking routes
// are rate limited because each request can cost a model call or a seat
// write; movie lookups go through the Redis response cache.  rdb may be
// nil, which disables both.
func RegisterAPI(e *echo.Echo, h Handlers, rl config.RateLimitConfig, cc config.MovieCache, rdb *redis.Client) {
	v1 := e.Group("/v1", middleware.Session(), middleware.AccessLog())
	limited := middleware.RateLimit(rl, rdb)

	v1.POST("/chat", h.Chat.Chat, limited)
	v1.POST("/bookings", h.Bookings.Create, limited)
	v1.GET("/showtimes", h.Showtimes.List)
	if h.Movies != nil {
		v1.GET("/movies/:title", h.Movies.Get, middleware.Cache(cc, rdb))
	}
}
