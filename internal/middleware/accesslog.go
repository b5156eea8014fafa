package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/showtime-chatbot/internal/logger"
)

// AccessLog writes one structured line per request.
func AccessLog() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			req := c.Request()
			ev := logger.Info()
			if status := c.Response().Status; status >= 500 {
				ev = logger.Error().Err(err)
			}
			ev.Str("method", req.Method).
				Str("path", c.Path()).
				Int("status", c.Response().Status).
				Str("session", SessionID(c)).
				Str("ip", c.RealIP()).
				Dur("latency", time.Since(start)).
				Msg("request")
			return nil
		}
	}
}
