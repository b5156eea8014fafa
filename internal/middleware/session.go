package middleware

import (
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	// SessionHeader carries the chat session id between requests.
	SessionHeader = "X-Session-ID"
	sessionKey    = "session_id"
	maxSessionLen = 128
)

// Session makes sure every request has a session id.  A client supplied
// X-Session-ID is kept; otherwise a new uuid is issued and echoed back so
// the client can continue the conversation.
func Session() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := strings.TrimSpace(c.Request().Header.Get(SessionHeader))
			if id == "" || len(id) > maxSessionLen {
				id = uuid.NewString()
			}
			c.Set(sessionKey, id)
			c.Response().Header().Set(SessionHeader, id)
			return next(c)
		}
	}
}

// SessionID returns the id set by Session, or "anon" outside it.
func SessionID(c echo.Context) string {
	if s, ok := c.Get(sessionKey).(string); ok && s != "" {
		return s
	}
	return "anon"
}
