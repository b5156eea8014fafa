package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/showtime-chatbot/internal/chat"
	"github.com/iliyamo/showtime-chatbot/internal/middleware"
	"github.com/iliyamo/showtime-chatbot/internal/model"
)

const maxMessageLen = 2000

// Conversation runs one chat turn for a session.
type Conversation interface {
	Turn(ctx context.Context, sessionID, text string) chat.Reply
}

type ChatHandler struct {
	Conv    Conversation
	Timeout time.Duration
}

func NewChatHandler(conv Conversation, timeout time.Duration) *ChatHandler {
	if conv == nil {
		panic("nil conversation passed to NewChatHandler")
	}
	return &ChatHandler{Conv: conv, Timeout: timeout}
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type chatResponse struct {
	SessionID        string              `json:"session_id"`
	Reply            string              `json:"reply"`
	Intent           *model.ParsedIntent `json:"intent,omitempty"`
	StatePath        []chat.State        `json:"state_path"`
	ConfirmationCode string              `json:"confirmation_code,omitempty"`
}

// Chat handles POST /v1/chat.  The session comes from the body, falling
// back to the X-Session-ID header set by the session middleware.
func (h *ChatHandler) Chat(c echo.Context) error {
	var body chatRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	msg := strings.TrimSpace(body.Message)
	if msg == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "message is required"})
	}
	if len(msg) > maxMessageLen {
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{"error": "message too long"})
	}
	session := strings.TrimSpace(body.SessionID)
	if session == "" {
		session = middleware.SessionID(c)
	}

	ctx := c.Request().Context()
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}
	rep := h.Conv.Turn(ctx, session, msg)

	out := chatResponse{
		SessionID: session,
		Reply:     rep.Text,
		Intent:    rep.Intent,
		StatePath: rep.Path,
	}
	if rep.Booking != nil && rep.Booking.Success {
		out.ConfirmationCode = rep.Booking.ConfirmationCode
	}
	return c.JSON(http.StatusOK, out)
}
