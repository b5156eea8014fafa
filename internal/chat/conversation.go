package chat

import (
	"context"

	"github.com/iliyamo/showtime-chatbot/internal/history"
	"github.com/iliyamo/showtime-chatbot/internal/logger"
	"github.com/iliyamo/showtime-chatbot/internal/model"
	"github.com/iliyamo/showtime-chatbot/internal/service"
)

// Conversation keeps per-session history around a Router.
type Conversation struct {
	router  *Router
	history history.Store
}

func NewConversation(r *Router, h history.Store) *Conversation {
	return &Conversation{router: r, history: h}
}

// Turn answers text for sessionID and records both sides of the exchange.
// A history backend failure costs the context for this turn, not the turn.
func (c *Conversation) Turn(ctx context.Context, sessionID, text string) Reply {
	past, err := c.history.Load(ctx, sessionID)
	if err != nil {
		logger.Warn().Err(err).Str("session", sessionID).Msg("history load failed")
		past = nil
	}

	rep := c.router.Handle(service.WithSession(ctx, sessionID), text, past)

	err = c.history.Append(context.WithoutCancel(ctx), sessionID,
		model.Turn{Role: model.RoleUser, Content: text},
		model.Turn{Role: model.RoleBot, Content: rep.Text},
	)
	if err != nil {
		logger.Warn().Err(err).Str("session", sessionID).Msg("history append failed")
	}
	return rep
}
