// Package app assembles the chatbot from configuration.  The HTTP server
// and the console share it.
package app

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/showtime-chatbot/internal/chat"
	"github.com/iliyamo/showtime-chatbot/internal/config"
	"github.com/iliyamo/showtime-chatbot/internal/database"
	"github.com/iliyamo/showtime-chatbot/internal/history"
	"github.com/iliyamo/showtime-chatbot/internal/llm"
	"github.com/iliyamo/showtime-chatbot/internal/logger"
	"github.com/iliyamo/showtime-chatbot/internal/omdb"
	"github.com/iliyamo/showtime-chatbot/internal/queue"
	"github.com/iliyamo/showtime-chatbot/internal/repository"
	"github.com/iliyamo/showtime-chatbot/internal/search"
	"github.com/iliyamo/showtime-chatbot/internal/service"
)

const searchLimit = 5

// App holds the long lived components.  Redis and Movies may be nil.
type App struct {
	Store        repository.ShowtimeStore
	Redis        *redis.Client
	Booking      *service.BookingService
	Movies       *omdb.Client
	Conversation *chat.Conversation

	stopConsumer context.CancelFunc
}

// Build connects the store, Redis and the model, and wires the chat
// router.  The booking consumer, when enabled, runs until Close.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	a := &App{}
	var err error
	if a.Store, err = OpenStore(cfg); err != nil {
		return nil, err
	}

	// Rate limiting and the response cache need Redis even when history
	// stays in memory.
	a.Redis = config.NewRedisClient()
	var hist history.Store = history.NewMemory(cfg.HistoryWindow)
	if cfg.HistoryBackend == "redis" {
		if a.Redis == nil {
			logger.Warn().Msg("redis unavailable, keeping history in memory")
		} else {
			hist = history.NewRedis(a.Redis, cfg.HistoryWindow, cfg.HistoryTTL)
		}
	}

	prompts, err := config.LoadPrompts(cfg.PromptFile)
	if err != nil {
		a.Close()
		return nil, err
	}
	ext, err := llm.NewExtractor(ctx, llm.Config{
		APIKey:       cfg.OpenAIKey,
		BaseURL:      cfg.OpenAIBaseURL,
		Model:        cfg.OpenAIModel,
		MaxTokens:    cfg.LLMMaxTokens,
		Temperature:  float32(cfg.LLMTemperature),
		Instructions: prompts.Extractor.Instructions,
		Examples:     prompts.Extractor.Examples,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Booking = service.NewBookingService(a.Store, service.WithPublisher(a.publisher(cfg)))

	deps := chat.Deps{
		Extractor: ext,
		Store:     a.Store,
		Booker:    a.Booking,
		Searcher:  search.NewIndex(a.Store, searchLimit),
		Welcome:   prompts.Welcome,
	}
	if cfg.OMDbKey != "" {
		a.Movies = omdb.NewClient(cfg.OMDbBaseURL, cfg.OMDbKey)
		deps.Movies = a.Movies
	} else {
		logger.Warn().Msg("OMDB_API_KEY not set, movie reviews disabled")
	}
	a.Conversation = chat.NewConversation(chat.NewRouter(deps), hist)
	return a, nil
}

// OpenStore returns the configured showtime store.  The MySQL table is
// created when missing.
func OpenStore(cfg config.Config) (repository.ShowtimeStore, error) {
	switch cfg.StoreBackend {
	case config.StoreMySQL:
		db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(context.Background(), db); err != nil {
			_ = db.Close()
			return nil, err
		}
		logger.Info().Str("host", cfg.DBHost).Str("db", cfg.DBName).Msg("using mysql showtime store")
		return repository.NewMySQLStore(db), nil
	case config.StoreCSV:
		s, err := repository.NewCSVStore(cfg.CSVPath)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("path", cfg.CSVPath).Msg("using csv showtime store")
		return s, nil
	}
	return nil, errors.Newf("unknown store backend %q", cfg.StoreBackend)
}

// publisher picks the booking event sink.  With events enabled bookings go
// to RabbitMQ and a consumer appends them to the ledger; otherwise they are
// written to the ledger directly.
func (a *App) publisher(cfg config.Config) service.EventPublisher {
	ledger := queue.NewLedger(cfg.LedgerPath)
	if !cfg.EventsEnabled {
		return service.LedgerPublisher{Ledger: ledger}
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.stopConsumer = cancel
	go func() {
		if err := queue.StartBookingConsumer(ctx, cfg.RabbitMQURL, ledger); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("booking consumer stopped")
		}
	}()
	return service.NewAMQPPublisher(cfg.RabbitMQURL)
}

// Close stops the consumer and releases connections.
func (a *App) Close() {
	if a.stopConsumer != nil {
		a.stopConsumer()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			logger.Warn().Err(err).Msg("store close failed")
		}
	}
}
