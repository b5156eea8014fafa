package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/showtime-chatbot/internal/app"
	"github.com/iliyamo/showtime-chatbot/internal/config"
	"github.com/iliyamo/showtime-chatbot/internal/handler"
	"github.com/iliyamo/showtime-chatbot/internal/logger"
	"github.com/iliyamo/showtime-chatbot/internal/model"
	"github.com/iliyamo/showtime-chatbot/internal/repository"
	"github.com/iliyamo/showtime-chatbot/internal/router"
)

func main() {
	seed := flag.String("seed", "", "replace the MySQL showtimes table with this CSV file and exit")
	flag.Parse()

	cfg := config.Load()
	if err := logger.Init(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: cfg.LogOutput, FilePath: cfg.LogFile}); err != nil {
		logger.Fatal().Err(err).Msg("logger init failed")
	}

	if *seed != "" {
		if err := seedStore(cfg, *seed); err != nil {
			logger.Fatal().Err(err).Msg("seed failed")
		}
		return
	}

	ctx := context.Background()
	a, err := app.Build(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	defer a.Close()

	e := echo.New()
	e.HideBanner = true
	router.RegisterRoutes(e)
	h := router.Handlers{
		Chat:      handler.NewChatHandler(a.Conversation, cfg.ChatTimeout),
		Showtimes: handler.NewShowtimeHandler(a.Store),
		Bookings:  handler.NewBookingHandler(a.Booking),
	}
	if a.Movies != nil {
		h.Movies = handler.NewMovieHandler(a.Movies)
	}
	router.RegisterAPI(e, h, config.LoadRateLimitConfig(), cfg.MovieCache, a.Redis)

	addr := ":" + cfg.Port
	go func() {
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("listening")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	sctx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(sctx); err != nil {
		logger.Error().Err(err).Msg("forced shutdown")
	}
}

// seedStore loads every record of a CSV file into MySQL.
func seedStore(cfg config.Config, path string) error {
	src, err := repository.NewCSVStore(path)
	if err != nil {
		return err
	}
	recs, err := src.Find(context.Background(), model.ShowtimeKey{})
	if err != nil {
		return err
	}
	cfg.StoreBackend = config.StoreMySQL
	dst, err := app.OpenStore(cfg)
	if err != nil {
		return err
	}
	defer dst.Close()
	if err := dst.(*repository.MySQLStore).Replace(context.Background(), recs); err != nil {
		return err
	}
	logger.Info().Int("records", len(recs)).Str("from", path).Msg("showtimes seeded")
	return nil
}
