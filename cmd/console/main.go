package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/iliyamo/showtime-chatbot/internal/app"
	"github.com/iliyamo/showtime-chatbot/internal/config"
	"github.com/iliyamo/showtime-chatbot/internal/logger"
)

func main() {
	cfg := config.Load()
	// logs go to a file so they do not interleave with the prompt
	if err := logger.Init(logger.Config{Level: cfg.LogLevel, Format: "console", Output: "file", FilePath: cfg.LogFile}); err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}

	ctx := context.Background()
	a, err := app.Build(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	defer a.Close()

	session := uuid.NewString()
	in := bufio.NewScanner(os.Stdin)
	fmt.Println("Welcome to the Movie Chatbot! Type 'exit' to quit.")
	for {
		fmt.Print("> ")
		if !in.Scan() {
			break
		}
		q := strings.TrimSpace(in.Text())
		if q == "" {
			continue
		}
		if l := strings.ToLower(q); l == "exit" || l == "quit" {
			fmt.Println("Goodbye!")
			return
		}
		tctx, cancel := context.WithTimeout(ctx, cfg.ChatTimeout)
		rep := a.Conversation.Turn(tctx, session, q)
		cancel()
		fmt.Println(rep.Text)
	}
}
