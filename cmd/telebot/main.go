package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ilyaksco/telebot-gemini/pkg/config"
	"github.com/ilyaksco/telebot-gemini/pkg/gemini"
	"github.com/ilyaksco/telebot-gemini/pkg/history"
	"github.com/ilyaksco/telebot-gemini/pkg/logger"
	"github.com/ilyaksco/telebot-gemini/pkg/telegram"
)

func main() {
	configPath := flag.String("config", "config.json", "path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	if cfg.Logging.FileEnabled {
		if ferr := logger.EnableFileLoggingWithRotation(cfg.Logging.FilePath,
			cfg.Logging.RotateMaxSizeMB, cfg.Logging.RotateMaxAgeDays); ferr != nil {
			logger.WarnCF("main", "File logging disabled", map[string]interface{}{
				"error": ferr.Error(),
			})
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := history.Open(cfg.History.PostgresDSN)
	defer store.Close()

	ai := gemini.NewClient(cfg.Gemini, store, cfg.History.Limit)

	channel, err := telegram.NewChannel(cfg.Telegram, ai)
	if err != nil {
		logger.FatalCF("main", "Failed to create Telegram channel", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if err := channel.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.FatalCF("main", "Bot stopped with error", map[string]interface{}{
			"error": err.Error(),
		})
	}

	logger.InfoC("main", "Shutdown complete")
}
