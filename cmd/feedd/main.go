package main

import (
	"context"
	"errors"
	"flag"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"marketfeed-go/internal/app"
	"marketfeed-go/internal/config"
	"marketfeed-go/internal/metrics"
	"marketfeed-go/internal/util"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config")
	summaryEvery := flag.Duration("summary", 10*time.Second, "interval between summary log lines (0 disables)")
	flag.Parse()

	config.LoadEnv()
	log := util.NewLogger(os.Getenv("LOG_LEVEL"))

	cfg, err := config.Load(*configPath)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn().Str("path", *configPath).Msg("config not found, using defaults")
		cfg, err = config.Default(), nil
	}
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	log = util.NewLogger(cfg.App.LogLevel).With().Str("app", cfg.App.Name).Str("env", cfg.App.Env).Logger()

	srv := metrics.Serve(cfg.App.MetricsAddr)
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	feed, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("build feed client")
	}

	if err := <-feed.Start(ctx); err != nil {
		log.Warn().Err(err).Msg("initial connect failed, retrying in background")
	}
	log.Info().Str("mode", feed.Manager.Mode()).Msg("feed client started")

	hup := make(chan os.Signal, 1)
	ossignal.Notify(hup, syscall.SIGHUP)
	defer ossignal.Stop(hup)

	var summary <-chan time.Time
	if *summaryEvery > 0 {
		ticker := time.NewTicker(*summaryEvery)
		defer ticker.Stop()
		summary = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutting down")
			if err := feed.Close(); err != nil {
				log.Error().Err(err).Msg("shutdown")
			}
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			_ = srv.Shutdown(shutdownCtx)
			done()
			return
		case <-hup:
			go func() {
				if err := <-feed.Reconnect(ctx); err != nil {
					log.Warn().Err(err).Msg("manual reconnect failed")
				}
			}()
		case <-summary:
			feed.Summary()
		}
	}
}
