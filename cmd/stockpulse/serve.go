package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"StockPulse/internal/httpapi"
	"StockPulse/internal/notifier"
	"StockPulse/internal/scheduler"
)

var runOnStart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daily schedule, the Telegram bot and the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return withApp(ctx, serve)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&runOnStart, "run-on-start", false, "Forecast all tickers immediately on start")
}

func serve(ctx context.Context, a *app) error {
	cfg := a.cfg

	var sender scheduler.Sender
	var tn *notifier.TelegramNotifier
	if cfg.TelegramEnabled() {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
		sender = tn
	} else {
		log.Warn().Msg("telegram not configured, reports are logged only")
	}

	sched := scheduler.NewScheduler(ctx, a.pipeline, sender, cfg.Tickers)
	if err := sched.RegisterDaily(cfg.Schedule.DailyCron); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Info().Msg("telegram polling started")
	}
	if runOnStart {
		go sched.RunAllNow()
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           httpapi.NewServer(a.pipeline, cfg.Tickers, a.metrics.Handler(), 2*cfg.Model.Timeout+cfg.DataSource.Timeout).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received, stopping")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info().Msg("stockpulse stopped")
	return nil
}
