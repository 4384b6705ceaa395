package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"StockPulse/internal/config"
	"StockPulse/internal/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "stockpulse",
	Short: "Stock price reconcile, 7-day forecast and trading advice",
	Long: `StockPulse refreshes daily OHLCV data for a set of tickers, reconciles it
with stored history, runs a per-ticker forecasting model over the trailing
window and turns the 7-day forecast into a BUY, SELL or HOLD recommendation.`,
	SilenceUsage: true,
}

func init() {
	defaultPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		defaultPath = v
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultPath, "Path to the YAML config file")
}

// setup loads .env and the config file, validates it and configures logging.
func setup() (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	if err := logging.Setup(cfg.Log.Level, cfg.Log.Format); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withApp runs fn against a fully wired app.
func withApp(ctx context.Context, fn func(ctx context.Context, a *app) error) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("stockpulse failed")
		os.Exit(1)
	}
}
