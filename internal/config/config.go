package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. STOCKPULSE_MODEL_BACKEND.
const EnvPrefix = "STOCKPULSE"

// Config holds all application configuration.
type Config struct {
	Tickers    []string         `yaml:"tickers" envconfig:"TICKERS" validate:"required,min=1,dive,required"`
	DataSource DataSourceConfig `yaml:"data_source" envconfig:"DATA_SOURCE"`
	Paths      PathsConfig      `yaml:"paths" envconfig:"PATHS"`
	Model      ModelConfig      `yaml:"model" envconfig:"MODEL"`
	Reconcile  ReconcileConfig  `yaml:"reconcile" envconfig:"RECONCILE"`
	Schedule   ScheduleConfig   `yaml:"schedule" envconfig:"SCHEDULE"`
	Telegram   TelegramConfig   `yaml:"telegram" envconfig:"TELEGRAM"`
	Database   DatabaseConfig   `yaml:"database" envconfig:"DATABASE"`
	Lock       LockConfig       `yaml:"lock" envconfig:"LOCK"`
	Server     ServerConfig     `yaml:"server" envconfig:"SERVER"`
	Log        LogConfig        `yaml:"log" envconfig:"LOG"`
	Proxy      string           `yaml:"proxy" envconfig:"PROXY"`
}

// DataSourceConfig selects and tunes the market data source.
type DataSourceConfig struct {
	Provider         string        `yaml:"provider" envconfig:"PROVIDER" validate:"oneof=yahoo alpaca mock"`
	StartDate        string        `yaml:"start_date" envconfig:"START_DATE" validate:"required"`
	Timeout          time.Duration `yaml:"timeout" envconfig:"TIMEOUT" validate:"gt=0"`
	RatePerSecond    float64       `yaml:"rate_per_second" envconfig:"RATE_PER_SECOND" validate:"gt=0"`
	Burst            int           `yaml:"burst" envconfig:"BURST" validate:"min=1"`
	FailureThreshold uint32        `yaml:"failure_threshold" envconfig:"FAILURE_THRESHOLD" validate:"min=1"`
	Cooldown         time.Duration `yaml:"cooldown" envconfig:"COOLDOWN" validate:"gt=0"`
	AlpacaKey        string        `yaml:"alpaca_key" envconfig:"ALPACA_KEY"`
	AlpacaSecret     string        `yaml:"alpaca_secret" envconfig:"ALPACA_SECRET"`
	MockPrice        float64       `yaml:"mock_price" envconfig:"MOCK_PRICE"`
}

// PathsConfig locates the series files and model artifacts.
type PathsConfig struct {
	HistoricalDir string `yaml:"historical_dir" envconfig:"HISTORICAL_DIR" validate:"required"`
	DataDir       string `yaml:"data_dir" envconfig:"DATA_DIR" validate:"required"`
	CombineDir    string `yaml:"combine_dir" envconfig:"COMBINE_DIR" validate:"required"`
	ModelDir      string `yaml:"model_dir" envconfig:"MODEL_DIR" validate:"required"`
}

// ModelConfig selects the inference backend and window parameters.
type ModelConfig struct {
	Backend    string        `yaml:"backend" envconfig:"BACKEND" validate:"oneof=file serving"`
	ServingURL string        `yaml:"serving_url" envconfig:"SERVING_URL" validate:"omitempty,url"`
	Timeout    time.Duration `yaml:"timeout" envconfig:"TIMEOUT" validate:"gt=0"`
	TimeStep   int           `yaml:"time_step" envconfig:"TIME_STEP" validate:"min=1"`
	Days       int           `yaml:"days" envconfig:"DAYS" validate:"min=1,max=60"`
	Feature    string        `yaml:"feature" envconfig:"FEATURE" validate:"oneof=Open High Low Close Volume"`
}

// ReconcileConfig holds the merge policies.
type ReconcileConfig struct {
	Overlap        string `yaml:"overlap" envconfig:"OVERLAP" validate:"oneof=recent historical"`
	MissingColumns string `yaml:"missing_columns" envconfig:"MISSING_COLUMNS" validate:"oneof=reject zero_fill"`
}

type ScheduleConfig struct {
	DailyCron string `yaml:"daily_cron" envconfig:"DAILY_CRON"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token" envconfig:"BOT_TOKEN"`
	ChatID   string `yaml:"chat_id" envconfig:"CHAT_ID"`
}

type DatabaseConfig struct {
	SQLitePath string `yaml:"sqlite_path" envconfig:"SQLITE_PATH"`
}

// LockConfig enables the Redis lock when RedisAddr is set.
type LockConfig struct {
	RedisAddr string        `yaml:"redis_addr" envconfig:"REDIS_ADDR"`
	TTL       time.Duration `yaml:"ttl" envconfig:"TTL" validate:"gt=0"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" envconfig:"ADDR" validate:"required"`
}

type LogConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" envconfig:"FORMAT" validate:"oneof=console json"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	// Conventional variables honoured without the prefix.
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" && cfg.Telegram.BotToken == "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" && cfg.Telegram.ChatID == "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" && cfg.Proxy == "" {
		cfg.Proxy = v
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if len(c.Tickers) == 0 {
		c.Tickers = []string{"AAPL", "GOOGL", "MSFT", "AMZN", "META", "TSLA"}
	}
	for i, t := range c.Tickers {
		c.Tickers[i] = strings.ToUpper(strings.TrimSpace(t))
	}

	ds := &c.DataSource
	if ds.Provider == "" {
		ds.Provider = "yahoo"
	}
	if ds.StartDate == "" {
		ds.StartDate = "2025-01-01"
	}
	if ds.Timeout == 0 {
		ds.Timeout = 30 * time.Second
	}
	if ds.RatePerSecond == 0 {
		ds.RatePerSecond = 2
	}
	if ds.Burst == 0 {
		ds.Burst = 1
	}
	if ds.FailureThreshold == 0 {
		ds.FailureThreshold = 3
	}
	if ds.Cooldown == 0 {
		ds.Cooldown = time.Minute
	}
	if ds.MockPrice == 0 {
		ds.MockPrice = 100
	}

	if c.Paths.HistoricalDir == "" {
		c.Paths.HistoricalDir = "historical"
	}
	if c.Paths.DataDir == "" {
		c.Paths.DataDir = "data"
	}
	if c.Paths.CombineDir == "" {
		c.Paths.CombineDir = "combine_data"
	}
	if c.Paths.ModelDir == "" {
		c.Paths.ModelDir = "models"
	}

	if c.Model.Backend == "" {
		c.Model.Backend = "file"
	}
	if c.Model.Timeout == 0 {
		c.Model.Timeout = 10 * time.Second
	}
	if c.Model.TimeStep == 0 {
		c.Model.TimeStep = 60
	}
	if c.Model.Days == 0 {
		c.Model.Days = 7
	}
	if c.Model.Feature == "" {
		c.Model.Feature = "Close"
	}

	if c.Reconcile.Overlap == "" {
		c.Reconcile.Overlap = "recent"
	}
	if c.Reconcile.MissingColumns == "" {
		c.Reconcile.MissingColumns = "reject"
	}

	if c.Schedule.DailyCron == "" {
		c.Schedule.DailyCron = "0 30 7 * * 2-6"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/stockpulse.db"
	}
	if c.Lock.TTL == 0 {
		c.Lock.TTL = 2 * time.Minute
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

// StartTime parses data_source.start_date.
func (c *Config) StartTime() (time.Time, error) {
	t, err := time.Parse("2006-01-02", c.DataSource.StartDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("data_source.start_date: %w", err)
	}
	return t, nil
}

// TelegramEnabled reports whether both Telegram credentials are set.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}

// CronParser parses the six-field schedules used by the scheduler.
var CronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks field constraints and cross-field requirements.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.StartTime(); err != nil {
		return err
	}
	if c.DataSource.Provider == "alpaca" && (c.DataSource.AlpacaKey == "" || c.DataSource.AlpacaSecret == "") {
		return fmt.Errorf("data_source.alpaca_key and data_source.alpaca_secret are required for the alpaca provider")
	}
	if c.Model.Backend == "serving" && c.Model.ServingURL == "" {
		return fmt.Errorf("model.serving_url is required for the serving backend")
	}
	if _, err := CronParser.Parse(c.Schedule.DailyCron); err != nil {
		return fmt.Errorf("schedule.daily_cron: %w", err)
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	return nil
}
