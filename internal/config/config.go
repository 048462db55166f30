package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"CoinOracle/internal/calculator"
)

// DefaultInstruments are the symbols predictions may be created for.
var DefaultInstruments = []string{"BTC", "ETH", "SOL", "ADA", "DOT", "LINK", "MATIC", "AVAX", "UNI", "ATOM"}

// Config holds all application configuration.
type Config struct {
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // json | console
	} `yaml:"log"`
	DataSource struct {
		Provider       string        `yaml:"provider"` // coingecko | yahoo | mock
		BaseURL        string        `yaml:"base_url"`
		APIKey         string        `yaml:"api_key"`
		Timeout        time.Duration `yaml:"timeout"`
		RequestsPerSec float64       `yaml:"requests_per_sec"`
		Burst          int           `yaml:"burst"`
		MaxRetryTime   time.Duration `yaml:"max_retry_time"`
		CandleLimit    int           `yaml:"candle_limit"`
	} `yaml:"data_source"`
	Sentiment struct {
		URL      string `yaml:"url"`
		Disabled bool   `yaml:"disabled"`
	} `yaml:"sentiment"`
	Cache struct {
		RedisAddr     string        `yaml:"redis_addr"` // empty disables caching
		RedisPassword string        `yaml:"redis_password"`
		RedisDB       int           `yaml:"redis_db"`
		QuoteTTL      time.Duration `yaml:"quote_ttl"`
		BarsTTL       time.Duration `yaml:"bars_ttl"`
	} `yaml:"cache"`
	Database struct {
		Driver string `yaml:"driver"` // sqlite | postgres | memory
		DSN    string `yaml:"dsn"`
	} `yaml:"database"`
	Schedule struct {
		SweepCron    string        `yaml:"sweep_cron"`
		WarmUp       time.Duration `yaml:"warm_up"`
		SweepTimeout time.Duration `yaml:"sweep_timeout"`
	} `yaml:"schedule"`
	Evaluation struct {
		Workers      int           `yaml:"workers"`
		FetchTimeout time.Duration `yaml:"fetch_timeout"`
	} `yaml:"evaluation"`
	Signals struct {
		Mode string `yaml:"mode"` // indicators | simulated
		Seed int64  `yaml:"seed"` // 0 seeds from the clock
	} `yaml:"signals"`
	Indicators  calculator.Params `yaml:"indicators"`
	Instruments []string          `yaml:"instruments"`
	Metrics     struct {
		Addr string `yaml:"addr"` // empty disables the endpoint
	} `yaml:"metrics"`
	Telegram struct {
		Enabled  bool   `yaml:"enabled"`
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
		Commands bool   `yaml:"commands"`
	} `yaml:"telegram"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides
// and defaults. A .env file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("could not load .env")
	}

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

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"LOG_LEVEL":          &c.Log.Level,
		"LOG_FORMAT":         &c.Log.Format,
		"DATA_PROVIDER":      &c.DataSource.Provider,
		"DATA_BASE_URL":      &c.DataSource.BaseURL,
		"COINGECKO_API_KEY":  &c.DataSource.APIKey,
		"FEAR_GREED_URL":     &c.Sentiment.URL,
		"REDIS_ADDR":         &c.Cache.RedisAddr,
		"REDIS_PASSWORD":     &c.Cache.RedisPassword,
		"DB_DRIVER":          &c.Database.Driver,
		"DB_DSN":             &c.Database.DSN,
		"SWEEP_CRON":         &c.Schedule.SweepCron,
		"SIGNAL_MODE":        &c.Signals.Mode,
		"METRICS_ADDR":       &c.Metrics.Addr,
		"TELEGRAM_BOT_TOKEN": &c.Telegram.BotToken,
		"TELEGRAM_CHAT_ID":   &c.Telegram.ChatID,
		"HTTPS_PROXY":        &c.Proxy,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("INSTRUMENTS"); v != "" {
		c.Instruments = strings.Split(v, ",")
	}
	if v := os.Getenv("EVAL_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("EVAL_WORKERS: %w", err)
		}
		c.Evaluation.Workers = n
	}
	if v := os.Getenv("SIGNAL_SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("SIGNAL_SEED: %w", err)
		}
		c.Signals.Seed = n
	}
	if v := os.Getenv("SWEEP_WARM_UP"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SWEEP_WARM_UP: %w", err)
		}
		c.Schedule.WarmUp = d
	}
	if v := os.Getenv("TELEGRAM_ENABLED"); v != "" {
		c.Telegram.Enabled = v == "true" || v == "1"
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.DataSource.Provider == "" {
		c.DataSource.Provider = "coingecko"
	}
	if c.DataSource.Timeout == 0 {
		c.DataSource.Timeout = 15 * time.Second
	}
	if c.DataSource.RequestsPerSec == 0 {
		c.DataSource.RequestsPerSec = 0.5
	}
	if c.DataSource.Burst == 0 {
		c.DataSource.Burst = 3
	}
	if c.DataSource.MaxRetryTime == 0 {
		c.DataSource.MaxRetryTime = 30 * time.Second
	}
	if c.DataSource.CandleLimit == 0 {
		c.DataSource.CandleLimit = 100
	}
	if c.Cache.QuoteTTL == 0 {
		c.Cache.QuoteTTL = 30 * time.Second
	}
	if c.Cache.BarsTTL == 0 {
		c.Cache.BarsTTL = 2 * time.Minute
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = "data/coin_oracle.db"
	}
	if c.Schedule.SweepCron == "" {
		c.Schedule.SweepCron = "@every 5m"
	}
	if c.Schedule.WarmUp == 0 {
		c.Schedule.WarmUp = 30 * time.Second
	}
	if c.Schedule.SweepTimeout == 0 {
		c.Schedule.SweepTimeout = 4 * time.Minute
	}
	if c.Evaluation.Workers == 0 {
		c.Evaluation.Workers = 4
	}
	if c.Evaluation.FetchTimeout == 0 {
		c.Evaluation.FetchTimeout = 20 * time.Second
	}
	if c.Signals.Mode == "" {
		c.Signals.Mode = "indicators"
	}
	c.Indicators = withDefaultParams(c.Indicators)
	if len(c.Instruments) == 0 {
		c.Instruments = append([]string(nil), DefaultInstruments...)
	}
	for i, s := range c.Instruments {
		c.Instruments[i] = strings.ToUpper(strings.TrimSpace(s))
	}
}

// withDefaultParams fills every unset indicator period from calculator.DefaultParams.
func withDefaultParams(p calculator.Params) calculator.Params {
	d := calculator.DefaultParams()
	for _, f := range []struct {
		v   *int
		def int
	}{
		{&p.SMAPeriod, d.SMAPeriod}, {&p.EMAPeriod, d.EMAPeriod}, {&p.RSIPeriod, d.RSIPeriod},
		{&p.MACDFast, d.MACDFast}, {&p.MACDSlow, d.MACDSlow}, {&p.MACDSignal, d.MACDSignal},
		{&p.BBPeriod, d.BBPeriod}, {&p.ATRPeriod, d.ATRPeriod}, {&p.StochK, d.StochK}, {&p.StochD, d.StochD},
	} {
		if *f.v <= 0 {
			*f.v = f.def
		}
	}
	if p.BBStdDev <= 0 {
		p.BBStdDev = d.BBStdDev
	}
	return p
}

// sweepParser accepts the same specs as the scheduler's cron.WithSeconds.
var sweepParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks that all required fields are set and consistent.
func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.DataSource.Provider {
	case "coingecko", "yahoo", "mock":
	default:
		return fmt.Errorf("data_source.provider %q is not one of coingecko, yahoo, mock", c.DataSource.Provider)
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for %s", c.Database.Driver)
		}
	case "memory":
	default:
		return fmt.Errorf("database.driver %q is not one of sqlite, postgres, memory", c.Database.Driver)
	}
	if _, err := sweepParser.Parse(c.Schedule.SweepCron); err != nil {
		return fmt.Errorf("schedule.sweep_cron: %w", err)
	}
	if c.Evaluation.Workers <= 0 {
		return fmt.Errorf("evaluation.workers must be positive")
	}
	switch c.Signals.Mode {
	case "indicators", "simulated":
	default:
		return fmt.Errorf("signals.mode %q is not one of indicators, simulated", c.Signals.Mode)
	}
	for _, s := range c.Instruments {
		if s == "" {
			return fmt.Errorf("instruments: empty symbol")
		}
	}
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required")
		}
		if _, err := strconv.ParseInt(c.Telegram.ChatID, 10, 64); err != nil {
			return fmt.Errorf("telegram.chat_id must be numeric: %w", err)
		}
	}
	return nil
}
