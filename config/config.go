package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"signal-advisor/internal/strategy"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	LogLevel string

	// Storage
	SQLitePath  string
	ArchiveBars bool   // save every fetched bar set into SQLite
	ParquetDir  string // default output directory for `export`

	// Strategy
	Strategy               string // macd | rsi | fibonacci
	StrategyFile           string // optional YAML overlay on the variant defaults
	LedgerTargetMultiplier float64

	// Market data
	MarketDataURL      string
	MarketDataInterval string
	MarketDataRange    string
	FetchDelay         time.Duration

	// Loop
	PassInterval  time.Duration
	MarketSession string // "" (always on), "NSE", or "custom"
	MarketTZ      string
	MarketOpen    string
	MarketClose   string
	MarketHoliday []string

	// HTTP
	APIAddr      string
	APIRateLimit float64 // requests/sec per client; 0 disables
	MetricsAddr  string

	// Redis order publisher (disabled when RedisAddr is empty)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Broker
	Broker           string // noop | paper | rest
	PaperSlippageBps int64
	JournalPath      string
	BrokerURL        string
	BrokerAPIKey     string
	BrokerClientCode string
	BrokerPassword   string
	BrokerTOTPSecret string

	// Notification
	NotifyLog        bool
	WebhookURL       string
	TelegramBotToken string
	TelegramChatID   string
	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	EmailFrom        string
	EmailTo          []string
	NotifyTimeout    time.Duration
}

// Load reads configuration from environment variables (optionally via .env)
// with sensible defaults.
func Load() (*Config, error) {
	// A missing .env is fine; the environment alone is enough.
	_ = godotenv.Load()

	cfg := &Config{
		LogLevel: getEnv("LOG_LEVEL", "info"),

		SQLitePath:  getEnv("SQLITE_PATH", "data/advisor.db"),
		ArchiveBars: getEnvBool("ARCHIVE_BARS", true),
		ParquetDir:  getEnv("PARQUET_DIR", "data/parquet"),

		Strategy:               strings.ToLower(getEnv("STRATEGY", string(strategy.KindMACD))),
		StrategyFile:           getEnv("STRATEGY_FILE", ""),
		LedgerTargetMultiplier: getEnvFloat("LEDGER_TARGET_MULTIPLIER", 1.2),

		MarketDataURL:      getEnv("MARKETDATA_URL", "http://localhost:8000"),
		MarketDataInterval: getEnv("MARKETDATA_INTERVAL", "1d"),
		MarketDataRange:    getEnv("MARKETDATA_RANGE", "3mo"),
		FetchDelay:         getEnvDuration("FETCH_DELAY", time.Second),

		PassInterval:  getEnvDuration("PASS_INTERVAL", 10*time.Second),
		MarketSession: getEnv("MARKET_SESSION", ""),
		MarketTZ:      getEnv("MARKET_TZ", "America/New_York"),
		MarketOpen:    getEnv("MARKET_OPEN", "09:30"),
		MarketClose:   getEnv("MARKET_CLOSE", "16:00"),
		MarketHoliday: getEnvList("MARKET_HOLIDAYS"),

		APIAddr:      getEnv("API_ADDR", ":8080"),
		APIRateLimit: getEnvFloat("API_RATE_LIMIT", 20),
		MetricsAddr:  getEnv("METRICS_ADDR", ":9090"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		Broker:           strings.ToLower(getEnv("BROKER", "noop")),
		PaperSlippageBps: int64(getEnvInt("PAPER_SLIPPAGE_BPS", 5)),
		JournalPath:      getEnv("JOURNAL_PATH", ""),
		BrokerURL:        getEnv("BROKER_URL", ""),
		BrokerAPIKey:     getEnv("BROKER_API_KEY", ""),
		BrokerClientCode: getEnv("BROKER_CLIENT_CODE", ""),
		BrokerPassword:   getEnv("BROKER_PASSWORD", ""),
		BrokerTOTPSecret: getEnv("BROKER_TOTP_SECRET", ""),

		NotifyLog:        getEnvBool("NOTIFY_LOG", true),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		SMTPHost:         getEnv("SMTP_HOST", ""),
		SMTPPort:         getEnvInt("SMTP_PORT", 587),
		SMTPUsername:     getEnv("SMTP_USERNAME", ""),
		SMTPPassword:     getEnv("SMTP_PASSWORD", ""),
		EmailFrom:        getEnv("EMAIL_FROM", ""),
		EmailTo:          getEnvList("EMAIL_TO"),
		NotifyTimeout:    getEnvDuration("NOTIFY_TIMEOUT", 15*time.Second),
	}
	return cfg, cfg.Validate()
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	var errs []error
	switch c.Broker {
	case "noop", "paper":
	case "rest":
		if c.BrokerURL == "" || c.BrokerClientCode == "" || c.BrokerTOTPSecret == "" {
			errs = append(errs, errors.New("BROKER=rest requires BROKER_URL, BROKER_CLIENT_CODE and BROKER_TOTP_SECRET"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown BROKER %q", c.Broker))
	}
	switch strings.ToLower(c.MarketSession) {
	case "", "nse", "custom":
	default:
		errs = append(errs, fmt.Errorf("unknown MARKET_SESSION %q", c.MarketSession))
	}
	if c.PassInterval <= 0 {
		errs = append(errs, fmt.Errorf("PASS_INTERVAL must be positive, got %s", c.PassInterval))
	}
	if c.LedgerTargetMultiplier <= 0 {
		errs = append(errs, fmt.Errorf("LEDGER_TARGET_MULTIPLIER must be positive, got %v", c.LedgerTargetMultiplier))
	}
	if c.SMTPHost != "" && (c.EmailFrom == "" || len(c.EmailTo) == 0) {
		errs = append(errs, errors.New("SMTP_HOST requires EMAIL_FROM and EMAIL_TO"))
	}
	return errors.Join(errs...)
}

// LoadStrategy returns the defaults for kind, overlaid with the YAML file at
// path when path is non-empty. A `kind` key in the file wins over kind.
func LoadStrategy(path, kind string) (strategy.Config, error) {
	cfg := strategy.DefaultConfig(strategy.Kind(strings.ToLower(kind)))
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read strategy file: %w", err)
	}

	// Peek at kind first so the right variant defaults sit under the overlay.
	var head struct {
		Kind strategy.Kind `yaml:"kind"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return cfg, fmt.Errorf("parse strategy file: %w", err)
	}
	if head.Kind != "" {
		cfg = strategy.DefaultConfig(head.Kind)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse strategy file: %w", err)
	}
	return cfg, cfg.Validate()
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		log.Printf("[config] invalid int for %s: %q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		log.Printf("[config] invalid float for %s: %q, using %v", key, v, fallback)
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		log.Printf("[config] invalid bool for %s: %q, using %v", key, v, fallback)
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		log.Printf("[config] invalid duration for %s: %q, using %s", key, v, fallback)
		return fallback
	}
	return d
}

// getEnvList splits a comma-separated variable, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, p := range strings.Split(os.Getenv(key), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
