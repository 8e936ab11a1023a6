package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"signal-advisor/config"
	"signal-advisor/internal/advisor"
	"signal-advisor/internal/execution"
	"signal-advisor/internal/ledger"
	"signal-advisor/internal/marketdata"
	"signal-advisor/internal/markethours"
	"signal-advisor/internal/metrics"
	"signal-advisor/internal/model"
	"signal-advisor/internal/notification"
	redisstore "signal-advisor/internal/store/redis"
	sqlitestore "signal-advisor/internal/store/sqlite"
	"signal-advisor/internal/strategy"
)

// components is everything a pass needs, plus the resources to release.
type components struct {
	store     *sqlitestore.Store
	svc       *advisor.Service
	publisher *redisstore.Publisher
	journal   *execution.Journal
}

func (c *components) Close() {
	if c.publisher != nil {
		c.publisher.Close()
	}
	if c.journal != nil {
		c.journal.Close()
	}
	if c.store != nil {
		c.store.Close()
	}
}

func openStore(cfg *config.Config, lg *slog.Logger) (*sqlitestore.Store, error) {
	if dir := filepath.Dir(cfg.SQLitePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	return sqlitestore.Open(sqlitestore.Config{DBPath: cfg.SQLitePath}, lg)
}

// buildComponents wires store, market data, strategy, broker, sinks and
// notifier into an advisor service. m and health may be nil.
func buildComponents(cfg *config.Config, lg *slog.Logger, m *metrics.Metrics, health *metrics.HealthStatus, extraSinks ...model.OrderSink) (*components, error) {
	c := &components{}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	var err error
	if c.store, err = openStore(cfg, lg); err != nil {
		return nil, err
	}

	strategyCfg, err := config.LoadStrategy(cfg.StrategyFile, cfg.Strategy)
	if err != nil {
		return nil, fmt.Errorf("strategy config: %w", err)
	}
	strat, err := strategy.New(strategyCfg, lg)
	if err != nil {
		return nil, err
	}

	source := buildSource(cfg, lg, c.store, m)

	broker, journal, err := buildBroker(cfg, lg)
	if err != nil {
		return nil, err
	}
	c.journal = journal

	var sinks []model.OrderSink
	if cfg.RedisAddr != "" {
		c.publisher = buildPublisher(cfg, lg, m, health)
		if c.publisher != nil {
			sinks = append(sinks, c.publisher)
		}
	}
	sinks = append(sinks, extraSinks...)

	session, err := buildSession(cfg)
	if err != nil {
		return nil, err
	}

	svcCfg := advisor.DefaultConfig()
	svcCfg.Interval = cfg.PassInterval
	svcCfg.NotifyTimeout = cfg.NotifyTimeout
	svcCfg.Session = session
	svcCfg.Ledger = ledger.Config{TargetMultiplier: cfg.LedgerTargetMultiplier}

	opts := []advisor.Option{
		advisor.WithBroker(broker),
		advisor.WithSinks(sinks...),
		advisor.WithNotifier(buildNotifier(cfg, lg)),
	}
	if m != nil {
		opts = append(opts, advisor.WithMetrics(m))
	}
	if health != nil {
		opts = append(opts, advisor.WithHealth(health))
	}
	c.svc = advisor.New(c.store, source, strat, svcCfg, lg, opts...)

	log.Printf("[advisor] strategy=%s broker=%s sinks=%d session=%s",
		strat.Name(), broker.Name(), len(sinks), sessionName(session))
	ok = true
	return c, nil
}

func buildSource(cfg *config.Config, lg *slog.Logger, archive model.BarArchive, m *metrics.Metrics) *marketdata.HTTPSource {
	httpCfg := marketdata.DefaultHTTPConfig(cfg.MarketDataURL)
	httpCfg.Interval = cfg.MarketDataInterval
	httpCfg.Range = cfg.MarketDataRange
	httpCfg.Delay = cfg.FetchDelay

	var opts []marketdata.HTTPOption
	if cfg.ArchiveBars {
		opts = append(opts, marketdata.WithArchive(archive))
	}
	src := marketdata.NewHTTPSource(httpCfg, lg, opts...)
	if m != nil {
		src.OnError = func(string, error) { m.FetchFailures.Inc() }
	}
	return src
}

func buildBroker(cfg *config.Config, lg *slog.Logger) (execution.Broker, *execution.Journal, error) {
	switch cfg.Broker {
	case "paper":
		var opts []execution.PaperOption
		var journal *execution.Journal
		if cfg.JournalPath != "" {
			j, err := execution.NewJournal(cfg.JournalPath, lg)
			if err != nil {
				return nil, nil, fmt.Errorf("paper journal: %w", err)
			}
			journal = j
			opts = append(opts, execution.WithJournal(j))
		}
		return execution.NewPaperBroker(cfg.PaperSlippageBps, lg, opts...), journal, nil
	case "rest":
		return execution.NewRESTBroker(execution.RESTConfig{
			BaseURL:    cfg.BrokerURL,
			APIKey:     cfg.BrokerAPIKey,
			ClientCode: cfg.BrokerClientCode,
			Password:   cfg.BrokerPassword,
			TOTPSecret: cfg.BrokerTOTPSecret,
		}, lg), nil, nil
	default:
		return execution.NoopBroker{Log: lg}, nil, nil
	}
}

// buildPublisher connects the Redis order publisher. A failed connection is
// logged and the advisor continues without it.
func buildPublisher(cfg *config.Config, lg *slog.Logger, m *metrics.Metrics, health *metrics.HealthStatus) *redisstore.Publisher {
	cb := redisstore.NewCircuitBreaker(5, 10*time.Second)
	if m != nil {
		cb.OnStateChange = func(from, to redisstore.State) {
			m.RedisCircuitBreakerState.Set(float64(to))
			if to == redisstore.StateOpen {
				m.RedisCircuitBreakerTrips.Inc()
			}
		}
	}

	pub, err := redisstore.NewPublisher(redisstore.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, cb, lg)
	if err != nil {
		log.Printf("[advisor] WARNING: redis init failed: %v (continuing without redis)", err)
		return nil
	}
	if m != nil {
		pub.OnBuffer = func(n int) { m.RedisBufferedOrders.Add(float64(n)) }
	}
	if health != nil {
		health.SetRedisEnabled(true)
	}
	return pub
}

func buildNotifier(cfg *config.Config, lg *slog.Logger) notification.Notifier {
	var multi notification.Multi
	if cfg.NotifyLog {
		multi = append(multi, notification.NewLogNotifier(lg))
	}
	if cfg.WebhookURL != "" {
		multi = append(multi, notification.NewWebhookNotifier(cfg.WebhookURL, lg))
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		multi = append(multi, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID, lg))
	}
	if cfg.SMTPHost != "" {
		multi = append(multi, notification.NewEmailNotifier(notification.EmailConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.EmailFrom,
			To:       cfg.EmailTo,
		}))
	}
	return multi
}

func buildSession(cfg *config.Config) (*markethours.Session, error) {
	switch strings.ToLower(cfg.MarketSession) {
	case "":
		return nil, nil
	case "nse":
		s := markethours.NSE()
		return &s, nil
	default:
		s, err := markethours.NewSession("custom", cfg.MarketTZ, cfg.MarketOpen, cfg.MarketClose, cfg.MarketHoliday)
		if err != nil {
			return nil, fmt.Errorf("market session: %w", err)
		}
		return &s, nil
	}
}

func sessionName(s *markethours.Session) string {
	if s == nil {
		return "always-on"
	}
	return s.Name
}
