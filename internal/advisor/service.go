// Package advisor runs the trading pass end to end: load tickers, fetch
// bars, generate orders, commit the ledger plan, then fan the committed
// orders out to the broker, the order sinks and the notifier.
//
// Only the first four steps can fail a pass. Everything after the commit
// is best effort and logged.
package advisor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"signal-advisor/internal/execution"
	"signal-advisor/internal/ledger"
	"signal-advisor/internal/logger"
	"signal-advisor/internal/markethours"
	"signal-advisor/internal/marketdata"
	"signal-advisor/internal/metrics"
	"signal-advisor/internal/model"
	"signal-advisor/internal/notification"
	"signal-advisor/internal/store"
	"signal-advisor/internal/strategy"
)

// Config controls the pass loop.
type Config struct {
	// Interval is the delay between the end of one pass and the start of
	// the next.
	Interval time.Duration
	// NotifyTimeout bounds advisory delivery.
	NotifyTimeout time.Duration
	// Session, if set, suspends passes while the market is closed.
	Session *markethours.Session
	Ledger  ledger.Config
}

// DefaultConfig returns a ten-second loop with no market-hours gating.
func DefaultConfig() Config {
	return Config{
		Interval:      10 * time.Second,
		NotifyTimeout: 15 * time.Second,
		Ledger:        ledger.DefaultConfig(),
	}
}

// Service wires the pass pipeline together.
type Service struct {
	store    store.Store
	source   marketdata.Source
	strategy strategy.Strategy
	broker   execution.Broker
	sinks    []model.OrderSink
	notifier notification.Notifier
	metrics  *metrics.Metrics
	health   *metrics.HealthStatus
	cfg      Config
	log      *slog.Logger
	now      func() time.Time
}

// Option customises a Service.
type Option func(*Service)

func WithBroker(b execution.Broker) Option { return func(s *Service) { s.broker = b } }

// WithSinks adds order sinks that receive every committed batch.
func WithSinks(sinks ...model.OrderSink) Option {
	return func(s *Service) { s.sinks = append(s.sinks, sinks...) }
}

func WithNotifier(n notification.Notifier) Option { return func(s *Service) { s.notifier = n } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

func WithHealth(h *metrics.HealthStatus) Option { return func(s *Service) { s.health = h } }

// WithClock overrides the pass clock. Backtests drive it from the replay cursor.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// New creates a Service. Without WithBroker orders are routed to a NoopBroker.
func New(st store.Store, src marketdata.Source, strat strategy.Strategy, cfg Config, log *slog.Logger, opts ...Option) *Service {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Ledger.TargetMultiplier == 0 {
		cfg.Ledger = ledger.DefaultConfig()
	}
	s := &Service{
		store:    st,
		source:   src,
		strategy: strat,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.broker == nil {
		s.broker = execution.NoopBroker{Log: log}
	}
	return s
}

// Report describes one completed pass.
type Report struct {
	PassID   string
	Started  time.Time
	Finished time.Time

	Tickers  int
	Orders   []model.Order // as committed, with IDs and position links
	Advanced []model.Ticker
	Skipped  map[string]strategy.SkipReason
	Warnings []ledger.Warning
	Counts   map[ledger.Kind]int

	BrokerFailures int
}

// RunPass executes one pass. An error means nothing was committed.
func (s *Service) RunPass(ctx context.Context) (Report, error) {
	passID := logger.NewPassID()
	ctx = logger.WithPassID(ctx, passID)
	rep := Report{PassID: passID, Started: s.now()}
	log := s.log.With(logger.LogWithPass(ctx)...)

	err := s.runPass(ctx, log, &rep)
	rep.Finished = s.now()

	if s.metrics != nil {
		s.metrics.ObservePass(rep.Started, rep.Finished, err)
	}
	if s.health != nil {
		s.health.RecordPass(rep.Finished, err)
	}
	if err != nil {
		log.Error("pass failed", slog.Any("err", err))
		return rep, err
	}
	log.Info("pass complete",
		slog.Int("tickers", rep.Tickers),
		slog.Int("orders", len(rep.Orders)),
		slog.Int("advanced", len(rep.Advanced)),
		slog.Int("skipped", len(rep.Skipped)),
		slog.Int("warnings", len(rep.Warnings)),
		slog.Duration("took", rep.Finished.Sub(rep.Started)))
	return rep, nil
}

func (s *Service) runPass(ctx context.Context, log *slog.Logger, rep *Report) error {
	tickers, err := s.store.ListTickers(ctx)
	if err != nil {
		return fmt.Errorf("advisor: list tickers: %w", err)
	}
	rep.Tickers = len(tickers)
	if len(tickers) == 0 {
		log.Debug("no tickers registered")
		return nil
	}

	bars := s.source.Fetch(ctx, tickers)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("advisor: fetch: %w", err)
	}
	snaps := make([]strategy.Snapshot, 0, len(tickers))
	for _, t := range tickers {
		snaps = append(snaps, strategy.Snapshot{Ticker: t, Bars: bars[t.Symbol]})
	}

	open, err := s.store.OpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("advisor: open positions: %w", err)
	}

	pass := s.strategy.GenerateOrders(snaps, open)
	rep.Skipped = pass.Skipped
	rep.Advanced = pass.Advanced

	plan := ledger.NewPlan(pass.Orders, open, s.cfg.Ledger, s.now())
	rep.Warnings = plan.Warnings
	rep.Counts = plan.Counts()

	if plan.Empty() && len(pass.Advanced) == 0 {
		s.recordSkips(pass.Skipped)
		return nil
	}

	commitStart := time.Now()
	committed, err := s.store.Commit(ctx, pass.Advanced, plan)
	if err != nil {
		return fmt.Errorf("advisor: commit: %w", err)
	}
	rep.Orders = committed
	s.recordCommit(commitStart, committed, pass, plan)

	for _, w := range plan.Warnings {
		log.Warn("unresolved order", slog.String("detail", w.String()))
	}
	for _, o := range committed {
		log.Info("order advised",
			slog.String("symbol", o.Symbol),
			slog.String("type", string(o.Type)),
			slog.Float64("price", o.Price),
			slog.Float64("stop_loss", o.StopLoss),
			slog.Int64("qty", o.Quantity),
			slog.String("notes", o.Notes))
	}

	if len(committed) == 0 {
		return nil
	}
	rep.BrokerFailures = s.submit(ctx, log, committed)
	s.publish(ctx, log, committed)
	s.notify(ctx, log, committed)
	return nil
}

func (s *Service) submit(ctx context.Context, log *slog.Logger, orders []model.Order) int {
	failures := 0
	for _, o := range orders {
		ack, err := s.broker.Submit(ctx, o)
		if err != nil {
			failures++
			if s.metrics != nil {
				s.metrics.BrokerFailures.Inc()
			}
			log.Warn("broker submit failed",
				slog.String("broker", s.broker.Name()),
				slog.Int64("order_id", o.ID),
				slog.String("symbol", o.Symbol),
				slog.Any("err", err))
			continue
		}
		log.Debug("broker ack",
			slog.String("broker", s.broker.Name()),
			slog.Int64("order_id", o.ID),
			slog.String("broker_order_id", ack.BrokerOrderID),
			slog.String("status", ack.Status))
	}
	return failures
}

func (s *Service) publish(ctx context.Context, log *slog.Logger, orders []model.Order) {
	for _, sink := range s.sinks {
		if err := sink.PublishOrders(ctx, orders); err != nil {
			if s.metrics != nil {
				s.metrics.SinkFailures.Inc()
			}
			log.Warn("order sink publish failed", slog.Any("err", err))
		}
	}
}

func (s *Service) notify(ctx context.Context, log *slog.Logger, orders []model.Order) {
	if s.notifier == nil {
		return
	}
	timeout := s.cfg.NotifyTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	nctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.notifier.Send(nctx, notification.BuildAdvisory(orders, s.now())); err != nil {
		if s.metrics != nil {
			s.metrics.NotifyFailures.Inc()
		}
		log.Warn("advisory notification failed", slog.Any("err", err))
	}
}

func (s *Service) recordSkips(skipped map[string]strategy.SkipReason) {
	if s.metrics == nil {
		return
	}
	for _, reason := range skipped {
		s.metrics.SkippedTotal.WithLabelValues(string(reason)).Inc()
	}
}

func (s *Service) recordCommit(start time.Time, committed []model.Order, pass strategy.Pass, plan ledger.Plan) {
	s.recordSkips(pass.Skipped)
	if s.metrics == nil {
		return
	}
	s.metrics.StoreCommitDur.Observe(time.Since(start).Seconds())
	s.metrics.TickersProcessed.Add(float64(len(pass.Advanced)))
	s.metrics.UnresolvedTotal.Add(float64(len(plan.Warnings)))
	for _, o := range committed {
		s.metrics.OrdersTotal.WithLabelValues(string(o.Type)).Inc()
	}
}

// Run executes passes until ctx is cancelled, waiting Interval between
// them. With a Session configured, closed hours are slept through.
func (s *Service) Run(ctx context.Context) error {
	s.log.Info("advisor loop started",
		slog.String("strategy", s.strategy.Name()),
		slog.Duration("interval", s.cfg.Interval))

	for {
		if wait := s.untilOpen(); wait > 0 {
			s.log.Info("market closed", slog.String("status", s.cfg.Session.StatusString(s.now())))
			if !sleep(ctx, wait) {
				return nil
			}
			continue
		}

		if _, err := s.RunPass(ctx); err != nil && ctx.Err() != nil {
			return nil
		}

		if !sleep(ctx, s.cfg.Interval) {
			s.log.Info("advisor loop stopped")
			return nil
		}
	}
}

func (s *Service) untilOpen() time.Duration {
	if s.cfg.Session == nil {
		return 0
	}
	now := s.now()
	open := s.cfg.Session.IsOpen(now)
	if s.health != nil {
		s.health.SetMarketOpen(open)
	}
	if s.metrics != nil {
		v := 0.0
		if open {
			v = 1
		}
		s.metrics.MarketState.Set(v)
	}
	if open {
		return 0
	}
	return s.cfg.Session.TimeUntilOpen(now)
}

// sleep waits for d or until ctx is done. It reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
