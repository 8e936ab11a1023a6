// Package redis publishes committed orders to Redis streams and pub/sub so
// downstream consumers (dashboards, execution bridges) can follow a pass
// without polling the database.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"signal-advisor/internal/model"
)

const (
	// Per-symbol order stream, trimmed to roughly this many entries.
	orderStreamMaxLen = 5000
	defaultLatestTTL  = 24 * time.Hour
	defaultMaxBuffer  = 10000

	// OrdersChannel carries every committed order as JSON.
	OrdersChannel = "pub:orders"
)

// StreamKey is the Redis stream holding a symbol's order history.
func StreamKey(symbol string) string { return "orders:" + symbol }

// LatestKey holds a symbol's most recent order.
func LatestKey(symbol string) string { return "order:latest:" + symbol }

// Config configures the Redis connection.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// writeFunc delivers a batch of orders to the backend.
type writeFunc func(ctx context.Context, orders []model.Order) error

// Publisher is a model.OrderSink backed by Redis. Writes go through a
// CircuitBreaker; while it is open, orders are buffered in memory (oldest
// dropped past the limit) and replayed ahead of the next successful batch.
type Publisher struct {
	client *goredis.Client
	cb     *CircuitBreaker
	write  writeFunc
	log    *slog.Logger

	mu     sync.Mutex
	buffer []model.Order
	maxBuf int

	// OnBuffer, if set, is called with the number of orders buffered.
	OnBuffer func(n int)
}

var _ model.OrderSink = (*Publisher)(nil)

// NewPublisher connects to Redis and pings the server.
func NewPublisher(cfg Config, cb *CircuitBreaker, log *slog.Logger) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	p := newPublisher(cb, log, nil)
	p.client = client
	p.write = p.pipeline
	p.log.Info("redis publisher connected", slog.String("addr", cfg.Addr))
	return p, nil
}

func newPublisher(cb *CircuitBreaker, log *slog.Logger, write writeFunc) *Publisher {
	if cb == nil {
		cb = NewCircuitBreaker(5, 10*time.Second)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{cb: cb, write: write, log: log, maxBuf: defaultMaxBuffer}
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// PublishOrders sends orders, prefixed by anything buffered earlier.
// An open breaker is not an error: the orders are buffered instead.
func (p *Publisher) PublishOrders(ctx context.Context, orders []model.Order) error {
	p.mu.Lock()
	batch := append(p.buffer, orders...)
	p.buffer = nil
	p.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	err := p.cb.Do(ctx, func(ctx context.Context) error {
		return p.write(ctx, batch)
	})
	if err == nil {
		return nil
	}

	p.requeue(batch)
	if errors.Is(err, ErrCircuitOpen) {
		return nil
	}
	return fmt.Errorf("redis publish orders: %w", err)
}

// Pending returns the number of orders waiting to be replayed.
func (p *Publisher) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

func (p *Publisher) requeue(batch []model.Order) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buffer = append(batch, p.buffer...)
	if over := len(p.buffer) - p.maxBuf; over > 0 {
		p.log.Warn("order buffer full, dropping oldest", slog.Int("dropped", over))
		p.buffer = p.buffer[over:]
	}
	if p.OnBuffer != nil {
		p.OnBuffer(len(batch))
	}
}

// pipeline writes each order to its symbol stream, the latest-order key and
// the orders channel in one round trip.
func (p *Publisher) pipeline(ctx context.Context, orders []model.Order) error {
	pipe := p.client.Pipeline()
	for _, o := range orders {
		data, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("marshal order %d: %w", o.ID, err)
		}
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: StreamKey(o.Symbol),
			MaxLen: orderStreamMaxLen,
			Approx: true,
			Values: map[string]interface{}{"data": string(data), "type": string(o.Type)},
		})
		pipe.Set(ctx, LatestKey(o.Symbol), data, defaultLatestTTL)
		pipe.Publish(ctx, OrdersChannel, data)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Close releases the Redis connection.
func (p *Publisher) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}
