package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"signal-advisor/internal/model"
)

// HTTPConfig configures the historical-data HTTP source.
type HTTPConfig struct {
	BaseURL  string        // e.g. "http://localhost:8000"
	Interval string        // bar interval, e.g. "1d"
	Range    string        // lookback, e.g. "3mo"
	Delay    time.Duration // minimum spacing between per-ticker requests
	Timeout  time.Duration // per-request timeout
}

// DefaultHTTPConfig returns daily bars over three months, one request per second.
func DefaultHTTPConfig(baseURL string) HTTPConfig {
	return HTTPConfig{
		BaseURL:  baseURL,
		Interval: "1d",
		Range:    "3mo",
		Delay:    time.Second,
		Timeout:  15 * time.Second,
	}
}

// HTTPSource fetches bars from a historical-data endpoint:
//
//	GET {base}/historical-data?ticker=SYM&interval=1d&date_range=3mo
//
// which returns a JSON array of {Date, Open, High, Low, Close} objects.
// Requests are paced by a token-bucket limiter.
type HTTPSource struct {
	cfg     HTTPConfig
	client  *http.Client
	limiter *rate.Limiter
	archive model.BarArchive
	log     *slog.Logger

	// OnError, if set, is called for every ticker whose fetch failed.
	OnError func(symbol string, err error)
}

// HTTPOption customises an HTTPSource.
type HTTPOption func(*HTTPSource)

// WithArchive saves every successful fetch into a.
func WithArchive(a model.BarArchive) HTTPOption {
	return func(s *HTTPSource) { s.archive = a }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPSource) { s.client = c }
}

// NewHTTPSource creates an HTTPSource.
func NewHTTPSource(cfg HTTPConfig, log *slog.Logger, opts ...HTTPOption) *HTTPSource {
	if log == nil {
		log = slog.Default()
	}
	limit := rate.Inf
	if cfg.Delay > 0 {
		limit = rate.Every(cfg.Delay)
	}
	s := &HTTPSource{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, 1),
		log:     log,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Fetch retrieves bars ticker by ticker. Cancellation stops the loop; the
// remaining tickers are reported with empty bars.
func (s *HTTPSource) Fetch(ctx context.Context, tickers []model.Ticker) map[string][]model.Bar {
	out := make(map[string][]model.Bar, len(tickers))
	for _, t := range tickers {
		out[t.Symbol] = nil
	}

	for _, t := range tickers {
		if err := s.limiter.Wait(ctx); err != nil {
			s.log.Warn("market data fetch interrupted", slog.String("symbol", t.Symbol), slog.Any("err", err))
			return out
		}

		bars, err := s.fetchOne(ctx, t.Symbol)
		if err != nil {
			s.log.Warn("market data fetch failed", slog.String("symbol", t.Symbol), slog.Any("err", err))
			if s.OnError != nil {
				s.OnError(t.Symbol, err)
			}
			continue
		}
		out[t.Symbol] = bars

		if s.archive != nil && len(bars) > 0 {
			if err := s.archive.SaveBars(ctx, t.Symbol, bars); err != nil {
				s.log.Warn("bar archive failed", slog.String("symbol", t.Symbol), slog.Any("err", err))
			}
		}
	}
	return out
}

type barJSON struct {
	Date  string  `json:"Date"`
	Open  float64 `json:"Open"`
	High  float64 `json:"High"`
	Low   float64 `json:"Low"`
	Close float64 `json:"Close"`
}

func (s *HTTPSource) fetchOne(ctx context.Context, symbol string) ([]model.Bar, error) {
	q := url.Values{}
	q.Set("ticker", symbol)
	q.Set("interval", s.cfg.Interval)
	q.Set("date_range", s.cfg.Range)
	endpoint := strings.TrimRight(s.cfg.BaseURL, "/") + "/historical-data?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var rows []barJSON
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	bars := make([]model.Bar, 0, len(rows))
	for _, r := range rows {
		ts, err := parseDate(r.Date)
		if err != nil {
			return nil, err
		}
		bars = append(bars, model.Bar{Time: ts, Open: r.Open, High: r.High, Low: r.Low, Close: r.Close})
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars, nil
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}
