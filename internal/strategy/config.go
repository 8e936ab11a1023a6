package strategy

import (
	"errors"
	"fmt"

	"signal-advisor/internal/indicator"
)

// Kind selects a strategy variant.
type Kind string

const (
	KindMACD      Kind = "macd"
	KindRSI       Kind = "rsi"
	KindFibonacci Kind = "fibonacci"
)

// Config is the per-run strategy configuration. It replaces process-wide
// constants so each scenario can be tested with its own capital and
// multipliers.
type Config struct {
	Kind Kind `yaml:"kind"`

	// Capital sizes new entries for the MACD and RSI variants.
	Capital float64 `yaml:"capital"`

	// TargetMultiplier stamps TargetPrice = price * TargetMultiplier on
	// strategy orders. The ledger applies its own multiplier when it opens
	// a position; the two are independent.
	TargetMultiplier float64 `yaml:"target_multiplier"`

	// TrailFactor is the fraction of the latest close used as a trailing
	// stop candidate (0.98 = 2% below close).
	TrailFactor float64 `yaml:"trail_factor"`

	// EntryStopFactor sets the initial stop-loss of a new entry.
	EntryStopFactor float64 `yaml:"entry_stop_factor"`

	MACD      MACDConfig      `yaml:"macd"`
	RSI       RSIConfig       `yaml:"rsi"`
	Fibonacci FibonacciConfig `yaml:"fibonacci"`
}

// MACDConfig tunes the MACD crossover variant.
type MACDConfig struct {
	indicator.MACDParams `yaml:",inline"`

	// Window bounds the bar history fed to MACD. 0 = full history.
	Window int `yaml:"window"`

	// MaxDivergence normalises |macd - signal| into a 0..1 strength.
	MaxDivergence float64 `yaml:"max_divergence"`
}

// RSIConfig tunes the RSI threshold variant.
type RSIConfig struct {
	Period     int     `yaml:"period"`
	Window     int     `yaml:"window"`
	Overbought float64 `yaml:"overbought"`
	Oversold   float64 `yaml:"oversold"`
}

// FibonacciConfig tunes the Fibonacci retracement variant.
type FibonacciConfig struct {
	// Window bounds the bars used for the high/low range. 0 = full history.
	Window    int     `yaml:"window"`
	BuyRatio  float64 `yaml:"buy_ratio"`
	SellRatio float64 `yaml:"sell_ratio"`
}

// DefaultConfig returns the stock configuration for the given variant.
func DefaultConfig(kind Kind) Config {
	return Config{
		Kind:             kind,
		Capital:          10000,
		TargetMultiplier: 1.3,
		TrailFactor:      0.98,
		EntryStopFactor:  0.98,
		MACD: MACDConfig{
			MACDParams:    indicator.DefaultMACDParams(),
			Window:        200,
			MaxDivergence: 1.0,
		},
		RSI: RSIConfig{
			Period:     indicator.DefaultRSIPeriod,
			Window:     500,
			Overbought: 70,
			Oversold:   30,
		},
		Fibonacci: FibonacciConfig{
			BuyRatio:  0.618,
			SellRatio: 0.382,
		},
	}
}

// Validate checks the fields used by the configured Kind.
func (c Config) Validate() error {
	var errs []error
	if c.Capital <= 0 {
		errs = append(errs, fmt.Errorf("capital must be positive, got %v", c.Capital))
	}
	if c.TargetMultiplier <= 0 {
		errs = append(errs, fmt.Errorf("target_multiplier must be positive, got %v", c.TargetMultiplier))
	}
	if c.TrailFactor <= 0 || c.TrailFactor >= 1 {
		errs = append(errs, fmt.Errorf("trail_factor must be in (0,1), got %v", c.TrailFactor))
	}
	if c.EntryStopFactor <= 0 || c.EntryStopFactor >= 1 {
		errs = append(errs, fmt.Errorf("entry_stop_factor must be in (0,1), got %v", c.EntryStopFactor))
	}

	switch c.Kind {
	case KindMACD:
		p := c.MACD
		if p.Fast <= 0 || p.Slow <= p.Fast || p.Signal <= 0 {
			errs = append(errs, fmt.Errorf("macd periods invalid: fast=%d slow=%d signal=%d", p.Fast, p.Slow, p.Signal))
		}
		if p.MaxDivergence <= 0 {
			errs = append(errs, errors.New("macd max_divergence must be positive"))
		}
		if p.Window < 0 {
			errs = append(errs, errors.New("macd window must not be negative"))
		}
	case KindRSI:
		r := c.RSI
		if r.Period <= 0 {
			errs = append(errs, fmt.Errorf("rsi period must be positive, got %d", r.Period))
		}
		if r.Window <= r.Period {
			errs = append(errs, fmt.Errorf("rsi window %d must exceed period %d", r.Window, r.Period))
		}
		if r.Oversold >= r.Overbought {
			errs = append(errs, fmt.Errorf("rsi oversold %v must be below overbought %v", r.Oversold, r.Overbought))
		}
	case KindFibonacci:
		f := c.Fibonacci
		if f.Window < 0 {
			errs = append(errs, errors.New("fibonacci window must not be negative"))
		}
		if f.BuyRatio <= f.SellRatio {
			errs = append(errs, fmt.Errorf("fibonacci buy_ratio %v must be deeper than sell_ratio %v", f.BuyRatio, f.SellRatio))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown strategy kind %q", c.Kind))
	}
	return errors.Join(errs...)
}
