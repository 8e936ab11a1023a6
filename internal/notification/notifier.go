// Package notification delivers pass summaries and alerts to external
// channels (log, email, Telegram, webhooks).
//
// Delivery is best effort: the advisor logs a failed Send and carries on.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"signal-advisor/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to a structured logger (useful for development).
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	n.log.InfoContext(ctx, "notification",
		slog.String("level", string(alert.Level)),
		slog.String("title", alert.Title),
		slog.String("message", alert.Message))
	return nil
}

// Multi fans an alert out to every notifier. All are attempted; the
// returned error joins every failure.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

const advisorySeparator = "\n===================================="

// BuildAdvisory renders one pass's committed orders as a single alert: a
// block per order, in order, joined by a separator line.
func BuildAdvisory(orders []model.Order, now time.Time) Alert {
	blocks := make([]string, 0, len(orders))
	for _, o := range orders {
		blocks = append(blocks, advisoryBlock(o))
	}
	return Alert{
		Level: AlertInfo,
		Title: fmt.Sprintf("Trade Advisories for :%s at %s",
			now.Format("1/2/2006"), now.Format("3:04 PM")),
		Message: strings.Join(blocks, advisorySeparator),
	}
}

func advisoryBlock(o model.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\nTrade Advised: %s ", o.Type)
	fmt.Fprintf(&b, "\nTicker: %s ", o.Symbol)
	fmt.Fprintf(&b, "\nPrice :%s \nType: %s ", formatNum(o.Price), o.Type)
	fmt.Fprintf(&b, "\nQuantity: %d ", o.Quantity)
	fmt.Fprintf(&b, "\nStopLoss: %s ", formatNum(o.StopLoss))
	fmt.Fprintf(&b, "\nNotes: %s", o.Notes)
	return b.String()
}

func formatNum(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
