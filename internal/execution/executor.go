// Package execution hands advised orders to a broker.
//
// Orders reach a Broker only after the pass has been committed, so a broker
// failure never rolls back the position book. The Service logs the failure
// and moves on; the order stays recorded either way.
package execution

import (
	"context"
	"log/slog"

	"signal-advisor/internal/model"
)

// Ack statuses.
const (
	StatusFilled   = "FILLED"
	StatusAccepted = "ACCEPTED"
	StatusSkipped  = "SKIPPED"
	StatusRejected = "REJECTED"
)

// Ack is a broker's response to one submitted order.
type Ack struct {
	BrokerOrderID string `json:"broker_order_id"`
	Status        string `json:"status"`
	Message       string `json:"message,omitempty"`
}

// Broker accepts committed orders.
type Broker interface {
	Name() string
	Submit(ctx context.Context, o model.Order) (Ack, error)
}

// NoopBroker logs each order and does nothing else. It is the default when
// no broker is configured.
type NoopBroker struct {
	Log *slog.Logger
}

func (NoopBroker) Name() string { return "noop" }

func (b NoopBroker) Submit(_ context.Context, o model.Order) (Ack, error) {
	if b.Log != nil {
		b.Log.Debug("order not routed",
			slog.String("symbol", o.Symbol),
			slog.String("type", string(o.Type)),
			slog.Int64("qty", o.Quantity))
	}
	return Ack{Status: StatusSkipped}, nil
}
