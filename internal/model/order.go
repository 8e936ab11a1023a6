package model

import "time"

// OrderType is the kind of advisory an Order carries.
type OrderType string

const (
	OrderBuy    OrderType = "BUY"
	OrderSell   OrderType = "SELL"
	OrderModify OrderType = "MODIFY"
)

// Valid reports whether t is one of the known order types.
func (t OrderType) Valid() bool {
	switch t {
	case OrderBuy, OrderSell, OrderModify:
		return true
	}
	return false
}

// Order is a trade advisory produced by a strategy pass.
//
// PositionID links the order to the position it acts on. For a BUY it is nil
// until the ledger commit assigns the identity of the newly opened position.
// Exit orders (IsExit) carry the id of the position they close or modify.
type Order struct {
	ID          int64     `json:"id"`
	Symbol      string    `json:"symbol"`
	Type        OrderType `json:"type"`
	Price       float64   `json:"price"`
	StopLoss    float64   `json:"stop_loss"`
	TargetPrice float64   `json:"target_price"`
	Quantity    int64     `json:"quantity"`
	IsExit      bool      `json:"is_exit"`
	PositionID  *int64    `json:"position_id,omitempty"`
	Notes       string    `json:"notes"`
	CreatedAt   time.Time `json:"created_at"`
}

// Linked reports whether the order references a position.
func (o Order) Linked() bool { return o.PositionID != nil }

// PositionRef returns a pointer suitable for Order.PositionID.
func PositionRef(id int64) *int64 { return &id }
