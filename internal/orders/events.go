package orders

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderPaid          = "OrderPaid"
	EventOrderCancelled     = "OrderCancelled"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventCompensationFailed = "StockCompensationFailed"
)

// Email templates handed to the dispatcher.
const (
	TemplateOrderConfirmation = "order_confirmation"
	TemplateOrderCancelled    = "order_cancelled"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id or reservation attempt id
	Payload       json.RawMessage `json:"payload"`
}

type OrderCreatedPayload struct {
	OrderID       string          `json:"order_id"`
	UserID        string          `json:"user_id"`
	Items         []OrderItem     `json:"items"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaymentMethod string          `json:"payment_method"`
	Customer      CustomerInfo    `json:"customer"`
}

type OrderStatusPayload struct {
	OrderID       string        `json:"order_id"`
	UserID        string        `json:"user_id"`
	From          Status        `json:"from"`
	To            Status        `json:"to"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	Reason        string        `json:"reason,omitempty"`
	By            string        `json:"by,omitempty"`
}

type CompensationFailedPayload struct {
	AttemptID  string    `json:"attempt_id"`
	ProductID  string    `json:"product_id"`
	Variant    string    `json:"variant,omitempty"`
	Quantity   int       `json:"quantity"`
	Error      string    `json:"error"`
	OccurredAt time.Time `json:"occurred_at"`
}

func createdPayload(o *Order) OrderCreatedPayload {
	return OrderCreatedPayload{
		OrderID:       o.ID,
		UserID:        o.UserID,
		Items:         o.Items,
		TotalAmount:   o.TotalAmount,
		PaymentMethod: o.PaymentMethod,
		Customer:      o.CustomerInfo,
	}
}

func compensationPayload(f CompensationFailure) CompensationFailedPayload {
	msg := ""
	if f.Err != nil {
		msg = f.Err.Error()
	}
	return CompensationFailedPayload{
		AttemptID:  f.AttemptID,
		ProductID:  f.Reservation.ProductID,
		Variant:    f.Reservation.Variant,
		Quantity:   f.Reservation.Quantity,
		Error:      msg,
		OccurredAt: f.OccurredAt,
	}
}
