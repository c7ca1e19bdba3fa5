package orders

import (
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/stock"
	"github.com/shopspring/decimal"
)

type ItemVariant struct {
	Name string `json:"name"`
}

// OrderItem is a receipt line. Name and price are snapshots taken at order
// time and never resynchronised with the catalog.
type OrderItem struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	Variant     *ItemVariant    `json:"variant,omitempty"`
}

func (it OrderItem) VariantName() string {
	if it.Variant == nil {
		return ""
	}
	return it.Variant.Name
}

func (it OrderItem) reservation() stock.Reservation {
	return stock.Reservation{ProductID: it.ProductID, Variant: it.VariantName(), Quantity: it.Quantity}
}

func reservations(items []OrderItem) []stock.Reservation {
	out := make([]stock.Reservation, 0, len(items))
	for _, it := range items {
		out = append(out, it.reservation())
	}
	return out
}

type CustomerInfo struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address"`
	Note    string `json:"note,omitempty"`
}

type Order struct {
	ID            string        `json:"id"`
	UserID        string        `json:"userId"`
	Items         []OrderItem   `json:"items"`
	CustomerInfo  CustomerInfo  `json:"customerInfo"`
	PaymentMethod string        `json:"paymentMethod"`
	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	// AwaitingPrepayment is set at creation for non-COD methods. Only
	// MarkAsPaid moves PaymentStatus to paid.
	AwaitingPrepayment bool            `json:"awaitingPrepayment"`
	IsPaid             bool            `json:"isPaid"`
	PaidAt             *time.Time      `json:"paidAt,omitempty"`
	TotalAmount        decimal.Decimal `json:"totalAmount"`
	DiscountAmount     decimal.Decimal `json:"discountAmount"`
	ShippingFee        decimal.Decimal `json:"shippingFee"`
	VoucherCode        string          `json:"voucherCode,omitempty"`
	CancelReason       string          `json:"cancelReason,omitempty"`
	CancelledBy        string          `json:"cancelledBy,omitempty"`
	Version            int             `json:"version"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

func (o *Order) Clone() *Order {
	c := *o
	c.Items = make([]OrderItem, len(o.Items))
	for i, it := range o.Items {
		c.Items[i] = it
		if it.Variant != nil {
			v := *it.Variant
			c.Items[i].Variant = &v
		}
	}
	if o.PaidAt != nil {
		t := *o.PaidAt
		c.PaidAt = &t
	}
	return &c
}

// MarkPaid records payment confirmation. A pending order advances to
// processing; later statuses are left alone.
func (o *Order) MarkPaid(now time.Time) error {
	if o.Status == StatusCancelled {
		return errorf(CodeStateConflict, "order %s is cancelled and cannot be paid", o.ID)
	}
	o.PaymentStatus = PaymentPaid
	o.IsPaid = true
	o.AwaitingPrepayment = false
	o.PaidAt = &now
	if o.Status == StatusPending {
		o.Status = StatusProcessing
	}
	o.UpdatedAt = now
	return nil
}

// Cancel moves the order to cancelled. Shoppers may only cancel pending or
// processing orders; administrators may cancel anything the state machine
// allows.
func (o *Order) Cancel(by, reason string, admin bool, now time.Time) error {
	allowed := ownerCancellable[o.Status]
	if admin {
		allowed = CanTransition(o.Status, StatusCancelled)
	}
	if !allowed {
		return errorf(CodeStateConflict, "order in status %s cannot be cancelled", o.Status)
	}
	o.Status = StatusCancelled
	o.CancelReason = reason
	o.CancelledBy = by
	o.UpdatedAt = now
	return nil
}

// Advance applies an administrative status change.
func (o *Order) Advance(next Status, by string, now time.Time) error {
	if !CanTransition(o.Status, next) {
		return errorf(CodeStateConflict, "cannot move order from %s to %s", o.Status, next)
	}
	o.Status = next
	if next == StatusCancelled {
		o.CancelledBy = by
	}
	o.UpdatedAt = now
	return nil
}
