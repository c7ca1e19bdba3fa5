package orders

import (
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/stock"
)

// Code is the machine-readable class of a caller-visible error.
type Code string

const (
	CodeValidation        Code = "VALIDATION"
	CodeStockInsufficient Code = "STOCK_INSUFFICIENT"
	CodeAuthorization     Code = "AUTHORIZATION"
	CodeStateConflict     Code = "STATE_CONFLICT"
	CodeNotFound          Code = "NOT_FOUND"
)

// Error is the only error type the service returns to callers on purpose.
// Anything else is an internal failure.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Cause }

// Is matches by code, so errors.Is(err, ErrStateConflict) works for any
// state conflict regardless of message.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

var (
	ErrValidation        = &Error{Code: CodeValidation, Message: "invalid request"}
	ErrStockInsufficient = &Error{Code: CodeStockInsufficient, Message: "insufficient stock"}
	ErrForbidden         = &Error{Code: CodeAuthorization, Message: "not allowed to access this order"}
	ErrStateConflict     = &Error{Code: CodeStateConflict, Message: "status transition not allowed"}
	ErrNotFound          = &Error{Code: CodeNotFound, Message: "order not found"}
)

func errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the code of a caller-visible error, or "" for internal ones.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// DefaultVariantLabel names the item in stock messages when no variant was chosen.
const DefaultVariantLabel = "Tiêu chuẩn"

func insufficientStock(it OrderItem) *Error {
	label := it.VariantName()
	if label == "" {
		label = DefaultVariantLabel
	}
	name := it.ProductName
	if name == "" {
		name = it.ProductID
	}
	return &Error{
		Code:    CodeStockInsufficient,
		Message: fmt.Sprintf("%s (%s) không đủ số lượng tồn kho.", name, label),
		Metadata: map[string]string{
			"productId": it.ProductID,
			"variant":   it.VariantName(),
		},
	}
}

// CompensationFailure records an inverse mutation that could not be applied
// while unwinding a reservation. It is never returned to callers; it is
// logged, counted and published to the audit channel.
type CompensationFailure struct {
	AttemptID   string            `json:"attemptId"`
	Reservation stock.Reservation `json:"reservation"`
	Err         error             `json:"-"`
	OccurredAt  time.Time         `json:"occurredAt"`
}

func (f CompensationFailure) Error() string {
	return fmt.Sprintf("compensate %s/%s x%d for %s: %v",
		f.Reservation.ProductID, f.Reservation.Variant, f.Reservation.Quantity, f.AttemptID, f.Err)
}
