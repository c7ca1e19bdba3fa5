package httpx

import (
	"errors"
	"net/http"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/stock"
	"go.uber.org/zap"
)

// CodeRequestInProgress is returned when an Idempotency-Key is still held by
// another request.
const CodeRequestInProgress = "REQUEST_IN_PROGRESS"

type errorBody struct {
	Success  bool              `json:"success"`
	Message  string            `json:"message"`
	Code     string            `json:"code,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

var statusByCode = map[orders.Code]int{
	orders.CodeValidation:        http.StatusBadRequest,
	orders.CodeStockInsufficient: http.StatusBadRequest,
	orders.CodeStateConflict:     http.StatusBadRequest,
	orders.CodeAuthorization:     http.StatusForbidden,
	orders.CodeNotFound:          http.StatusNotFound,
}

func writeFail(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Message: message, Code: code})
}

// writeError maps service errors onto the response. Anything that is not a
// caller-visible error is logged and reported as a 500 without details.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	var e *orders.Error
	if errors.As(err, &e) {
		status, ok := statusByCode[e.Code]
		if !ok {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, errorBody{Message: e.Message, Code: string(e.Code), Metadata: e.Metadata})
		return
	}
	if errors.Is(err, stock.ErrInvalidProduct) {
		writeFail(w, http.StatusBadRequest, string(orders.CodeValidation), err.Error())
		return
	}
	if errors.Is(err, stock.ErrNotFound) {
		writeFail(w, http.StatusNotFound, string(orders.CodeNotFound), "product not found")
		return
	}
	log.Error("request failed", zap.Error(err))
	writeFail(w, http.StatusInternalServerError, "INTERNAL", "internal server error")
}
