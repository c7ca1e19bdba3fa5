package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/ariefcatur/go-storefront-orders/internal/auth"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Idempotency guards POST /orders against duplicate submissions.
type Idempotency interface {
	Claim(ctx context.Context, userID, key string) (string, error)
	Complete(ctx context.Context, userID, key, orderID string) error
	Release(ctx context.Context, userID, key string) error
}

type OrdersHandler struct {
	Service     *orders.Service
	Idempotency Idempotency // optional
	Log         *zap.Logger
}

type orderResp struct {
	Success bool          `json:"success"`
	Order   *orders.Order `json:"order"`
}

type listResp struct {
	Success bool           `json:"success"`
	Orders  []orders.Order `json:"orders"`
}

type cancelReq struct {
	Reason string `json:"reason"`
}

type statusReq struct {
	Status string `json:"status"`
}

func (h *OrdersHandler) Register(r chi.Router, v *auth.Verifier) {
	r.Group(func(r chi.Router) {
		r.Use(v.Middleware)
		r.Post("/orders", h.createOrder)
		r.Get("/orders", h.listOrders)
		r.Get("/orders/{id}", h.getOrder)
		r.Post("/orders/{id}/pay", h.markPaid)
		r.Post("/orders/{id}/cancel", h.cancel)

		r.With(auth.RequireAdmin).Get("/admin/orders", h.listOrders)
		r.With(auth.RequireAdmin).Patch("/admin/orders/{id}/status", h.updateStatus)
	})
}

func (h *OrdersHandler) principal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := auth.FromContext(r.Context())
	if !ok {
		writeFail(w, http.StatusUnauthorized, "UNAUTHENTICATED", "missing credentials")
	}
	return p, ok
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeFail(w, http.StatusBadRequest, string(orders.CodeValidation), "invalid json")
		return false
	}
	return true
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req orders.CreateOrderInput
	if !decode(w, r, &req) {
		return
	}
	ctx := r.Context()

	key := r.Header.Get("Idempotency-Key")
	if key != "" && h.Idempotency != nil {
		existing, err := h.Idempotency.Claim(ctx, p.UserID, key)
		switch {
		case errors.Is(err, redisx.ErrInFlight):
			writeFail(w, http.StatusConflict, CodeRequestInProgress, err.Error())
			return
		case err != nil:
			// Redis is an optimisation; carry on without the guard.
			h.Log.Warn("idempotency claim failed", zap.String("key", key), zap.Error(err))
			key = ""
		case existing != "":
			o, err := h.Service.GetOrder(ctx, p, existing)
			if err != nil {
				writeError(w, h.Log, err)
				return
			}
			writeJSON(w, http.StatusOK, orderResp{Success: true, Order: o})
			return
		}
	} else {
		key = ""
	}

	o, err := h.Service.CreateOrder(ctx, p, req)
	if key != "" {
		if err != nil {
			if rerr := h.Idempotency.Release(context.WithoutCancel(ctx), p.UserID, key); rerr != nil {
				h.Log.Warn("idempotency release failed", zap.String("key", key), zap.Error(rerr))
			}
		} else if cerr := h.Idempotency.Complete(context.WithoutCancel(ctx), p.UserID, key, o.ID); cerr != nil {
			h.Log.Warn("idempotency complete failed", zap.String("key", key), zap.Error(cerr))
		}
	}
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, orderResp{Success: true, Order: o})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	o, err := h.Service.GetOrder(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResp{Success: true, Order: o})
}

// listOrders serves both /orders and /admin/orders; the service decides what
// the caller may see.
func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	out, err := h.Service.ListOrders(r.Context(), p, r.URL.Query().Get("userId"), limit)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, listResp{Success: true, Orders: out})
}

func (h *OrdersHandler) markPaid(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	o, err := h.Service.MarkAsPaid(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResp{Success: true, Order: o})
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	// The body is optional.
	var req cancelReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeFail(w, http.StatusBadRequest, string(orders.CodeValidation), "invalid json")
		return
	}
	o, err := h.Service.Cancel(r.Context(), p, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResp{Success: true, Order: o})
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	var req statusReq
	if !decode(w, r, &req) {
		return
	}
	o, err := h.Service.UpdateStatus(r.Context(), p, chi.URLParam(r, "id"), orders.Status(req.Status))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResp{Success: true, Order: o})
}
