package httpx

import (
	"net/http"

	"github.com/ariefcatur/go-storefront-orders/internal/auth"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/stock"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type ProductsHandler struct {
	Ledger stock.Ledger
	Log    *zap.Logger
}

type productResp struct {
	Success bool           `json:"success"`
	Product *stock.Product `json:"product"`
}

func (h *ProductsHandler) Register(r chi.Router, v *auth.Verifier) {
	r.Get("/products/{id}", h.getProduct)
	r.With(v.Middleware, auth.RequireAdmin).Put("/admin/products/{id}", h.putProduct)
}

func (h *ProductsHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.Ledger.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, productResp{Success: true, Product: p})
}

func (h *ProductsHandler) putProduct(w http.ResponseWriter, r *http.Request) {
	var p stock.Product
	if !decode(w, r, &p) {
		return
	}
	id := chi.URLParam(r, "id")
	if p.ID != "" && p.ID != id {
		writeFail(w, http.StatusBadRequest, string(orders.CodeValidation), "product id does not match the path")
		return
	}
	p.ID = id

	if err := h.Ledger.Put(r.Context(), p); err != nil {
		writeError(w, h.Log, err)
		return
	}
	stored, err := h.Ledger.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	h.Log.Info("product stock set", zap.String("product_id", id), zap.Int("stock", stored.Stock))
	writeJSON(w, http.StatusOK, productResp{Success: true, Product: stored})
}
