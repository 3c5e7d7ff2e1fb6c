package handlers

import (
	"io"
	"net/http"

	"github.com/chainshopapp/chainshop/internal/services"
)

type placeOrderRequest struct {
	Requests []services.ItemRequest `json:"requests"`
	Address  string                 `json:"address"`
}

func (h *Handlers) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())

	var req placeOrderRequest
	if err := h.decodeBody(r, &req); err != nil {
		h.writeJSON(w, r, http.StatusBadRequest, map[string]string{"message": "Field requests is missing."})
		return
	}

	orderID, err := h.orderLifecycle.PlaceOrder(r.Context(), identity, req.Address, req.Requests)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, map[string]int64{"id": orderID})
}

func (h *Handlers) OrderStatus(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())

	entries, err := h.orderLifecycle.ListOrderStatus(r.Context(), identity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, map[string]any{"orders": entries})
}

type deliveredRequest struct {
	ID any `json:"id"`
}

func (h *Handlers) Delivered(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())

	var req deliveredRequest
	if err := h.decodeBody(r, &req); err != nil && err != io.EOF {
		h.writeJSON(w, r, http.StatusBadRequest, map[string]string{"message": "Missing order id."})
		return
	}
	orderID, err := services.ParseOrderID(req.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.orderLifecycle.ConfirmDelivery(r.Context(), identity, orderID); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, nil)
}

type invoiceRequest struct {
	ID      any    `json:"id"`
	Address string `json:"address"`
}

func (h *Handlers) GenerateInvoice(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())

	var req invoiceRequest
	if err := h.decodeBody(r, &req); err != nil && err != io.EOF {
		h.writeJSON(w, r, http.StatusBadRequest, map[string]string{"message": "Missing order id."})
		return
	}
	orderID, err := services.ParseOrderID(req.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	invoice, err := h.orderLifecycle.GenerateInvoice(r.Context(), identity, orderID, req.Address)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, map[string]any{"invoice": invoice})
}

func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())

	name := r.URL.Query().Get("name")
	category := r.URL.Query().Get("category")

	products, categories, err := h.catalogService.Search(r.Context(), identity, name, category)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, map[string]any{
		"categories": categories,
		"products":   products,
	})
}
