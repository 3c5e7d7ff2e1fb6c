package handlers

import (
	"io"
	"net/http"

	"github.com/chainshopapp/chainshop/internal/services"
)

func (h *Handlers) OrdersToDeliver(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())

	orders, err := h.orderLifecycle.ListPendingOrders(r.Context(), identity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, map[string]any{"orders": orders})
}

type pickUpRequest struct {
	ID      any    `json:"id"`
	Address string `json:"address"`
}

func (h *Handlers) PickUpOrder(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())

	var req pickUpRequest
	if err := h.decodeBody(r, &req); err != nil && err != io.EOF {
		h.writeJSON(w, r, http.StatusBadRequest, map[string]string{"message": "Missing order id."})
		return
	}
	orderID, err := services.ParseOrderID(req.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.orderLifecycle.PickUp(r.Context(), identity, orderID, req.Address); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, nil)
}
