package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/chainshopapp/chainshop/internal/services"
)

// writeJSON encodes a response body with the given status.
func (h *Handlers) writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.loggerFromContext(r.Context()).Error("failed to encode response", "error", err)
	}
}

// writeError is the single translation point from the service error
// taxonomy to transport status codes and legacy-compatible bodies.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	logger := h.loggerFromContext(r.Context())

	if serviceErr, ok := services.AsError(err); ok {
		switch serviceErr.Kind {
		case services.KindUnauthorized:
			h.writeJSON(w, r, http.StatusUnauthorized, map[string]string{"msg": serviceErr.Message})
		case services.KindValidation, services.KindConflict:
			h.writeJSON(w, r, http.StatusBadRequest, map[string]string{"message": serviceErr.Message})
		case services.KindChainUnavailable:
			logger.Error("chain unavailable", "error", err)
			h.writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{"message": serviceErr.Message})
		case services.KindTransactionFailed:
			logger.Error("chain transaction failed", "error", err)
			h.writeJSON(w, r, http.StatusBadGateway, map[string]string{"message": serviceErr.Message})
		default:
			logger.Error("unclassified service error", "error", err)
			h.writeJSON(w, r, http.StatusInternalServerError, map[string]string{"message": "Internal server error."})
		}
		return
	}

	logger.Error("request failed", "error", err)
	h.writeJSON(w, r, http.StatusInternalServerError, map[string]string{"message": "Internal server error."})
}

// decodeBody decodes a JSON request body into dst. Callers translate a
// failure into the field-specific message their endpoint promises.
func (h *Handlers) decodeBody(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxRequestBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}
