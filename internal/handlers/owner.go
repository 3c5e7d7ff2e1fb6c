package handlers

import (
	"io"
	"net/http"
)

const maxImportBytes = 8 << 20 // 8 MB

// UpdateCatalog ingests a CSV upload of new products.
func (h *Handlers) UpdateCatalog(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())

	if err := r.ParseMultipartForm(maxImportBytes); err != nil {
		h.writeJSON(w, r, http.StatusBadRequest, map[string]string{"message": "Field file is missing."})
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		h.writeJSON(w, r, http.StatusBadRequest, map[string]string{"message": "Field file is missing."})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxImportBytes))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.catalogService.ImportProducts(r.Context(), identity, string(content)); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, nil)
}

func (h *Handlers) ProductStatistics(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())

	stats, err := h.catalogService.ProductStatistics(r.Context(), identity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, map[string]any{"statistics": stats})
}

func (h *Handlers) CategoryStatistics(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())

	stats, err := h.catalogService.CategoryStatistics(r.Context(), identity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, map[string]any{"statistics": stats})
}
