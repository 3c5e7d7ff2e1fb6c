package handlers

import (
	"net/http"

	"github.com/chainshopapp/chainshop/internal/models"
	"github.com/chainshopapp/chainshop/internal/services"
)

type registerRequest struct {
	Forename string `json:"forename"`
	Surname  string `json:"surname"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handlers) RegisterCustomer(w http.ResponseWriter, r *http.Request) {
	h.register(w, r, models.RoleCustomer)
}

func (h *Handlers) RegisterCourier(w http.ResponseWriter, r *http.Request) {
	h.register(w, r, models.RoleCourier)
}

func (h *Handlers) register(w http.ResponseWriter, r *http.Request, role string) {
	var req registerRequest
	if err := h.decodeBody(r, &req); err != nil {
		h.writeJSON(w, r, http.StatusBadRequest, map[string]string{"message": "Field forename is missing."})
		return
	}

	err := h.authService.Register(r.Context(), services.RegisterInput{
		Forename: req.Forename,
		Surname:  req.Surname,
		Email:    req.Email,
		Password: req.Password,
	}, role)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, nil)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := h.decodeBody(r, &req); err != nil {
		h.writeJSON(w, r, http.StatusBadRequest, map[string]string{"message": "Field email is missing."})
		return
	}

	token, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, map[string]string{"accessToken": token})
}

func (h *Handlers) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())

	if err := h.authService.DeleteAccount(r.Context(), identity); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, nil)
}
