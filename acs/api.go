package acs

import (
	"net/http"

	"github.com/alovak/paytrust/internal/render"
	"github.com/go-chi/chi/v5"
)

type authenticateRequest struct {
	MD      string `json:"md"`
	Approve bool   `json:"approve"`
}

type authenticateResponse struct {
	PARes string `json:"pares"`
}

// API stands in for the cardholder's browser step. It is only mounted when
// the gateway runs with the simulator.
type API struct {
	sim *Simulator
}

func NewAPI(sim *Simulator) *API {
	return &API{sim: sim}
}

func (a *API) AppendRoutes(r chi.Router) {
	r.Post("/acs/authenticate", a.authenticate)
}

func (a *API) authenticate(w http.ResponseWriter, r *http.Request) {
	req := authenticateRequest{}
	if err := render.DecodeJSON(r, &req); err != nil {
		render.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.MD == "" {
		render.Error(w, http.StatusBadRequest, "md is required")
		return
	}

	pares, err := a.sim.Authenticate(req.MD, req.Approve)
	if err != nil {
		render.Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	render.JSON(w, http.StatusOK, authenticateResponse{PARes: pares})
}
