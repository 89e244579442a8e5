package threeds

import (
	"errors"
	"net/http"

	"github.com/alovak/paytrust/internal/render"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/slog"
)

type initiateRequest struct {
	CardToken   string          `json:"card_token"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	OrderID     string          `json:"order_id"`
	Description string          `json:"description"`
}

type completeRequest struct {
	SessionID string `json:"session_id"`
	PARes     string `json:"pares"`
}

// API is a HTTP API for 3-D Secure sessions. Sessions themselves are never
// exposed.
type API struct {
	orchestrator *Orchestrator
	logger       *slog.Logger
}

func NewAPI(orchestrator *Orchestrator, logger *slog.Logger) *API {
	return &API{
		orchestrator: orchestrator,
		logger:       logger,
	}
}

func (a *API) AppendRoutes(r chi.Router) {
	r.Route("/3ds", func(r chi.Router) {
		r.Post("/initiate", a.initiate)
		r.Post("/complete", a.complete)
	})
}

func (a *API) initiate(w http.ResponseWriter, r *http.Request) {
	req := initiateRequest{}
	if err := render.DecodeJSON(r, &req); err != nil {
		render.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CardToken == "" {
		render.Error(w, http.StatusBadRequest, "card_token is required")
		return
	}

	res, err := a.orchestrator.Initiate(r.Context(), InitiateRequest{
		CardToken:   req.CardToken,
		Amount:      req.Amount,
		Currency:    req.Currency,
		OrderID:     req.OrderID,
		Description: req.Description,
	})
	if err != nil {
		a.writeError(w, "initiating 3ds session", err)
		return
	}

	render.JSON(w, http.StatusOK, res)
}

func (a *API) complete(w http.ResponseWriter, r *http.Request) {
	req := completeRequest{}
	if err := render.DecodeJSON(r, &req); err != nil {
		render.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		render.Error(w, http.StatusBadRequest, "session_id is required")
		return
	}

	res, err := a.orchestrator.Complete(r.Context(), req.SessionID, req.PARes)
	if err != nil {
		a.writeError(w, "completing 3ds session", err)
		return
	}

	render.JSON(w, http.StatusOK, res)
}

// writeError maps orchestrator errors to responses. Not-found and expired
// resources are reported as 400 like any other client error.
func (a *API) writeError(w http.ResponseWriter, op string, err error) {
	var authErr *AuthenticationError
	var challengeErr *ChallengeError

	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrInvalidOrExpiredToken),
		errors.Is(err, ErrInvalidOrExpiredSession):
		render.Error(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &authErr):
		render.Error(w, http.StatusBadRequest, authErr.Error())
	case errors.As(err, &challengeErr):
		render.Error(w, http.StatusBadRequest, challengeErr.Error())
	default:
		a.logger.Error(op, "err", err)
		render.Error(w, http.StatusInternalServerError, "internal error")
	}
}
