package vault

import (
	"errors"
	"net/http"

	"github.com/alovak/paytrust/internal/render"
	"github.com/go-chi/chi/v5"
	"golang.org/x/exp/slog"
)

// API is a HTTP API for the card vault
type API struct {
	vault  *Vault
	logger *slog.Logger
}

func NewAPI(vault *Vault, logger *slog.Logger) *API {
	return &API{
		vault:  vault,
		logger: logger,
	}
}

func (a *API) AppendRoutes(r chi.Router) {
	r.Route("/tokens", func(r chi.Router) {
		r.Post("/", a.tokenize)
		r.Get("/{token}/secure-info", a.secureInfo)
	})
}

func (a *API) tokenize(w http.ResponseWriter, r *http.Request) {
	card := Card{}
	if err := render.DecodeJSON(r, &card); err != nil {
		render.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := a.vault.Tokenize(r.Context(), card)
	if err != nil {
		if errors.Is(err, ErrInvalidCard) {
			render.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		a.logger.Error("tokenizing card", "err", err)
		render.Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	render.JSON(w, http.StatusCreated, token)
}

func (a *API) secureInfo(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	info, err := a.vault.SecureInfo(r.Context(), token)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			render.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		a.logger.Error("reading secure info", "err", err)
		render.Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	render.JSON(w, http.StatusOK, info)
}
