package bininfo

import (
	"errors"
	"net/http"

	"github.com/alovak/paytrust/internal/render"
	"github.com/go-chi/chi/v5"
)

type classifyRequest struct {
	CardNumber      string   `json:"card_number"`
	WithInstallment bool     `json:"with_installment"`
	Price           *float64 `json:"price"`
	Currency        string   `json:"currency"`
	ProductType     string   `json:"product_type"`
}

// API is a HTTP API for the BIN classifier
type API struct {
	classifier *Classifier
}

func NewAPI(classifier *Classifier) *API {
	return &API{
		classifier: classifier,
	}
}

func (a *API) AppendRoutes(r chi.Router) {
	r.Post("/bin/classify", a.classify)
}

func (a *API) classify(w http.ResponseWriter, r *http.Request) {
	req := classifyRequest{}
	if err := render.DecodeJSON(r, &req); err != nil {
		render.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CardNumber == "" {
		render.Error(w, http.StatusBadRequest, "card_number is required")
		return
	}

	info, err := a.classifier.Classify(req.CardNumber, Options{
		WithInstallment: req.WithInstallment,
		Price:           req.Price,
		Currency:        req.Currency,
		ProductType:     req.ProductType,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			render.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		render.Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	render.JSON(w, http.StatusOK, info)
}
