package fx

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/kiloware/kiloware/internal/platform/httpx"
)

// Handler wires HTTP endpoints for exchange rate management.
type Handler struct {
	logger   *slog.Logger
	repo     *Repository
	source   RateSource
	validate *validator.Validate
}

// NewHandler constructs fx handler. Lookups go through source so they share
// the cache with the rest of the application; writes go to the repository.
func NewHandler(logger *slog.Logger, repo *Repository, source RateSource) *Handler {
	return &Handler{logger: logger, repo: repo, source: source, validate: validator.New()}
}

// MountRoutes attaches fx routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/rates", h.insert)
	r.Get("/rates", h.list)
	r.Get("/rates/lookup", h.lookup)
}

// RateRequest is the rate insert payload.
type RateRequest struct {
	From      string          `json:"from" validate:"required,len=3"`
	To        string          `json:"to" validate:"required,len=3"`
	Rate      decimal.Decimal `json:"rate" validate:"required"`
	ValidFrom string          `json:"valid_from" validate:"required,datetime=2006-01-02"`
	ValidTo   string          `json:"valid_to" validate:"omitempty,datetime=2006-01-02"`
}

func (h *Handler) insert(w http.ResponseWriter, r *http.Request) {
	var req RateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	validFrom, _ := time.Parse("2006-01-02", req.ValidFrom)
	rate := ExchangeRate{
		From:      req.From,
		To:        req.To,
		Rate:      req.Rate,
		ValidFrom: validFrom,
	}
	if req.ValidTo != "" {
		validTo, _ := time.Parse("2006-01-02", req.ValidTo)
		rate.ValidTo = &validTo
	}
	id, err := h.repo.Insert(r.Context(), rate)
	if err != nil {
		h.respondError(w, err)
		return
	}
	rate.ID = id
	httpx.JSON(w, http.StatusCreated, rate)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" || to == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from and to are required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rates, err := h.repo.List(r.Context(), from, to, limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rates": rates})
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" || to == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from and to are required")
		return
	}
	asOf := time.Now().UTC()
	if at := r.URL.Query().Get("at"); at != "" {
		parsed, err := time.Parse("2006-01-02", at)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid at date")
			return
		}
		asOf = parsed
	}
	rate, err := h.source.RateAt(r.Context(), from, to, asOf)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rate)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNoRateFound):
		httpx.Problem(w, http.StatusNotFound, "No Exchange Rate", err.Error())
	case errors.Is(err, ErrInvalidRate):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("fx handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
