package batches

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/kiloware/kiloware/internal/fx"
	"github.com/kiloware/kiloware/internal/inventory"
	"github.com/kiloware/kiloware/internal/money"
	"github.com/kiloware/kiloware/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the batches module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs batches handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes attaches batch routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Get("/{id}/allocation", h.allocation)
	r.Post("/{id}/receive", h.receive)
	r.Post("/{id}/cancel", h.cancel)
	r.Post("/{id}/transit", h.step(h.service.MarkInTransit))
	r.Post("/{id}/sort", h.step(h.service.StartSorting))
	r.Post("/{id}/partial", h.step(h.service.MarkPartiallySorted))
	r.Post("/{id}/sorted", h.step(h.service.MarkSorted))
	r.Post("/{id}/store", h.step(h.service.Store))
	r.Post("/{id}/complete", h.step(h.service.Complete))
}

// CostRequest is one landed-cost component.
type CostRequest struct {
	Label    string          `json:"label" validate:"required,max=100"`
	Amount   decimal.Decimal `json:"amount" validate:"required"`
	Currency string          `json:"currency" validate:"required,len=3"`
}

func (c CostRequest) toDomain() Cost {
	return Cost{Label: c.Label, Amount: money.Money{Amount: c.Amount, Currency: c.Currency}}
}

// CreateRequest is the purchase-order payload.
type CreateRequest struct {
	SupplierID  int64         `json:"supplier_id" validate:"required,gt=0"`
	ExpectedQty int64         `json:"expected_qty" validate:"required,gt=0"`
	Costs       []CostRequest `json:"costs" validate:"required,min=1,dive"`
	OrderedAt   string        `json:"ordered_at" validate:"omitempty,datetime=2006-01-02"`
}

// ReceiveRequest is the arrival payload.
type ReceiveRequest struct {
	ReceivedQty int64         `json:"received_qty" validate:"required,gt=0"`
	Costs       []CostRequest `json:"costs" validate:"dive"`
	SKU         string        `json:"sku" validate:"max=64"`
	Name        string        `json:"name" validate:"max=200"`
}

// CancelRequest carries the mandatory cancellation reason.
type CancelRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CreateInput{
		SupplierID:  req.SupplierID,
		ExpectedQty: req.ExpectedQty,
		Costs:       make([]Cost, len(req.Costs)),
	}
	for i, c := range req.Costs {
		input.Costs[i] = c.toDomain()
	}
	if req.OrderedAt != "" {
		orderedAt, err := time.Parse("2006-01-02", req.OrderedAt)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid ordered_at")
			return
		}
		input.OrderedAt = orderedAt
	}
	batch, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, batch)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	batches, err := h.service.List(r.Context(), limit, offset)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"batches": batches})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.batchID(w, r)
	if !ok {
		return
	}
	batch, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, batch)
}

// allocation re-runs the cost allocation against the stored inputs so the
// fixed figures can be verified.
func (h *Handler) allocation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.batchID(w, r)
	if !ok {
		return
	}
	allocation, err := h.service.Reallocate(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"total_cost":    allocation.TotalCost,
		"cost_per_unit": allocation.CostPerUnit,
	})
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	id, ok := h.batchID(w, r)
	if !ok {
		return
	}
	var req ReceiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := ReceiveInput{
		ReceivedQty: req.ReceivedQty,
		SKU:         req.SKU,
		Name:        req.Name,
	}
	for _, c := range req.Costs {
		input.Costs = append(input.Costs, c.toDomain())
	}
	batch, err := h.service.Receive(r.Context(), id, input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, batch)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.batchID(w, r)
	if !ok {
		return
	}
	var req CancelRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	batch, err := h.service.Cancel(r.Context(), id, req.Reason)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, batch)
}

func (h *Handler) step(fn func(context.Context, int64) (*Batch, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.batchID(w, r)
		if !ok {
			return
		}
		batch, err := fn(r.Context(), id)
		if err != nil {
			h.respondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, batch)
	}
}

func (h *Handler) batchID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid batch id")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrIllegalTransition):
		httpx.Problem(w, http.StatusConflict, "Illegal Transition", err.Error())
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrNoCosts),
		errors.Is(err, inventory.ErrInvalidQuantity),
		errors.Is(err, money.ErrInvalidCurrency):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrUnknownCost):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unknown Unit Cost", err.Error())
	case errors.Is(err, fx.ErrNoRateFound):
		httpx.Problem(w, http.StatusUnprocessableEntity, "No Exchange Rate", err.Error())
	default:
		h.logger.Error("batches handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
