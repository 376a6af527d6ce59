package invoices

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

	"github.com/kiloware/kiloware/internal/billing"
	"github.com/kiloware/kiloware/internal/fx"
	"github.com/kiloware/kiloware/internal/money"
	"github.com/kiloware/kiloware/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the invoices module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs invoices handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes attaches invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Post("/{id}/payments", h.recordPayment)
	r.Post("/{id}/send", h.step(h.service.Send))
	r.Post("/{id}/view", h.step(h.service.MarkViewed))
	r.Post("/{id}/cancel", h.step(h.service.Cancel))
	r.Post("/{id}/refund", h.step(h.service.Refund))
}

// ItemRequest is one requested invoice line.
type ItemRequest struct {
	ProductID   int64           `json:"product_id" validate:"gte=0"`
	Description string          `json:"description" validate:"max=500"`
	UnitPrice   decimal.Decimal `json:"unit_price" validate:"required"`
	Quantity    int64           `json:"quantity" validate:"required,gt=0"`
	Discount    *struct {
		Kind  string          `json:"kind" validate:"required,oneof=PERCENT FIXED"`
		Value decimal.Decimal `json:"value" validate:"required"`
	} `json:"discount,omitempty"`
	TaxRate decimal.Decimal `json:"tax_rate"`
}

// CreateRequest is the invoice intake payload.
type CreateRequest struct {
	CustomerID int64           `json:"customer_id" validate:"required,gt=0"`
	OrderID    int64           `json:"order_id" validate:"gte=0"`
	Currency   string          `json:"currency" validate:"required,len=3"`
	Items      []ItemRequest   `json:"items" validate:"required,min=1,dive"`
	Shipping   decimal.Decimal `json:"shipping"`
	Handling   decimal.Decimal `json:"handling"`
	DueDate    string          `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
}

// PaymentRequest records one gateway event against the invoice.
type PaymentRequest struct {
	EventID  string          `json:"event_id" validate:"required,max=128"`
	Amount   decimal.Decimal `json:"amount" validate:"required"`
	Currency string          `json:"currency" validate:"required,len=3"`
	Status   string          `json:"status" validate:"required,oneof=PENDING COMPLETED FAILED REFUNDED"`
	Method   string          `json:"method" validate:"max=64"`
}

// InvoiceResponse is the outward invoice shape.
type InvoiceResponse struct {
	ID              int64                  `json:"id"`
	Number          string                 `json:"number"`
	CustomerID      int64                  `json:"customer_id"`
	OrderID         int64                  `json:"order_id,omitempty"`
	Currency        string                 `json:"currency"`
	Status          Status                 `json:"status"`
	EffectiveStatus Status                 `json:"effective_status"`
	Items           []billing.LineItem     `json:"items,omitempty"`
	Totals          billing.DocumentTotals `json:"totals"`
	Paid            money.Money            `json:"paid"`
	Balance         money.Money            `json:"balance"`
	Overpaid        money.Money            `json:"overpaid"`
	PaymentStatus   billing.PaymentStatus  `json:"payment_status"`
	IssuedAt        string                 `json:"issued_at"`
	DueDate         string                 `json:"due_date"`
}

func (h *Handler) invoiceResponse(inv *Invoice) InvoiceResponse {
	return InvoiceResponse{
		ID:              inv.ID,
		Number:          inv.Number,
		CustomerID:      inv.CustomerID,
		OrderID:         inv.OrderID,
		Currency:        inv.Currency,
		Status:          inv.Status,
		EffectiveStatus: inv.EffectiveStatus(h.service.clock.Now()),
		Items:           inv.Items,
		Totals:          inv.Totals,
		Paid:            inv.Paid,
		Balance:         inv.Balance,
		Overpaid:        inv.Overpaid,
		PaymentStatus:   inv.PaymentStatus,
		IssuedAt:        inv.IssuedAt.Format("2006-01-02"),
		DueDate:         inv.DueDate.Format("2006-01-02"),
	}
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
		CustomerID: req.CustomerID,
		OrderID:    req.OrderID,
		Currency:   req.Currency,
		Items:      make([]billing.LineItem, len(req.Items)),
		Shipping:   money.Money{Amount: req.Shipping, Currency: req.Currency},
		Handling:   money.Money{Amount: req.Handling, Currency: req.Currency},
	}
	if req.DueDate != "" {
		due, err := time.Parse("2006-01-02", req.DueDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid due_date")
			return
		}
		input.DueDate = due
	}
	for i, item := range req.Items {
		line := billing.LineItem{
			ProductID:   item.ProductID,
			Description: item.Description,
			UnitPrice:   money.Money{Amount: item.UnitPrice, Currency: req.Currency},
			Quantity:    item.Quantity,
			TaxRate:     item.TaxRate,
		}
		if item.Discount != nil {
			line.Discount = &billing.Discount{
				Kind:  billing.DiscountKind(item.Discount.Kind),
				Value: item.Discount.Value,
			}
		}
		input.Items[i] = line
	}
	inv, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, h.invoiceResponse(inv))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	invoices, err := h.service.List(r.Context(), limit, offset)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoices": invoices})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	inv, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.invoiceResponse(inv))
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	var req PaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	evt := billing.PaymentEvent{
		ID:     req.EventID,
		Amount: money.Money{Amount: req.Amount, Currency: req.Currency},
		Status: billing.EventStatus(req.Status),
		Method: req.Method,
	}
	inv, err := h.service.RecordPayment(r.Context(), id, evt)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.invoiceResponse(inv))
}

func (h *Handler) step(fn func(context.Context, int64) (*Invoice, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.invoiceID(w, r)
		if !ok {
			return
		}
		inv, err := fn(r.Context(), id)
		if err != nil {
			h.respondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, h.invoiceResponse(inv))
	}
}

func (h *Handler) invoiceID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid invoice id")
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
	case errors.Is(err, ErrEmptyItems),
		errors.Is(err, billing.ErrInvalidLineItem),
		errors.Is(err, billing.ErrInvalidDiscount),
		errors.Is(err, money.ErrCurrencyMismatch),
		errors.Is(err, money.ErrInvalidCurrency):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, fx.ErrNoRateFound):
		httpx.Problem(w, http.StatusUnprocessableEntity, "No Exchange Rate", err.Error())
	default:
		h.logger.Error("invoices handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
