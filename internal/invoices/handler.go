package invoices

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/stockplus/stockplus/internal/platform/httpx"
	"github.com/stockplus/stockplus/internal/shared"
)

// Handler exposes invoice endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the invoice handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Get("/by-sale/{saleID}", h.getBySale)
	r.Get("/by-number/{number}", h.getByNumber)
	r.Patch("/{id}", h.update)
	r.Post("/{id}/pay", h.pay)
}

type updateRequest struct {
	DueDate        *time.Time       `json:"due_date"`
	TaxAmount      *decimal.Decimal `json:"tax_amount"`
	DiscountAmount *decimal.Decimal `json:"discount_amount"`
	CustomerName   *string          `json:"customer_name"`
	CustomerEmail  *string          `json:"customer_email"`
	CustomerPhone  *string          `json:"customer_phone"`
	CustomerAddr   *string          `json:"customer_address"`
	Notes          *string          `json:"notes"`
}

type invoiceResponse struct {
	Invoice
	NetAmount  decimal.Decimal `json:"net_amount"`
	GrandTotal decimal.Decimal `json:"grand_total"`
}

func present(inv Invoice) invoiceResponse {
	return invoiceResponse{Invoice: inv, NetAmount: inv.NetAmount(), GrandTotal: inv.GrandTotal()}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	companyID, err := strconv.ParseInt(q.Get("company_id"), 10, 64)
	if err != nil || companyID <= 0 {
		httpx.RespondError(w, httpx.Classified(httpx.ErrValidation, errors.New("company_id required")))
		return
	}
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	items, err := h.service.ListByCompany(r.Context(), companyID, page, perPage)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]invoiceResponse, 0, len(items))
	for _, inv := range items {
		out = append(out, present(inv))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": out})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.Get(r.Context(), id)
	h.respond(w, r, http.StatusOK, inv, err)
}

func (h *Handler) getBySale(w http.ResponseWriter, r *http.Request) {
	saleID, err := httpx.URLParamInt64(r, "saleID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.GetBySale(r.Context(), saleID)
	h.respond(w, r, http.StatusOK, inv, err)
}

func (h *Handler) getByNumber(w http.ResponseWriter, r *http.Request) {
	inv, err := h.service.GetByNumber(r.Context(), chi.URLParam(r, "number"))
	h.respond(w, r, http.StatusOK, inv, err)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())
	inv, err := h.service.Update(r.Context(), id, UpdateInput{
		DueDate:        req.DueDate,
		TaxAmount:      req.TaxAmount,
		DiscountAmount: req.DiscountAmount,
		Customer: CustomerPatch{
			Name:    req.CustomerName,
			Email:   req.CustomerEmail,
			Phone:   req.CustomerPhone,
			Address: req.CustomerAddr,
		},
		Notes:   req.Notes,
		ActorID: actorID,
	})
	h.respond(w, r, http.StatusOK, inv, err)
}

func (h *Handler) pay(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())
	inv, err := h.service.MarkAsPaid(r.Context(), id, actorID)
	h.respond(w, r, http.StatusOK, inv, err)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, inv *Invoice, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, status, present(*inv))
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	classified := Classify(err)
	if !errors.Is(classified, httpx.ErrNotFound) && !errors.Is(classified, httpx.ErrValidation) &&
		!errors.Is(classified, httpx.ErrConflict) && !errors.Is(classified, httpx.ErrDuplicate) {
		h.logger.Error("invoice request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, classified)
}

// Classify tags invoice errors with their HTTP kind.
func Classify(err error) error {
	switch {
	case errors.Is(err, ErrInvoiceNotFound):
		return httpx.Classified(httpx.ErrNotFound, err)
	case errors.Is(err, ErrInvalidInvoice):
		return httpx.Classified(httpx.ErrValidation, err)
	case errors.Is(err, ErrInvoiceAlreadyPaid):
		return httpx.Classified(httpx.ErrConflict, err)
	case errors.Is(err, ErrDuplicateInvoice):
		return httpx.Classified(httpx.ErrDuplicate, err)
	}
	return err
}
