package sales

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/stockplus/stockplus/internal/catalog"
	"github.com/stockplus/stockplus/internal/invoices"
	"github.com/stockplus/stockplus/internal/numbering"
	"github.com/stockplus/stockplus/internal/platform/httpx"
	"github.com/stockplus/stockplus/internal/shared"
)

// Handler exposes the sale endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the sales handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.checkout)
	r.Get("/by-invoice/{number}", h.getByInvoice)
	r.Patch("/items/{itemID}", h.updateItem)
	r.Delete("/items/{itemID}", h.removeItem)
	r.Get("/{id}", h.get)
	r.Patch("/{id}", h.update)
	r.Post("/{id}/items", h.addItem)
	r.Post("/{id}/cancel", h.cancel)
	r.Post("/{id}/invoice", h.issueInvoice)
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())
	result, err := h.service.Checkout(r.Context(), req.toDomain(r.Header.Get("Idempotency-Key"), actorID))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	companyID, _ := strconv.ParseInt(q.Get("company_id"), 10, 64)
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))

	var (
		sales []Sale
		err   error
	)
	if raw := q.Get("pos_id"); raw != "" {
		posID, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			httpx.RespondError(w, httpx.Classified(httpx.ErrValidation, errors.New("invalid pos_id")))
			return
		}
		sales, err = h.service.ListPointOfSaleSales(r.Context(), companyID, posID, page, perPage)
	} else {
		sales, err = h.service.ListCompanySales(r.Context(), companyID, page, perPage)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	limit, offset := shared.PageWindow(page, perPage)
	httpx.JSON(w, http.StatusOK, listResponse{Data: sales, Page: offset/limit + 1, PerPage: limit})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sale, err := h.service.GetSale(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateSaleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())
	sale, err := h.service.UpdateSale(r.Context(), id, HeaderPatch(req), actorID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) getByInvoice(w http.ResponseWriter, r *http.Request) {
	sale, err := h.service.GetSaleByInvoiceNumber(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	saleID, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req addItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())
	item, err := h.service.AddItem(r.Context(), saleID, AddItemRequest{
		ProductID: req.ProductID,
		VariantID: req.VariantID,
		Quantity:  req.Quantity,
		Discount:  orZero(req.Discount),
		ActorID:   actorID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := httpx.URLParamInt64(r, "itemID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())
	item, err := h.service.UpdateItem(r.Context(), itemID, ItemPatch(req), actorID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := httpx.URLParamInt64(r, "itemID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())
	if err := h.service.RemoveItem(r.Context(), itemID, actorID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	saleID, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())
	sale, err := h.service.Cancel(r.Context(), saleID, actorID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) issueInvoice(w http.ResponseWriter, r *http.Request) {
	saleID, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req issueInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())
	inv, err := h.service.IssueInvoice(r.Context(), saleID, IssueInvoiceRequest{
		Customer:       req.Customer.toDomain(),
		TaxAmount:      orZero(req.TaxAmount),
		DiscountAmount: orZero(req.DiscountAmount),
		DueDate:        req.DueDate,
		Notes:          req.Notes,
		ActorID:        actorID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	classified := Classify(err)
	if !errors.Is(classified, httpx.ErrNotFound) && !errors.Is(classified, httpx.ErrValidation) &&
		!errors.Is(classified, httpx.ErrConflict) && !errors.Is(classified, httpx.ErrDuplicate) {
		h.logger.Error("sale request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, classified)
}

// Classify tags sale errors with their HTTP kind.
func Classify(err error) error {
	var (
		stockErr *InsufficientStockError
		dupErr   *DuplicateSaleError
		priceErr *PriceUnavailableError
	)
	switch {
	case errors.Is(err, ErrSaleNotFound), errors.Is(err, ErrSaleItemNotFound),
		errors.Is(err, catalog.ErrProductNotFound), errors.Is(err, catalog.ErrVariantNotFound):
		return httpx.Classified(httpx.ErrNotFound, err)
	case errors.As(err, &stockErr), errors.Is(err, ErrSaleAlreadyCancelled),
		errors.Is(err, shared.ErrIdempotencyConflict):
		return httpx.Classified(httpx.ErrConflict, err)
	case errors.As(err, &dupErr):
		return httpx.Classified(httpx.ErrDuplicate, err)
	case errors.Is(err, ErrInvalidItem), errors.Is(err, ErrInvalidSale), errors.Is(err, ErrEmptySale),
		errors.As(err, &priceErr):
		return httpx.Classified(httpx.ErrValidation, err)
	case errors.Is(err, numbering.ErrGenerationExhausted):
		return httpx.Classified(httpx.ErrUnavailable, err)
	}
	return invoices.Classify(err)
}
