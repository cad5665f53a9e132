package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/storefront/internal/order/application"
	"github.com/dmehra2102/storefront/internal/order/domain"
	"github.com/dmehra2102/storefront/internal/platform/httpx"
	"github.com/dmehra2102/storefront/internal/platform/locale"
)

const idempotencyHeader = "Idempotency-Key"

type Handler struct {
	log     *slog.Logger
	service *application.Service
	locales *locale.Matcher
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service, locales *locale.Matcher) *Handler {
	return &Handler{
		log:     log,
		service: service,
		locales: locales,
		tracer:  otel.Tracer("order-http"),
	}
}

type cartLineReq struct {
	ArticleID   string `json:"articleId" validate:"required"`
	WarehouseID string `json:"warehouseId" validate:"required"`
	Quantity    int    `json:"quantity" validate:"min=1,max=10000"`
	Name        string `json:"name"`
}

type createOrderReq struct {
	Items              []cartLineReq    `json:"items" validate:"required,min=1,dive"`
	TotalPrice         string           `json:"totalPrice" validate:"required"`
	OriginalTotalPrice *decimal.Decimal `json:"originalTotalPrice"`
	DeliveryID         string           `json:"deliveryId"`
	Comment            string           `json:"comment" validate:"max=2000"`
	Customer           *domain.Customer `json:"customer"`
}

type priceRequestReq struct {
	ItemID      int64            `json:"itemId" validate:"required_without=ArticleID"`
	ArticleID   string           `json:"articleId"`
	WarehouseID string           `json:"warehouseId" validate:"required"`
	Quantity    int              `json:"quantity" validate:"min=1,max=10000"`
	Comment     string           `json:"comment" validate:"max=2000"`
	Customer    *domain.Customer `json:"customer"`
}

type patchOrderReq struct {
	Action string `json:"action" validate:"required,eq=cancel"`
}

type setStatusReq struct {
	Status     string `json:"status" validate:"required"`
	DeliveryID string `json:"deliveryId"`
}

type orderResponse struct {
	ID                 string            `json:"id"`
	UserID             string            `json:"userId"`
	Status             string            `json:"status"`
	OriginalTotalPrice decimal.Decimal   `json:"originalTotalPrice"`
	TotalPrice         string            `json:"totalPrice"`
	LineItems          []domain.LineItem `json:"lineItems"`
	DeliveryID         string            `json:"deliveryId,omitempty"`
	Comment            string            `json:"comment,omitempty"`
	Customer           *domain.Customer  `json:"customer,omitempty"`
	IsPriceRequest     bool              `json:"isPriceRequest"`
	CreatedAt          time.Time         `json:"createdAt"`
	UpdatedAt          time.Time         `json:"updatedAt"`
}

func toResponse(o domain.Order) orderResponse {
	items := o.LineItems
	if items == nil {
		items = []domain.LineItem{}
	}
	return orderResponse{
		ID:                 o.ID,
		UserID:             o.UserID,
		Status:             string(o.Status),
		OriginalTotalPrice: o.OriginalTotalPrice,
		TotalPrice:         o.TotalPrice,
		LineItems:          items,
		DeliveryID:         o.DeliveryID,
		Comment:            o.Comment,
		Customer:           o.Customer,
		IsPriceRequest:     o.PriceRequest,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
	}
}

func toResponses(orders []domain.Order) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toResponse(o))
	}
	return out
}

// CustomerRoutes registers the routes under /api/orders. Identity must already
// be on the request context.
func (h *Handler) CustomerRoutes(r chi.Router) {
	r.Get("/", h.listOrders)
	r.Post("/", h.createOrder)
	r.Get("/{id}", h.getOrder)
	r.Patch("/{id}", h.patchOrder)
}

// AdminRoutes registers the routes under /api/admin/orders.
func (h *Handler) AdminRoutes(r chi.Router) {
	r.Get("/", h.adminListOrders)
	r.Get("/{id}", h.adminGetOrder)
	r.Patch("/{id}", h.setStatus)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateOrder")
	defer span.End()

	id, _ := httpx.IdentityFrom(ctx)
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Unable to read body")
		return
	}
	var kind struct {
		IsPriceRequest bool `json:"isPriceRequest"`
	}
	if err := json.Unmarshal(body, &kind); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	span.SetAttributes(attribute.Bool("order.price_request", kind.IsPriceRequest))
	loc := h.locales.FromRequest(r)

	if kind.IsPriceRequest {
		var req priceRequestReq
		if err := decodeBytes(body, &req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		o, err := h.service.RequestPrice(ctx, application.PriceRequestInput{
			UserID:   id.UserID,
			Locale:   loc,
			Offer:    application.OfferRef{ItemID: req.ItemID, ArticleID: req.ArticleID, WarehouseID: req.WarehouseID},
			Quantity: req.Quantity,
			Comment:  req.Comment,
			Customer: req.Customer,
		})
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, toResponse(o))
		return
	}

	var req createOrderReq
	if err := decodeBytes(body, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	lines := make([]domain.CartLine, 0, len(req.Items))
	for _, it := range req.Items {
		lines = append(lines, domain.CartLine{
			ArticleID:   it.ArticleID,
			WarehouseID: it.WarehouseID,
			Quantity:    it.Quantity,
			Name:        it.Name,
		})
	}

	o, err := h.service.PlaceOrder(ctx, application.PlaceOrderInput{
		UserID:             id.UserID,
		Locale:             loc,
		Lines:              lines,
		TotalPrice:         req.TotalPrice,
		OriginalTotalPrice: req.OriginalTotalPrice,
		DeliveryID:         req.DeliveryID,
		Comment:            req.Comment,
		Customer:           req.Customer,
		IdempotencyKey:     r.Header.Get(idempotencyHeader),
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	span.SetAttributes(attribute.String("order.id", o.ID))
	httpx.WriteJSON(w, http.StatusCreated, toResponse(o))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListOrders")
	defer span.End()

	id, _ := httpx.IdentityFrom(ctx)
	orders, err := h.service.ListForUser(ctx, id.UserID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponses(orders))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetOrder")
	defer span.End()

	id, _ := httpx.IdentityFrom(ctx)
	o, err := h.service.GetForUser(ctx, id.UserID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(o))
}

func (h *Handler) patchOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CancelOrder")
	defer span.End()

	var req patchOrderReq
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_action", "Only {\"action\":\"cancel\"} is supported")
		return
	}
	id, _ := httpx.IdentityFrom(ctx)
	o, err := h.service.Cancel(ctx, id.UserID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(o))
}

func (h *Handler) adminListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "AdminListOrders")
	defer span.End()

	q := r.URL.Query()
	filter := application.ListFilter{}
	if s := q.Get("status"); s != "" {
		st, err := domain.ParseStatus(s)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_status", err.Error())
			return
		}
		filter.Status = st
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	orders, err := h.service.List(ctx, filter)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponses(orders))
}

func (h *Handler) adminGetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "AdminGetOrder")
	defer span.End()

	o, err := h.service.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(o))
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "SetOrderStatus")
	defer span.End()

	var req setStatusReq
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	status, err := domain.ParseStatus(req.Status)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_status", err.Error())
		return
	}
	o, err := h.service.SetStatus(ctx, chi.URLParam(r, "id"), status, req.DeliveryID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(o))
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var dup *application.DuplicateRequestError
	switch {
	case errors.As(err, &dup):
		httpx.WriteJSON(w, http.StatusConflict, map[string]string{
			"error":   "duplicate_request",
			"message": err.Error(),
			"orderId": dup.OrderID,
		})
	case errors.Is(err, application.ErrRequestInFlight):
		httpx.WriteError(w, http.StatusConflict, "request_in_progress", err.Error())
	case errors.Is(err, domain.ErrOrderNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "Order not found")
	case errors.Is(err, domain.ErrNotAvailable):
		httpx.WriteError(w, http.StatusNotFound, "not_available", err.Error())
	case errors.Is(err, domain.ErrInsufficientStock):
		httpx.WriteError(w, http.StatusBadRequest, "insufficient_stock", err.Error())
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrEmptyCart),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrUnknownStatus),
		errors.Is(err, domain.ErrDeliveryIDRequired):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		h.log.Error("order request failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

func decodeBytes(body []byte, v any) error {
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(v); err != nil {
		return errors.New("invalid JSON body")
	}
	return httpx.Struct(v)
}
