package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	orderdomain "github.com/dmehra2102/storefront/internal/order/domain"
	"github.com/dmehra2102/storefront/internal/payment/application"
	"github.com/dmehra2102/storefront/internal/payment/domain"
	"github.com/dmehra2102/storefront/internal/platform/httpx"
)

type Handler struct {
	log     *slog.Logger
	service *application.Service
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service) *Handler {
	return &Handler{log: log, service: service, tracer: otel.Tracer("payment-http")}
}

type initiateReq struct {
	OrderID string `json:"orderId" validate:"required"`
}

type notificationReq struct {
	MerchantID   int    `json:"merchantId" validate:"required"`
	PosID        int    `json:"posId" validate:"required"`
	SessionID    string `json:"sessionId" validate:"required"`
	Amount       int64  `json:"amount" validate:"gt=0"`
	OriginAmount int64  `json:"originAmount"`
	Currency     string `json:"currency" validate:"required,len=3"`
	OrderID      int64  `json:"orderId" validate:"required"`
	MethodID     int    `json:"methodId"`
	Statement    string `json:"statement"`
	Sign         string `json:"sign" validate:"required"`
}

type paymentResponse struct {
	ID              string    `json:"id"`
	OrderID         string    `json:"orderId"`
	Status          string    `json:"status"`
	Currency        string    `json:"currency"`
	Amount          int64     `json:"amount"`
	Method          int       `json:"method,omitempty"`
	SessionID       string    `json:"sessionId"`
	ProviderOrderID int64     `json:"providerOrderId,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type initiateResponse struct {
	Payment     paymentResponse `json:"payment"`
	RedirectURL string          `json:"redirectUrl"`
}

func toResponse(p domain.Payment) paymentResponse {
	return paymentResponse{
		ID:              p.ID,
		OrderID:         p.OrderID,
		Status:          string(p.Status),
		Currency:        p.Currency,
		Amount:          p.Amount,
		Method:          p.Method,
		SessionID:       p.SessionID,
		ProviderOrderID: p.ProviderOrderID,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

// CustomerRoutes registers the authenticated routes under /api/payments.
func (h *Handler) CustomerRoutes(r chi.Router) {
	r.Post("/initiate", h.initiate)
}

// ProviderRoutes registers the provider callbacks under /api/payments. They
// carry no user identity.
func (h *Handler) ProviderRoutes(r chi.Router) {
	r.Post("/przelewy24/notify", h.notify)
}

// OrderRoutes registers the payment lookup under /api/orders.
func (h *Handler) OrderRoutes(r chi.Router) {
	r.Get("/{id}/payment", h.latestForOrder)
}

func (h *Handler) initiate(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "InitiatePayment")
	defer span.End()

	var req initiateReq
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	span.SetAttributes(attribute.String("order.id", req.OrderID))

	id, _ := httpx.IdentityFrom(ctx)
	out, err := h.service.Initiate(ctx, id.UserID, req.OrderID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, initiateResponse{
		Payment:     toResponse(out.Payment),
		RedirectURL: out.RedirectURL,
	})
}

func (h *Handler) notify(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "Przelewy24Notification")
	defer span.End()

	var req notificationReq
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	span.SetAttributes(attribute.String("payment.session_id", req.SessionID))

	err := h.service.HandleNotification(ctx, application.Notification{
		MerchantID:   req.MerchantID,
		PosID:        req.PosID,
		SessionID:    req.SessionID,
		Amount:       req.Amount,
		OriginAmount: req.OriginAmount,
		Currency:     req.Currency,
		OrderID:      req.OrderID,
		MethodID:     req.MethodID,
		Statement:    req.Statement,
		Sign:         req.Sign,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) latestForOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetOrderPayment")
	defer span.End()

	id, _ := httpx.IdentityFrom(ctx)
	p, err := h.service.LatestForOrder(ctx, id.UserID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(p))
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orderdomain.ErrOrderNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "Order not found")
	case errors.Is(err, domain.ErrPaymentNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "Payment not found")
	case errors.Is(err, domain.ErrOrderNotPayable):
		httpx.WriteError(w, http.StatusBadRequest, "not_payable", err.Error())
	case errors.Is(err, domain.ErrInvalidSignature):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_signature", "Invalid notification signature")
	case errors.Is(err, domain.ErrAmountMismatch), errors.Is(err, domain.ErrAlreadySettled):
		httpx.WriteError(w, http.StatusConflict, "payment_rejected", err.Error())
	default:
		h.log.Error("payment request failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}
