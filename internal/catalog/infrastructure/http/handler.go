package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/storefront/internal/catalog/application"
	"github.com/dmehra2102/storefront/internal/catalog/domain"
	"github.com/dmehra2102/storefront/internal/currency"
	"github.com/dmehra2102/storefront/internal/platform/httpx"
	"github.com/dmehra2102/storefront/internal/platform/locale"
)

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
		tracer:  otel.Tracer("catalog-http"),
	}
}

type bannerResponse struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	ImageURL  string `json:"imageUrl"`
	LinkURL   string `json:"linkUrl,omitempty"`
	SortOrder int    `json:"sortOrder"`
}

type pageResponse struct {
	Slug    string          `json:"slug"`
	Locale  string          `json:"locale"`
	Title   string          `json:"title"`
	Content json.RawMessage `json:"content"`
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/items", h.listItems)
	r.Get("/items/{articleId}", h.getItem)
	r.Get("/home", h.home)
	r.Get("/banners", h.banners)
	r.Get("/pages/{slug}", h.page)
	return r
}

func (h *Handler) query(r *http.Request) application.Query {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	return application.Query{
		Locale:      h.locales.FromRequest(r),
		Currency:    q.Get("currency"),
		Country:     q.Get("country"),
		ClientIP:    r.RemoteAddr,
		Category:    q.Get("category"),
		Subcategory: q.Get("subcategory"),
		Brand:       q.Get("brand"),
		Limit:       limit,
		Offset:      offset,
	}
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListItems")
	defer span.End()

	q := h.query(r)
	span.SetAttributes(attribute.String("catalog.category", q.Category), attribute.String("catalog.locale", q.Locale))
	products, err := h.service.ListProducts(ctx, q)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, products)
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetItem")
	defer span.End()

	articleID := chi.URLParam(r, "articleId")
	span.SetAttributes(attribute.String("catalog.article_id", articleID))
	p, err := h.service.GetProduct(ctx, articleID, h.query(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) home(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "HomeTab")
	defer span.End()

	tab, err := domain.ParseTab(r.URL.Query().Get("tab"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	products, err := h.service.HomeTab(ctx, tab, h.query(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, products)
}

func (h *Handler) banners(w http.ResponseWriter, r *http.Request) {
	banners, err := h.service.Banners(r.Context(), h.locales.FromRequest(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	out := make([]bannerResponse, 0, len(banners))
	for _, b := range banners {
		out = append(out, bannerResponse{ID: b.ID, Title: b.Title, ImageURL: b.ImageURL, LinkURL: b.LinkURL, SortOrder: b.SortOrder})
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) page(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Page(r.Context(), chi.URLParam(r, "slug"), h.locales.FromRequest(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, pageResponse{Slug: p.Slug, Locale: p.Locale, Title: p.Title, Content: p.Content})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrItemNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "Item not found")
	case errors.Is(err, domain.ErrPageNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "Page not found")
	case errors.Is(err, domain.ErrUnknownTab), errors.Is(err, currency.ErrUnknownCurrency):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		h.log.Error("catalog request failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}
