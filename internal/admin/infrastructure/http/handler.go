package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/storefront/internal/admin/application"
	"github.com/dmehra2102/storefront/internal/platform/httpx"
)

// Handler exposes one resource as list/get/create/replace/delete. Employers
// may read, writes need the admin role.
type Handler[T any] struct {
	log      *slog.Logger
	resource *application.Resource[T]
	filters  []string
	tracer   trace.Tracer
}

func NewHandler[T any](log *slog.Logger, resource *application.Resource[T], filters []string) *Handler[T] {
	return &Handler[T]{
		log:      log,
		resource: resource,
		filters:  filters,
		tracer:   otel.Tracer("admin-http"),
	}
}

func (h *Handler[T]) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(httpx.RequireRole(httpx.RoleAdmin, httpx.RoleEmployer))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(httpx.RequireRole(httpx.RoleAdmin))
		r.Post("/", h.create)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
	})
}

func (h *Handler[T]) list(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "AdminList "+h.resource.Name())
	defer span.End()

	q := r.URL.Query()
	query := application.Query{Filters: map[string]string{}}
	query.Limit, _ = strconv.Atoi(q.Get("limit"))
	query.Offset, _ = strconv.Atoi(q.Get("offset"))
	for _, f := range h.filters {
		if v := q.Get(f); v != "" {
			query.Filters[f] = v
		}
	}

	recs, err := h.resource.List(ctx, query)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if recs == nil {
		recs = []T{}
	}
	httpx.WriteJSON(w, http.StatusOK, recs)
}

func (h *Handler[T]) get(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "AdminGet "+h.resource.Name())
	defer span.End()

	rec, err := h.resource.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler[T]) create(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "AdminCreate "+h.resource.Name())
	defer span.End()

	var rec T
	if err := httpx.Decode(r, &rec); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	out, err := h.resource.Create(ctx, rec)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, out)
}

func (h *Handler[T]) update(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "AdminUpdate "+h.resource.Name())
	defer span.End()

	var rec T
	if err := httpx.Decode(r, &rec); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	out, err := h.resource.Update(ctx, chi.URLParam(r, "id"), rec)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler[T]) delete(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "AdminDelete "+h.resource.Name())
	defer span.End()

	if err := h.resource.Delete(ctx, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler[T]) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, application.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "Record not found")
	case errors.Is(err, application.ErrConflict):
		httpx.WriteError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, application.ErrInvalid):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		h.log.Error("admin request failed", "resource", h.resource.Name(), "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}
