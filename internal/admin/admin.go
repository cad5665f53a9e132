// Package admin assembles the back-office CRUD resources.
package admin

import (
	"context"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/dmehra2102/storefront/internal/admin/application"
	"github.com/dmehra2102/storefront/internal/admin/domain"
	"github.com/dmehra2102/storefront/internal/admin/infrastructure/gormstore"
	adminhttp "github.com/dmehra2102/storefront/internal/admin/infrastructure/http"
)

// RateRefresher reloads cached currency rates after they are edited.
type RateRefresher interface {
	Refresh(ctx context.Context) error
}

// Routes returns the mount function for /api/admin. Identity must already be
// on the request context.
func Routes(log *slog.Logger, db *gorm.DB, rates RateRefresher) func(chi.Router) {
	return func(r chi.Router) {
		mount(r, "/brands", log, db, gormstore.Config[domain.Brand]{Order: "name"}, []string{"slug"})
		mount(r, "/categories", log, db, gormstore.Config[domain.Category]{Order: "sort_order, id"}, []string{"parent_slug"})
		mount(r, "/warehouses", log, db, gormstore.Config[domain.Warehouse]{}, []string{"country_code"})
		mount(r, "/items", log, db, gormstore.ItemConfig(), gormstore.ItemConfig().Filters)
		mount(r, "/users", log, db, gormstore.Config[domain.User]{Order: "email"}, []string{"role", "email"})
		mount(r, "/banners", log, db, gormstore.Config[domain.Banner]{Order: "locale, sort_order"}, []string{"locale"})
		mount(r, "/pages", log, db, gormstore.Config[domain.Page]{Order: "slug, locale"}, []string{"slug", "locale"})

		onRates := application.OnChange[domain.CurrencyRate](func(ctx context.Context) {
			if rates == nil {
				return
			}
			if err := rates.Refresh(ctx); err != nil {
				log.Error("refresh currency rates after edit", "err", err)
			}
		})
		mount(r, "/currency-rates", log, db, gormstore.Config[domain.CurrencyRate]{Key: "code"}, nil, onRates)
	}
}

func mount[T any](r chi.Router, path string, log *slog.Logger, db *gorm.DB, cfg gormstore.Config[T], filters []string, opts ...application.ResourceOption[T]) {
	cfg.Filters = filters
	name := path[1:]
	res := application.NewResource[T](name, log, gormstore.NewStore(db, cfg), opts...)
	r.Route(path, adminhttp.NewHandler(log, res, filters).Routes)
}
