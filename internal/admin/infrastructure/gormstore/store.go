package gormstore

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dmehra2102/storefront/internal/admin/application"
)

const (
	checkViolation = "23514"
	invalidText    = "22P02"
)

// Config describes how one record type maps onto its table.
type Config[T any] struct {
	// Key is the primary key column.
	Key     string
	Order   string
	Preload []string
	// Filters are the columns a list may be narrowed by.
	Filters []string
	// SaveChildren replaces nested records after the parent row is written.
	// id is empty on create, where rec already carries its generated key.
	SaveChildren func(tx *gorm.DB, id string, rec *T) error
}

type Store[T any] struct {
	db  *gorm.DB
	cfg Config[T]
}

func NewStore[T any](db *gorm.DB, cfg Config[T]) *Store[T] {
	if cfg.Key == "" {
		cfg.Key = "id"
	}
	if cfg.Order == "" {
		cfg.Order = cfg.Key
	}
	return &Store[T]{db: db, cfg: cfg}
}

func (s *Store[T]) query(ctx context.Context) *gorm.DB {
	q := s.db.WithContext(ctx)
	for _, p := range s.cfg.Preload {
		q = q.Preload(p)
	}
	return q
}

func (s *Store[T]) List(ctx context.Context, q application.Query) ([]T, error) {
	tx := s.query(ctx).Order(s.cfg.Order).Limit(q.Limit).Offset(q.Offset)
	for col, val := range q.Filters {
		if !slices.Contains(s.cfg.Filters, col) {
			continue
		}
		tx = tx.Where(clause.Eq{Column: clause.Column{Name: col}, Value: val})
	}
	var out []T
	if err := tx.Find(&out).Error; err != nil {
		return nil, translate(err)
	}
	return out, nil
}

func (s *Store[T]) Get(ctx context.Context, id string) (T, error) {
	var rec T
	err := s.query(ctx).Where(s.keyEq(id)).First(&rec).Error
	return rec, translate(err)
}

func (s *Store[T]) Create(ctx context.Context, rec *T) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(rec).Error; err != nil {
			return err
		}
		if s.cfg.SaveChildren != nil {
			return s.cfg.SaveChildren(tx, "", rec)
		}
		return nil
	})
	return translate(err)
}

func (s *Store[T]) Update(ctx context.Context, id string, rec *T) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current T
		if err := tx.Where(s.keyEq(id)).First(&current).Error; err != nil {
			return err
		}
		res := tx.Model(&current).
			Select("*").
			Omit(s.cfg.Key, "created_at", clause.Associations).
			Updates(rec)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		if s.cfg.SaveChildren != nil {
			return s.cfg.SaveChildren(tx, id, rec)
		}
		return nil
	})
	return translate(err)
}

func (s *Store[T]) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where(s.keyEq(id)).Delete(new(T))
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return application.ErrNotFound
	}
	return nil
}

func (s *Store[T]) keyEq(id string) clause.Eq {
	return clause.Eq{Column: clause.Column{Name: s.cfg.Key}, Value: id}
}

func translate(err error) error {
	var pgErr *pgconn.PgError
	switch {
	case err == nil:
		return nil
	case isMissing(err):
		return application.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey), errors.Is(err, gorm.ErrForeignKeyViolated):
		return fmt.Errorf("%w: %v", application.ErrConflict, err)
	case errors.As(err, &pgErr) && pgErr.Code == invalidText:
		return application.ErrNotFound
	case errors.As(err, &pgErr) && pgErr.Code == checkViolation:
		return fmt.Errorf("%w: %s", application.ErrInvalid, pgErr.ConstraintName)
	default:
		return err
	}
}
