package application

import (
	"context"
	"errors"
	"log/slog"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record conflicts with existing data")
	ErrInvalid  = errors.New("record violates a constraint")
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Query narrows a list to exact column matches. Only columns the resource
// declares filterable are honoured by the store.
type Query struct {
	Filters map[string]string
	Limit   int
	Offset  int
}

// Store persists one record type. Update replaces every column of the record
// identified by id, nested records included.
type Store[T any] interface {
	List(ctx context.Context, q Query) ([]T, error)
	Get(ctx context.Context, id string) (T, error)
	Create(ctx context.Context, rec *T) error
	Update(ctx context.Context, id string, rec *T) error
	Delete(ctx context.Context, id string) error
}

// Resource is the back-office CRUD for one record type.
type Resource[T any] struct {
	name     string
	log      *slog.Logger
	store    Store[T]
	onChange func(ctx context.Context)
}

type ResourceOption[T any] func(*Resource[T])

// OnChange registers fn to run after every successful write.
func OnChange[T any](fn func(ctx context.Context)) ResourceOption[T] {
	return func(r *Resource[T]) { r.onChange = fn }
}

func NewResource[T any](name string, log *slog.Logger, store Store[T], opts ...ResourceOption[T]) *Resource[T] {
	r := &Resource[T]{name: name, log: log.With("resource", name), store: store}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resource[T]) Name() string { return r.name }

func (r *Resource[T]) List(ctx context.Context, q Query) ([]T, error) {
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return r.store.List(ctx, q)
}

func (r *Resource[T]) Get(ctx context.Context, id string) (T, error) {
	return r.store.Get(ctx, id)
}

func (r *Resource[T]) Create(ctx context.Context, rec T) (T, error) {
	if err := r.store.Create(ctx, &rec); err != nil {
		var zero T
		return zero, err
	}
	r.log.Info("record created")
	r.changed(ctx)
	return rec, nil
}

func (r *Resource[T]) Update(ctx context.Context, id string, rec T) (T, error) {
	var zero T
	if err := r.store.Update(ctx, id, &rec); err != nil {
		return zero, err
	}
	r.log.Info("record updated", "id", id)
	r.changed(ctx)
	return r.store.Get(ctx, id)
}

func (r *Resource[T]) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, id); err != nil {
		return err
	}
	r.log.Info("record deleted", "id", id)
	r.changed(ctx)
	return nil
}

func (r *Resource[T]) changed(ctx context.Context) {
	if r.onChange != nil {
		r.onChange(ctx)
	}
}
