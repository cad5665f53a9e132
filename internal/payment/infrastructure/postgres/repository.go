package postgres

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/storefront/internal/payment/domain"
	"github.com/dmehra2102/storefront/pkg/outbox"
)

const paymentColumns = `id, order_id, status, currency, amount, method, session_id, provider_token,
	COALESCE(provider_order_id, 0), created_at, updated_at`

const upsertPayment = `INSERT INTO payments (id, order_id, status, currency, amount, method, session_id,
		provider_token, provider_order_id, created_at, updated_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NULLIF($9::bigint, 0),$10,$11)
	ON CONFLICT (id) DO UPDATE SET status=$3, method=$6, provider_token=$8,
		provider_order_id=NULLIF($9::bigint, 0), updated_at=$11`

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) Save(ctx context.Context, p domain.Payment) error {
	_, err := r.pool.Exec(ctx, upsertPayment, paymentArgs(p)...)
	return err
}

// SaveWithOutbox upserts the payment and records its event in one transaction.
func (r *Repository) SaveWithOutbox(ctx context.Context, p domain.Payment, eventType string, payload []byte, headers map[string]string, traceparent string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, upsertPayment, paymentArgs(p)...); err != nil {
		return err
	}

	err = outbox.Append(ctx, tx, outbox.Message{
		AggregateType: "payment",
		AggregateID:   p.OrderID,
		Type:          eventType,
		Payload:       payload,
		Headers:       headers,
		Traceparent:   traceparent,
	})
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) BySession(ctx context.Context, sessionID string) (domain.Payment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE session_id=$1`, sessionID)
	return scanPayment(row)
}

func (r *Repository) LatestForOrder(ctx context.Context, orderID string) (domain.Payment, error) {
	if _, err := uuid.Parse(orderID); err != nil {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	row := r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments
		WHERE order_id=$1 ORDER BY created_at DESC LIMIT 1`, orderID)
	return scanPayment(row)
}

func paymentArgs(p domain.Payment) []any {
	return []any{p.ID, p.OrderID, string(p.Status), p.Currency, p.Amount, p.Method, p.SessionID,
		p.ProviderToken, p.ProviderOrderID, p.CreatedAt, p.UpdatedAt}
}

func scanPayment(row pgx.Row) (domain.Payment, error) {
	var (
		p      domain.Payment
		status string
	)
	err := row.Scan(&p.ID, &p.OrderID, &status, &p.Currency, &p.Amount, &p.Method, &p.SessionID,
		&p.ProviderToken, &p.ProviderOrderID, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	if err != nil {
		return domain.Payment{}, err
	}
	p.Status = domain.Status(status)
	return p, nil
}
