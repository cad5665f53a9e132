package currency

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type PostgresRates struct {
	pool *pgxpool.Pool
}

func NewPostgresRates(pool *pgxpool.Pool) *PostgresRates {
	return &PostgresRates{pool: pool}
}

func (r *PostgresRates) Rates(ctx context.Context) (map[string]decimal.Decimal, error) {
	rows, err := r.pool.Query(ctx, `SELECT code, rate FROM currency_rates`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]decimal.Decimal{}
	for rows.Next() {
		var code string
		var rate decimal.Decimal
		if err := rows.Scan(&code, &rate); err != nil {
			return nil, err
		}
		out[code] = rate
	}
	return out, rows.Err()
}
