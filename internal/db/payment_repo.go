package db

import (
	"context"

	"chatforge/internal/types"
)

// PaymentRepository provides access to the append-only payments ledger.
// Rows are write-once; there is no update path by design.
type PaymentRepository struct {
	db DBTX
}

// NewPaymentRepository creates a new PaymentRepository backed by the given
// database connection (pool or transaction).
func NewPaymentRepository(db DBTX) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Insert appends one ledger row.
func (r *PaymentRepository) Insert(ctx context.Context, p types.Payment) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO payments
		   (user_id, amount, currency, status, payment_method, provider_id, plan, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`,
		p.UserID,
		p.Amount,
		p.Currency,
		p.Status,
		p.Method,
		p.ProviderID,
		p.Plan,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to append payment", err)
	}
	return nil
}

// TotalRevenue sums all completed ledger rows. Admin surface only.
func (r *PaymentRepository) TotalRevenue(ctx context.Context) (float64, error) {
	var total float64
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM payments WHERE status = 'completed'`,
	).Scan(&total)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to sum revenue", err)
	}
	return total, nil
}
