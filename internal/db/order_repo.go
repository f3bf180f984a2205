package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"chatforge/internal/types"
)

// PayPalOrderRepository provides data access for the paypal_orders table.
// Rows are created before the user is redirected to PayPal and finalized on
// the capture callback.
type PayPalOrderRepository struct {
	db DBTX
}

// NewPayPalOrderRepository creates a new PayPalOrderRepository backed by the
// given database connection (pool or transaction).
func NewPayPalOrderRepository(db DBTX) *PayPalOrderRepository {
	return &PayPalOrderRepository{db: db}
}

// Insert stores a freshly created order with status "created".
func (r *PayPalOrderRepository) Insert(ctx context.Context, order *types.PayPalOrder) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO paypal_orders
		   (order_id, user_id, plan, amount, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NOW(), NOW())`,
		order.OrderID,
		order.UserID,
		order.Plan,
		order.Amount,
		types.OrderStatusCreated,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to store paypal order", err)
	}
	return nil
}

// GetForUser retrieves an order by provider order ID, scoped to the
// requesting user so one user cannot capture another user's order.
// Returns ErrCodeNotFoundOrder if no matching row exists.
func (r *PayPalOrderRepository) GetForUser(ctx context.Context, orderID, userID string) (*types.PayPalOrder, error) {
	var o types.PayPalOrder
	var captureID *string
	err := r.db.QueryRow(ctx,
		`SELECT order_id, user_id, plan, amount, status, capture_id, created_at, updated_at
		 FROM paypal_orders
		 WHERE order_id = $1 AND user_id = $2`,
		orderID,
		userID,
	).Scan(&o.OrderID, &o.UserID, &o.Plan, &o.Amount, &o.Status, &captureID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundOrder, "order not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve paypal order", err)
	}
	if captureID != nil {
		o.CaptureID = *captureID
	}
	return &o, nil
}

// MarkCompleted transitions the order to "completed" and records the
// provider's capture ID.
func (r *PayPalOrderRepository) MarkCompleted(ctx context.Context, orderID, captureID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE paypal_orders
		 SET status = $2, capture_id = $3, updated_at = NOW()
		 WHERE order_id = $1`,
		orderID,
		types.OrderStatusCompleted,
		captureID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to complete paypal order", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundOrder, "order not found", nil)
	}
	return nil
}
