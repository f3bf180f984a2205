package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"chatforge/internal/types"
)

// ProfileRepository provides data access for the user_profiles table.
// Every operation is a direct remote read or write; there is no local
// memoization and no optimistic concurrency token (last writer wins).
type ProfileRepository struct {
	db DBTX
}

// NewProfileRepository creates a new ProfileRepository backed by the given
// database connection (pool or transaction).
func NewProfileRepository(db DBTX) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// profileColumns defines the standard set of columns selected for profile
// queries. Used consistently across all query methods to avoid column drift.
const profileColumns = `p.user_id, p.email, p.full_name, p.subscription_plan, p.subscription_status,
	p.tokens_used, p.tokens_remaining, p.token_limit, p.total_messages,
	p.stripe_customer_id, p.stripe_subscription_id, p.is_active, p.is_admin,
	p.created_at, p.updated_at`

// scanProfile scans a single profile row into a types.Profile struct.
// The columns must match the order defined in profileColumns. Uses nullable
// scan targets for the columns that may be NULL (full_name and both Stripe
// linkage columns).
func scanProfile(row pgx.Row) (*types.Profile, error) {
	var p types.Profile
	var (
		fullName       *string
		customerID     *string
		subscriptionID *string
	)
	err := row.Scan(
		&p.UserID,
		&p.Email,
		&fullName,
		&p.SubscriptionPlan,
		&p.SubscriptionStatus,
		&p.TokensUsed,
		&p.TokensRemaining,
		&p.TokenLimit,
		&p.TotalMessages,
		&customerID,
		&subscriptionID,
		&p.IsActive,
		&p.IsAdmin,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if fullName != nil {
		p.FullName = *fullName
	}
	if customerID != nil {
		p.StripeCustomerID = *customerID
	}
	if subscriptionID != nil {
		p.StripeSubscriptionID = *subscriptionID
	}
	return &p, nil
}

// GetByUserID retrieves a profile by the auth provider's user ID.
// Returns ErrCodeNotFoundProfile if no row exists.
func (r *ProfileRepository) GetByUserID(ctx context.Context, userID string) (*types.Profile, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM user_profiles p WHERE p.user_id = $1`,
		userID,
	)

	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundProfile, "profile not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve profile", err)
	}
	return p, nil
}

// GetByStripeCustomerID retrieves a profile by its Stripe customer linkage.
// Used by the webhook dispatcher to resolve events carrying only a customer ID.
func (r *ProfileRepository) GetByStripeCustomerID(ctx context.Context, customerID string) (*types.Profile, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM user_profiles p WHERE p.stripe_customer_id = $1`,
		customerID,
	)

	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundProfile, "profile not found for customer", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve profile by customer", err)
	}
	return p, nil
}

// Create inserts a new profile seeded with free-plan defaults
// (token_limit = tokens_remaining = 1000, tokens_used = 0) and returns the
// stored row. Concurrent double-creation is fenced only by the table's
// primary key on user_id.
func (r *ProfileRepository) Create(ctx context.Context, userID, email, fullName string) (*types.Profile, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO user_profiles
		   (user_id, email, full_name, subscription_plan, subscription_status,
		    tokens_used, tokens_remaining, token_limit, total_messages,
		    is_active, is_admin, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, 0, $6, $6, 0, TRUE, FALSE, NOW(), NOW())
		 RETURNING `+selfColumns(profileColumns),
		userID,
		email,
		fullName,
		types.PlanFree,
		types.SubStatusActive,
		types.FreePlanTokens,
	)

	p, err := scanProfile(row)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to create profile", err)
	}
	return p, nil
}

// Update applies a partial field merge to the profile row. Nil fields in the
// update are left untouched; updated_at is always stamped.
func (r *ProfileRepository) Update(ctx context.Context, userID string, upd types.ProfileUpdate) error {
	set := []string{"updated_at = NOW()"}
	args := []any{userID}

	add := func(column string, value any) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if upd.SubscriptionPlan != nil {
		add("subscription_plan", *upd.SubscriptionPlan)
	}
	if upd.SubscriptionStatus != nil {
		add("subscription_status", *upd.SubscriptionStatus)
	}
	if upd.TokensUsed != nil {
		add("tokens_used", *upd.TokensUsed)
	}
	if upd.TokensRemaining != nil {
		add("tokens_remaining", *upd.TokensRemaining)
	}
	if upd.TokenLimit != nil {
		add("token_limit", *upd.TokenLimit)
	}
	if upd.StripeCustomerID != nil {
		add("stripe_customer_id", *upd.StripeCustomerID)
	}
	if upd.ClearSubscriptionID {
		set = append(set, "stripe_subscription_id = NULL")
	} else if upd.StripeSubscriptionID != nil {
		add("stripe_subscription_id", *upd.StripeSubscriptionID)
	}

	sql := fmt.Sprintf("UPDATE user_profiles SET %s WHERE user_id = $1", strings.Join(set, ", "))
	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update profile", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundProfile, "profile not found", nil)
	}
	return nil
}

// ApplyChatUsage records one completed chat turn against the profile's token
// balance in a single atomic UPDATE: tokens_used grows, tokens_remaining is
// decremented with a floor at zero, and total_messages is incremented. The
// statement returns the post-update row so callers can report the new balance
// without a second read.
//
// The pre-flight "tokens_remaining > 0" check in the chat handler is only
// advisory; this statement is what keeps the counters consistent when two
// turns from the same user land concurrently.
func (r *ProfileRepository) ApplyChatUsage(ctx context.Context, userID string, tokensUsed int) (*types.Profile, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE user_profiles p
		 SET tokens_used = tokens_used + $2,
		     tokens_remaining = GREATEST(tokens_remaining - $2, 0),
		     total_messages = total_messages + 1,
		     updated_at = NOW()
		 WHERE user_id = $1
		 RETURNING `+profileColumns,
		userID,
		tokensUsed,
	)

	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundProfile, "profile not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to apply chat usage", err)
	}
	return p, nil
}

// ListAll returns every profile, newest first. Admin surface only.
func (r *ProfileRepository) ListAll(ctx context.Context) ([]*types.Profile, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+profileColumns+` FROM user_profiles p ORDER BY p.created_at DESC`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list profiles", err)
	}
	defer rows.Close()

	var profiles []*types.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan profile row", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate profiles", err)
	}
	return profiles, nil
}

// Count returns the total number of profiles.
func (r *ProfileRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM user_profiles`).Scan(&n)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count profiles", err)
	}
	return n, nil
}

// CountActive returns the number of profiles flagged active.
func (r *ProfileRepository) CountActive(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM user_profiles WHERE is_active`).Scan(&n)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count active profiles", err)
	}
	return n, nil
}

// selfColumns strips the "p." qualifier from profileColumns for use in
// INSERT ... RETURNING, where no table alias is in scope.
func selfColumns(cols string) string {
	return strings.ReplaceAll(cols, "p.", "")
}
