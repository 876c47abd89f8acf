package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/raibee/backend/internal/db"
	"github.com/raibee/backend/internal/models"
)

// PostgresPurchaseRepository provides PostgreSQL-backed persistence for purchases.
type PostgresPurchaseRepository struct {
	pool db.Pool
}

// NewPostgresPurchaseRepository constructs a purchase repository backed by PostgreSQL.
func NewPostgresPurchaseRepository(pool db.Pool) *PostgresPurchaseRepository {
	return &PostgresPurchaseRepository{pool: pool}
}

// Create appends a purchase. Repeated purchases of the same video are kept.
func (r *PostgresPurchaseRepository) Create(ctx context.Context, purchase models.Purchase) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO purchases (id, user_id, video_id, provider, provider_payment_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, purchase.ID, purchase.UserID, purchase.VideoID, purchase.Provider, purchase.ProviderPaymentID, purchase.CreatedAt)
	if err != nil {
		return mapWriteError("insert purchase", err)
	}

	return nil
}

// HasPurchase reports whether at least one purchase exists for the pair.
func (r *PostgresPurchaseRepository) HasPurchase(ctx context.Context, userID, videoID string) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var exists bool
	err = conn.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM purchases WHERE user_id = $1 AND video_id = $2
        )
    `, userID, videoID).Scan(&exists)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "22P02" {
			return false, nil
		}
		return false, fmt.Errorf("query purchase: %w", err)
	}

	return exists, nil
}

var _ PurchaseRepository = (*PostgresPurchaseRepository)(nil)
