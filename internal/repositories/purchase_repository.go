package repositories

import (
	"context"

	"github.com/raibee/backend/internal/models"
)

// PurchaseRepository records and queries purchase grants.
type PurchaseRepository interface {
	Create(ctx context.Context, purchase models.Purchase) error
	HasPurchase(ctx context.Context, userID, videoID string) (bool, error)
}
