package repositories

import (
	"context"

	"github.com/raibee/backend/internal/models"
)

// VideoListLimit caps List results, newest first.
const VideoListLimit = 200

// VideoRepository exposes data access for uploaded videos. Videos are never
// updated once created.
type VideoRepository interface {
	Create(ctx context.Context, video models.Video) error
	FindByID(ctx context.Context, id string) (models.Video, error)
	// List returns at most VideoListLimit videos, newest first.
	List(ctx context.Context) ([]models.Video, error)
}
