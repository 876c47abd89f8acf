package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/raibee/backend/internal/db"
	"github.com/raibee/backend/internal/models"
)

// PostgresVideoRepository provides PostgreSQL-backed persistence for videos.
type PostgresVideoRepository struct {
	pool db.Pool
}

// NewPostgresVideoRepository constructs a video repository backed by PostgreSQL.
func NewPostgresVideoRepository(pool db.Pool) *PostgresVideoRepository {
	return &PostgresVideoRepository{pool: pool}
}

const selectVideo = `
        SELECT v.id, v.owner_id, u.name, u.email, v.title, v.storage_ref,
               (v.price * 100)::BIGINT, v.visibility, v.created_at
        FROM videos v
        JOIN users u ON u.id = v.owner_id
`

// Create stores a new video record. Price is persisted as a two-decimal amount.
func (r *PostgresVideoRepository) Create(ctx context.Context, video models.Video) error {
	if video.PriceCents < 0 {
		return fmt.Errorf("insert video: negative price %d", video.PriceCents)
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO videos (id, owner_id, title, storage_ref, price, visibility, created_at)
        VALUES ($1, $2, $3, $4, $5::NUMERIC / 100, $6, $7)
    `, video.ID, video.OwnerID, video.Title, video.StorageRef, video.PriceCents, string(video.Visibility), video.CreatedAt)
	if err != nil {
		return mapWriteError("insert video", err)
	}

	return nil
}

// FindByID loads a single video together with its owner's display details.
func (r *PostgresVideoRepository) FindByID(ctx context.Context, id string) (models.Video, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Video{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	video, err := scanVideo(conn.QueryRow(ctx, selectVideo+` WHERE v.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Video{}, ErrNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "22P02" {
			return models.Video{}, ErrNotFound
		}
		return models.Video{}, fmt.Errorf("select video: %w", err)
	}
	return video, nil
}

// List returns the catalogue newest first.
func (r *PostgresVideoRepository) List(ctx context.Context) ([]models.Video, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, selectVideo+` ORDER BY v.created_at DESC, v.id LIMIT $1`, VideoListLimit)
	if err != nil {
		return nil, fmt.Errorf("query videos: %w", err)
	}
	defer rows.Close()

	var videos []models.Video
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, video)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos: %w", err)
	}

	return videos, nil
}

func scanVideo(row pgx.Row) (models.Video, error) {
	var (
		video      models.Video
		visibility string
	)
	if err := row.Scan(&video.ID, &video.OwnerID, &video.OwnerName, &video.OwnerEmail, &video.Title,
		&video.StorageRef, &video.PriceCents, &visibility, &video.CreatedAt); err != nil {
		return models.Video{}, err
	}
	video.Visibility = models.Visibility(visibility)
	video.CreatedAt = video.CreatedAt.UTC()
	return video, nil
}

var _ VideoRepository = (*PostgresVideoRepository)(nil)
