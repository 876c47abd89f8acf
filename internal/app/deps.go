package app

import (
	"context"
	"fmt"

	"github.com/raibee/backend/internal/access"
	"github.com/raibee/backend/internal/auth"
	"github.com/raibee/backend/internal/config"
	"github.com/raibee/backend/internal/db"
	"github.com/raibee/backend/internal/handlers"
	"github.com/raibee/backend/internal/mediacipher"
	"github.com/raibee/backend/internal/metrics"
	"github.com/raibee/backend/internal/middleware"
	"github.com/raibee/backend/internal/playtoken"
	"github.com/raibee/backend/internal/purchases"
	"github.com/raibee/backend/internal/repositories"
	"github.com/raibee/backend/internal/storage"
	"github.com/raibee/backend/internal/streaming"
)

// stores groups the persistence backends selected by RAIBEE_STORE.
type stores struct {
	users     repositories.UserRepository
	videos    repositories.VideoRepository
	purchases repositories.PurchaseRepository
	sessions  auth.SessionStore
	health    handlers.Pinger
	close     func()
}

func openStores(ctx context.Context, cfg config.Config) (stores, error) {
	if cfg.Store == config.StoreMemory {
		return memoryStores(), nil
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return stores{}, err
	}
	return stores{
		users:     repositories.NewPostgresUserRepository(pool),
		videos:    repositories.NewPostgresVideoRepository(pool),
		purchases: repositories.NewPostgresPurchaseRepository(pool),
		sessions:  repositories.NewPostgresSessionStore(pool),
		health:    pool,
		close:     pool.Close,
	}, nil
}

func memoryStores() stores {
	mem := repositories.NewMemoryStore()
	return stores{
		users:     mem.Users(),
		videos:    mem.Videos(),
		purchases: mem.Purchases(),
		sessions:  auth.NewMemorySessionStore(),
		close:     func() {},
	}
}

func openBlobs(ctx context.Context, cfg config.BlobConfig) (storage.BlobStore, error) {
	switch cfg.Backend {
	case config.BlobS3:
		return storage.NewS3Storage(ctx, cfg.ObjectStore)
	case config.BlobFile, "":
		return storage.NewFileStore(cfg.Dir)
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.Backend)
	}
}

// buildDependencies wires together concrete implementations used by the HTTP handlers.
func buildDependencies(cfg config.Config, st stores, blobs storage.BlobStore, m *metrics.Metrics) (handlers.Dependencies, *purchases.Recorder, error) {
	cipher, err := mediacipher.New(cfg.EncryptionKey)
	if err != nil {
		return handlers.Dependencies{}, nil, fmt.Errorf("media cipher: %w", err)
	}
	issuer, err := playtoken.NewIssuer(cfg.SigningKey)
	if err != nil {
		return handlers.Dependencies{}, nil, err
	}
	sessions, err := auth.NewManager(cfg.SigningKey, cfg.AccessTokenTTL, cfg.RefreshTokenTTL, st.sessions, st.users)
	if err != nil {
		return handlers.Dependencies{}, nil, err
	}

	recorder := purchases.NewRecorder(st.purchases, m)
	limiter := middleware.NewIPRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window, cfg.RateLimit.Burst, 10*cfg.RateLimit.Window)

	deps := handlers.Dependencies{
		Database:       st.health,
		Users:          st.users,
		Sessions:       sessions,
		Authenticator:  sessions,
		LoginLimiter:   limiter,
		Videos:         st.videos,
		Blobs:          blobs,
		Cipher:         cipher,
		Access:         access.NewEngine(st.purchases, m),
		PlayTokens:     issuer,
		Streams:        streaming.NewService(issuer, st.videos, blobs, cipher, m),
		Purchases:      recorder,
		Observer:       m,
		Metrics:        m.Handler(),
		Platform:       cfg.Platform,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}
	return deps, recorder, nil
}
