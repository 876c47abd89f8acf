package repositories

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/cockroach-go/v2/testserver"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/raibee/backend/internal/auth"
	"github.com/raibee/backend/internal/models"
)

var (
	testPool     *pgxpool.Pool
	testPoolErr  error
	testPoolOnce sync.Once
	stopServer   func()
)

func TestMain(m *testing.M) {
	code := m.Run()

	if testPool != nil {
		testPool.Close()
	}
	if stopServer != nil {
		stopServer()
	}

	os.Exit(code)
}

// requirePool starts the cockroach test server on first use. Tests that only
// exercise the in-memory store never pay for it.
func requirePool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database integration test in short mode")
	}

	testPoolOnce.Do(func() {
		server, err := testserver.NewTestServer()
		if err != nil {
			testPoolErr = fmt.Errorf("start cockroach test server: %w", err)
			return
		}
		stopServer = server.Stop

		ctx := context.Background()
		pool, err := pgxpool.New(ctx, server.PGURL().String())
		if err != nil {
			testPoolErr = fmt.Errorf("connect to cockroach test server: %w", err)
			return
		}

		if err := applyMigrations(ctx, pool); err != nil {
			pool.Close()
			testPoolErr = fmt.Errorf("apply migrations: %w", err)
			return
		}
		testPool = pool
	})

	if testPoolErr != nil {
		t.Fatalf("%v", testPoolErr)
	}
	resetDatabase(t)
	return testPool
}

func TestPostgresUserRepository_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	pool := requirePool(t)

	repo := NewPostgresUserRepository(pool)

	user := models.User{
		ID:        uuid.NewString(),
		Name:      "Alice",
		Email:     "alice@example.com",
		Password:  "secret-hash",
		Role:      models.RoleCreator,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	dup := user
	dup.ID = uuid.NewString()
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict when creating duplicate email, got %v", err)
	}

	fetched, err := repo.FindByEmail(ctx, user.Email)
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if fetched.ID != user.ID || fetched.Name != user.Name || fetched.Password != user.Password || fetched.Role != models.RoleCreator {
		t.Fatalf("unexpected user fetched: %+v", fetched)
	}

	byID, err := repo.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if byID.Email != user.Email {
		t.Fatalf("unexpected user by id: %+v", byID)
	}

	if _, err := repo.FindByEmail(ctx, "missing@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown email, got %v", err)
	}
	if _, err := repo.FindByID(ctx, "not-a-uuid"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for malformed id, got %v", err)
	}
}

func TestPostgresVideoRepository_CreateFindAndList(t *testing.T) {
	ctx := context.Background()
	pool := requirePool(t)

	userRepo := NewPostgresUserRepository(pool)
	videoRepo := NewPostgresVideoRepository(pool)
	creator := createTestUser(t, userRepo, "creator@example.com", models.RoleCreator)

	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)
	older := models.Video{
		ID:         uuid.NewString(),
		OwnerID:    creator.ID,
		Title:      "Older",
		StorageRef: uuid.NewString() + ".enc",
		PriceCents: 1299,
		Visibility: models.VisibilityForSale,
		CreatedAt:  base,
	}
	newer := models.Video{
		ID:         uuid.NewString(),
		OwnerID:    creator.ID,
		Title:      "Newer",
		StorageRef: uuid.NewString() + ".enc",
		Visibility: models.VisibilityPublic,
		CreatedAt:  base.Add(10 * time.Minute),
	}

	for _, video := range []models.Video{older, newer} {
		if err := videoRepo.Create(ctx, video); err != nil {
			t.Fatalf("create video %s: %v", video.Title, err)
		}
	}

	dupRef := newer
	dupRef.ID = uuid.NewString()
	if err := videoRepo.Create(ctx, dupRef); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for reused storage ref, got %v", err)
	}

	orphan := older
	orphan.ID = uuid.NewString()
	orphan.StorageRef = uuid.NewString() + ".enc"
	orphan.OwnerID = uuid.NewString()
	if err := videoRepo.Create(ctx, orphan); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown owner, got %v", err)
	}

	fetched, err := videoRepo.FindByID(ctx, older.ID)
	if err != nil {
		t.Fatalf("find video: %v", err)
	}
	if fetched.PriceCents != 1299 || fetched.Price() != "12.99" {
		t.Fatalf("unexpected price round trip: %d", fetched.PriceCents)
	}
	if fetched.OwnerName != creator.Name || fetched.OwnerEmail != creator.Email {
		t.Fatalf("expected owner details joined, got %+v", fetched)
	}
	if fetched.Visibility != models.VisibilityForSale || fetched.StorageRef != older.StorageRef {
		t.Fatalf("unexpected video fetched: %+v", fetched)
	}

	if _, err := videoRepo.FindByID(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown video, got %v", err)
	}
	if _, err := videoRepo.FindByID(ctx, "garbage"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for malformed id, got %v", err)
	}

	list, err := videoRepo.List(ctx)
	if err != nil {
		t.Fatalf("list videos: %v", err)
	}
	if len(list) != 2 || list[0].ID != newer.ID || list[1].ID != older.ID {
		t.Fatalf("unexpected list order: %+v", list)
	}
}

func TestPostgresPurchaseRepository_CreateAndHas(t *testing.T) {
	ctx := context.Background()
	pool := requirePool(t)

	userRepo := NewPostgresUserRepository(pool)
	videoRepo := NewPostgresVideoRepository(pool)
	purchaseRepo := NewPostgresPurchaseRepository(pool)

	creator := createTestUser(t, userRepo, "creator@example.com", models.RoleCreator)
	fan := createTestUser(t, userRepo, "fan@example.com", models.RoleFan)
	other := createTestUser(t, userRepo, "other@example.com", models.RoleFan)

	video := models.Video{
		ID:         uuid.NewString(),
		OwnerID:    creator.ID,
		Title:      "Paid",
		StorageRef: uuid.NewString() + ".enc",
		PriceCents: 500,
		Visibility: models.VisibilityForSale,
		CreatedAt:  time.Now().UTC(),
	}
	if err := videoRepo.Create(ctx, video); err != nil {
		t.Fatalf("create video: %v", err)
	}

	has, err := purchaseRepo.HasPurchase(ctx, fan.ID, video.ID)
	if err != nil {
		t.Fatalf("has purchase: %v", err)
	}
	if has {
		t.Fatal("expected no purchase before recording")
	}

	for i := 0; i < 2; i++ {
		purchase := models.Purchase{
			ID:                uuid.NewString(),
			UserID:            fan.ID,
			VideoID:           video.ID,
			Provider:          "stripe",
			ProviderPaymentID: fmt.Sprintf("pi_%d", i),
			CreatedAt:         time.Now().UTC(),
		}
		if err := purchaseRepo.Create(ctx, purchase); err != nil {
			t.Fatalf("create purchase %d: %v", i, err)
		}
	}

	has, err = purchaseRepo.HasPurchase(ctx, fan.ID, video.ID)
	if err != nil {
		t.Fatalf("has purchase: %v", err)
	}
	if !has {
		t.Fatal("expected purchase to be found")
	}

	has, err = purchaseRepo.HasPurchase(ctx, other.ID, video.ID)
	if err != nil {
		t.Fatalf("has purchase for other: %v", err)
	}
	if has {
		t.Fatal("purchase must not grant access to another user")
	}

	missingVideo := models.Purchase{
		ID:        uuid.NewString(),
		UserID:    fan.ID,
		VideoID:   uuid.NewString(),
		Provider:  "manual",
		CreatedAt: time.Now().UTC(),
	}
	if err := purchaseRepo.Create(ctx, missingVideo); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown video, got %v", err)
	}
}

func TestPostgresSessionStore_SaveFindRotateAndDelete(t *testing.T) {
	ctx := context.Background()
	pool := requirePool(t)

	userRepo := NewPostgresUserRepository(pool)
	user := createTestUser(t, userRepo, "owner@example.com", models.RoleFan)

	store := NewPostgresSessionStore(pool)
	expires := time.Now().UTC().Add(24 * time.Hour)
	session := auth.Session{
		RefreshToken: uuid.NewString(),
		UserID:       user.ID,
		ExpiresAt:    expires,
	}

	if err := store.Save(ctx, session); err != nil {
		t.Fatalf("save session: %v", err)
	}

	loaded, err := store.Find(ctx, session.RefreshToken)
	if err != nil {
		t.Fatalf("find session: %v", err)
	}
	if loaded.UserID != session.UserID || !timesClose(loaded.ExpiresAt, expires, time.Millisecond) {
		t.Fatalf("unexpected session loaded: %+v", loaded)
	}

	next := auth.Session{
		RefreshToken: uuid.NewString(),
		UserID:       user.ID,
		ExpiresAt:    expires.Add(48 * time.Hour),
	}
	if err := store.Rotate(ctx, session.RefreshToken, next); err != nil {
		t.Fatalf("rotate session: %v", err)
	}
	if _, err := store.Find(ctx, session.RefreshToken); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("expected rotated-out token to be gone, got %v", err)
	}

	replay := auth.Session{RefreshToken: uuid.NewString(), UserID: user.ID, ExpiresAt: expires}
	if err := store.Rotate(ctx, session.RefreshToken, replay); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("expected replayed rotation to fail, got %v", err)
	}
	if _, err := store.Find(ctx, replay.RefreshToken); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("failed rotation must not persist a session, got %v", err)
	}

	if err := store.Delete(ctx, next.RefreshToken); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if err := store.Delete(ctx, next.RefreshToken); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound deleting twice, got %v", err)
	}
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrationsDir := filepath.Join("..", "..", "migrations")
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".sql" {
			continue
		}
		contents, err := os.ReadFile(filepath.Join(migrationsDir, entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}

		if _, err := pool.Exec(ctx, string(contents)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
	}

	return nil
}

func resetDatabase(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	conn, err := testPool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire connection: %v", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "TRUNCATE TABLE purchases, sessions, videos, users CASCADE"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

func createTestUser(t *testing.T, repo *PostgresUserRepository, email string, role models.Role) models.User {
	t.Helper()
	user := models.User{
		ID:        uuid.NewString(),
		Name:      "User " + email,
		Email:     email,
		Password:  "password-hash",
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("create test user: %v", err)
	}
	return user
}

func timesClose(a, b time.Time, tolerance time.Duration) bool {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance
}
