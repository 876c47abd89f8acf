package repositories

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/raibee/backend/internal/models"
)

func seedMemory(t *testing.T) (*MemoryStore, models.User, models.User) {
	t.Helper()
	store := NewMemoryStore()
	creator := models.User{ID: "creator-1", Name: "Creator", Email: "creator@example.com", Role: models.RoleCreator}
	fan := models.User{ID: "fan-1", Name: "Fan", Email: "fan@example.com", Role: models.RoleFan}
	for _, user := range []models.User{creator, fan} {
		if err := store.Users().Create(context.Background(), user); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}
	return store, creator, fan
}

func TestMemoryStoreUsers(t *testing.T) {
	store, creator, _ := seedMemory(t)
	ctx := context.Background()

	dup := creator
	dup.ID = "other"
	if err := store.Users().Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate email, got %v", err)
	}

	got, err := store.Users().FindByEmail(ctx, creator.Email)
	if err != nil || got.ID != creator.ID {
		t.Fatalf("find by email: %+v %v", got, err)
	}
	if _, err := store.Users().FindByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreVideosListNewestFirst(t *testing.T) {
	store, creator, _ := seedMemory(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	videos := []models.Video{
		{ID: "v1", OwnerID: creator.ID, Title: "first", StorageRef: "a.enc", CreatedAt: base},
		{ID: "v2", OwnerID: creator.ID, Title: "second", StorageRef: "b.enc", CreatedAt: base.Add(time.Hour)},
	}
	for _, video := range videos {
		if err := store.Videos().Create(ctx, video); err != nil {
			t.Fatalf("create video: %v", err)
		}
	}

	if err := store.Videos().Create(ctx, models.Video{ID: "v3", OwnerID: creator.ID, StorageRef: "a.enc"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for reused ref, got %v", err)
	}
	if err := store.Videos().Create(ctx, models.Video{ID: "v4", OwnerID: "ghost", StorageRef: "c.enc"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown owner, got %v", err)
	}

	list, err := store.Videos().List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != "v2" || list[1].ID != "v1" {
		t.Fatalf("unexpected order: %+v", list)
	}
	if list[0].OwnerName != creator.Name || list[0].OwnerEmail != creator.Email {
		t.Fatalf("expected owner details, got %+v", list[0])
	}
}

func TestMemoryStoreVideosListIsCapped(t *testing.T) {
	store, creator, _ := seedMemory(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	total := VideoListLimit + 5
	for i := 0; i < total; i++ {
		video := models.Video{
			ID:         fmt.Sprintf("v%03d", i),
			OwnerID:    creator.ID,
			StorageRef: fmt.Sprintf("%03d.enc", i),
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.Videos().Create(ctx, video); err != nil {
			t.Fatalf("create video %d: %v", i, err)
		}
	}

	list, err := store.Videos().List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != VideoListLimit {
		t.Fatalf("expected %d videos got %d", VideoListLimit, len(list))
	}
	if list[0].ID != fmt.Sprintf("v%03d", total-1) || list[len(list)-1].ID != "v005" {
		t.Fatalf("expected the newest videos, got first=%s last=%s", list[0].ID, list[len(list)-1].ID)
	}
}

func TestMemoryStorePurchases(t *testing.T) {
	store, creator, fan := seedMemory(t)
	ctx := context.Background()

	if err := store.Videos().Create(ctx, models.Video{ID: "v1", OwnerID: creator.ID, StorageRef: "a.enc"}); err != nil {
		t.Fatalf("create video: %v", err)
	}

	has, err := store.Purchases().HasPurchase(ctx, fan.ID, "v1")
	if err != nil || has {
		t.Fatalf("expected no purchase, got %v %v", has, err)
	}

	for i := 0; i < 2; i++ {
		if err := store.Purchases().Create(ctx, models.Purchase{ID: "p", UserID: fan.ID, VideoID: "v1", Provider: "manual"}); err != nil {
			t.Fatalf("create purchase: %v", err)
		}
	}

	has, err = store.Purchases().HasPurchase(ctx, fan.ID, "v1")
	if err != nil || !has {
		t.Fatalf("expected purchase, got %v %v", has, err)
	}

	if err := store.Purchases().Create(ctx, models.Purchase{UserID: fan.ID, VideoID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown video, got %v", err)
	}
}
