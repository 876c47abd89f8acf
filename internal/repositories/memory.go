package repositories

import (
	"context"
	"sort"
	"sync"

	"github.com/raibee/backend/internal/models"
)

// MemoryStore keeps users, videos and purchases in process memory. It backs
// tests and the development mode selected with RAIBEE_STORE=memory.
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[string]models.User
	emails    map[string]string
	videos    map[string]models.Video
	refs      map[string]struct{}
	purchases []models.Purchase
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:  make(map[string]models.User),
		emails: make(map[string]string),
		videos: make(map[string]models.Video),
		refs:   make(map[string]struct{}),
	}
}

// Users exposes the store through the user repository contract.
func (s *MemoryStore) Users() UserRepository { return memoryUsers{s} }

// Videos exposes the store through the video repository contract.
func (s *MemoryStore) Videos() VideoRepository { return memoryVideos{s} }

// Purchases exposes the store through the purchase repository contract.
func (s *MemoryStore) Purchases() PurchaseRepository { return memoryPurchases{s} }

type memoryUsers struct{ s *MemoryStore }

func (m memoryUsers) Create(_ context.Context, user models.User) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if _, ok := m.s.users[user.ID]; ok {
		return ErrConflict
	}
	if _, ok := m.s.emails[user.Email]; ok {
		return ErrConflict
	}
	m.s.users[user.ID] = user
	m.s.emails[user.Email] = user.ID
	return nil
}

func (m memoryUsers) FindByEmail(_ context.Context, email string) (models.User, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	id, ok := m.s.emails[email]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return m.s.users[id], nil
}

func (m memoryUsers) FindByID(_ context.Context, id string) (models.User, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	user, ok := m.s.users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return user, nil
}

type memoryVideos struct{ s *MemoryStore }

func (m memoryVideos) Create(_ context.Context, video models.Video) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if _, ok := m.s.users[video.OwnerID]; !ok {
		return ErrNotFound
	}
	if _, ok := m.s.videos[video.ID]; ok {
		return ErrConflict
	}
	if _, ok := m.s.refs[video.StorageRef]; ok {
		return ErrConflict
	}
	m.s.videos[video.ID] = video
	m.s.refs[video.StorageRef] = struct{}{}
	return nil
}

func (m memoryVideos) FindByID(_ context.Context, id string) (models.Video, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	video, ok := m.s.videos[id]
	if !ok {
		return models.Video{}, ErrNotFound
	}
	return m.s.withOwner(video), nil
}

func (m memoryVideos) List(_ context.Context) ([]models.Video, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	videos := make([]models.Video, 0, len(m.s.videos))
	for _, video := range m.s.videos {
		videos = append(videos, m.s.withOwner(video))
	}
	sort.Slice(videos, func(i, j int) bool {
		if videos[i].CreatedAt.Equal(videos[j].CreatedAt) {
			return videos[i].ID < videos[j].ID
		}
		return videos[i].CreatedAt.After(videos[j].CreatedAt)
	})
	if len(videos) > VideoListLimit {
		videos = videos[:VideoListLimit]
	}
	return videos, nil
}

func (s *MemoryStore) withOwner(video models.Video) models.Video {
	owner := s.users[video.OwnerID]
	video.OwnerName = owner.Name
	video.OwnerEmail = owner.Email
	return video
}

type memoryPurchases struct{ s *MemoryStore }

func (m memoryPurchases) Create(_ context.Context, purchase models.Purchase) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if _, ok := m.s.users[purchase.UserID]; !ok {
		return ErrNotFound
	}
	if _, ok := m.s.videos[purchase.VideoID]; !ok {
		return ErrNotFound
	}
	m.s.purchases = append(m.s.purchases, purchase)
	return nil
}

func (m memoryPurchases) HasPurchase(_ context.Context, userID, videoID string) (bool, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	for _, purchase := range m.s.purchases {
		if purchase.UserID == userID && purchase.VideoID == videoID {
			return true, nil
		}
	}
	return false, nil
}
