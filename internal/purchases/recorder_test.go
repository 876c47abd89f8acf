package purchases

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/raibee/backend/internal/models"
	"github.com/raibee/backend/internal/repositories"
)

type stubStore struct {
	mu        sync.Mutex
	purchases []models.Purchase
	err       error
}

func (s *stubStore) Create(_ context.Context, purchase models.Purchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.purchases = append(s.purchases, purchase)
	return nil
}

func (s *stubStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.purchases)
}

type countingObserver struct {
	mu      sync.Mutex
	sources []string
}

func (o *countingObserver) ObservePurchase(source string) {
	o.mu.Lock()
	o.sources = append(o.sources, source)
	o.mu.Unlock()
}

func TestRecorderRecord(t *testing.T) {
	store := &stubStore{}
	observer := &countingObserver{}
	recorder := NewRecorder(store, observer)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	recorder.NowFunc = func() time.Time { return fixed }

	purchase, err := recorder.Record(context.Background(), Request{UserID: " fan ", VideoID: "video", ProviderPaymentID: "pay_1"}, SourceHTTP)
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	if purchase.ID == "" || purchase.UserID != "fan" || purchase.VideoID != "video" {
		t.Fatalf("unexpected purchase %+v", purchase)
	}
	if purchase.Provider != DefaultProvider {
		t.Fatalf("expected default provider, got %q", purchase.Provider)
	}
	if !purchase.CreatedAt.Equal(fixed) {
		t.Fatalf("unexpected created at %v", purchase.CreatedAt)
	}
	if store.count() != 1 {
		t.Fatalf("expected 1 stored purchase, got %d", store.count())
	}
	if len(observer.sources) != 1 || observer.sources[0] != SourceHTTP {
		t.Fatalf("unexpected observed sources %v", observer.sources)
	}
}

func TestRecorderAllowsRepeatPurchases(t *testing.T) {
	store := &stubStore{}
	recorder := NewRecorder(store, nil)

	for i := 0; i < 3; i++ {
		if _, err := recorder.Record(context.Background(), Request{UserID: "fan", VideoID: "video", Provider: "stripe"}, SourceHTTP); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	if store.count() != 3 {
		t.Fatalf("expected 3 purchases, got %d", store.count())
	}
}

func TestRecorderRejectsInvalid(t *testing.T) {
	recorder := NewRecorder(&stubStore{}, nil)

	for name, req := range map[string]Request{
		"missing user":  {VideoID: "video"},
		"missing video": {UserID: "fan"},
		"blank":         {UserID: "  ", VideoID: "  "},
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := recorder.Record(context.Background(), req, SourceHTTP); !errors.Is(err, ErrInvalidPurchase) {
				t.Fatalf("expected ErrInvalidPurchase, got %v", err)
			}
		})
	}
}

func TestRecorderPropagatesStoreErrors(t *testing.T) {
	observer := &countingObserver{}
	recorder := NewRecorder(&stubStore{err: repositories.ErrNotFound}, observer)

	if _, err := recorder.Record(context.Background(), Request{UserID: "fan", VideoID: "gone"}, SourceHTTP); !errors.Is(err, repositories.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(observer.sources) != 0 {
		t.Fatal("failed purchases must not be counted")
	}
}
