// Package purchases records purchase grants from the HTTP API and from the
// payment event queue.
package purchases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/raibee/backend/internal/models"
)

// DefaultProvider is used when a request does not name one.
const DefaultProvider = "manual"

// Sources label where a purchase came from.
const (
	SourceHTTP = "http"
	SourceAMQP = "amqp"
)

// ErrInvalidPurchase indicates a request missing required fields.
var ErrInvalidPurchase = errors.New("invalid purchase")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Request describes a purchase to record. ProviderPaymentID is stored as
// given; it is never verified against the processor.
type Request struct {
	UserID            string `json:"userId" validate:"required,max=64"`
	VideoID           string `json:"videoId" validate:"required,max=64"`
	Provider          string `json:"provider" validate:"omitempty,max=64"`
	ProviderPaymentID string `json:"providerPaymentId" validate:"omitempty,max=255"`
}

// Store appends purchases. It returns repositories.ErrNotFound when the user
// or video does not exist.
type Store interface {
	Create(ctx context.Context, purchase models.Purchase) error
}

// Observer counts recorded purchases.
type Observer interface {
	ObservePurchase(source string)
}

// Recorder validates and persists purchases.
type Recorder struct {
	store    Store
	observer Observer
	NowFunc  func() time.Time
}

// NewRecorder constructs a Recorder. observer may be nil.
func NewRecorder(store Store, observer Observer) *Recorder {
	return &Recorder{store: store, observer: observer}
}

// Record persists req. Repeated purchases of the same video are kept as
// separate rows.
func (r *Recorder) Record(ctx context.Context, req Request, source string) (models.Purchase, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	req.VideoID = strings.TrimSpace(req.VideoID)
	req.Provider = strings.TrimSpace(req.Provider)
	if err := validate.Struct(req); err != nil {
		return models.Purchase{}, fmt.Errorf("%w: %v", ErrInvalidPurchase, err)
	}
	if req.Provider == "" {
		req.Provider = DefaultProvider
	}

	purchase := models.Purchase{
		ID:                uuid.NewString(),
		UserID:            req.UserID,
		VideoID:           req.VideoID,
		Provider:          req.Provider,
		ProviderPaymentID: req.ProviderPaymentID,
		CreatedAt:         r.now(),
	}
	if err := r.store.Create(ctx, purchase); err != nil {
		return models.Purchase{}, fmt.Errorf("record purchase: %w", err)
	}

	if r.observer != nil {
		r.observer.ObservePurchase(source)
	}
	return purchase, nil
}

func (r *Recorder) now() time.Time {
	if r.NowFunc != nil {
		return r.NowFunc().UTC()
	}
	return time.Now().UTC()
}
