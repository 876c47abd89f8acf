package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/raibee/backend/internal/auth"
	"github.com/raibee/backend/internal/logging"
	"github.com/raibee/backend/internal/purchases"
	"github.com/raibee/backend/internal/repositories"
)

// PurchaseHandler records manual purchases for the authenticated user.
type PurchaseHandler struct {
	Purchases PurchaseRecorder
}

type recordPurchaseRequest struct {
	VideoID           string `json:"videoId" validate:"required"`
	Provider          string `json:"provider"`
	ProviderPaymentID string `json:"providerPaymentId"`
}

type purchaseResponse struct {
	ID                string    `json:"id"`
	UserID            string    `json:"userId"`
	VideoID           string    `json:"videoId"`
	Provider          string    `json:"provider"`
	ProviderPaymentID string    `json:"providerPaymentId,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

// Record handles POST /api/purchases/record.
func (h PurchaseHandler) Record(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Purchases == nil {
		logger.Error("purchase recorder unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "purchase service unavailable")
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req recordPurchaseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	purchase, err := h.Purchases.Record(ctx, purchases.Request{
		UserID:            identity.UserID,
		VideoID:           req.VideoID,
		Provider:          req.Provider,
		ProviderPaymentID: req.ProviderPaymentID,
	}, purchases.SourceHTTP)
	if err != nil {
		switch {
		case errors.Is(err, purchases.ErrInvalidPurchase):
			respondError(ctx, w, http.StatusBadRequest, "invalid purchase")
		case errors.Is(err, repositories.ErrNotFound):
			respondError(ctx, w, http.StatusNotFound, "not found")
		default:
			logger.Error("record purchase", "error", err, "videoId", req.VideoID)
			respondError(ctx, w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	logger.Info("purchase recorded", "purchaseId", purchase.ID, "videoId", purchase.VideoID, "provider", purchase.Provider)
	respondJSON(ctx, w, http.StatusCreated, map[string]purchaseResponse{"purchase": {
		ID:                purchase.ID,
		UserID:            purchase.UserID,
		VideoID:           purchase.VideoID,
		Provider:          purchase.Provider,
		ProviderPaymentID: purchase.ProviderPaymentID,
		CreatedAt:         purchase.CreatedAt,
	}})
}
