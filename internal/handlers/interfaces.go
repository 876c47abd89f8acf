package handlers

import (
	"context"
	"net/http"

	"github.com/raibee/backend/internal/access"
	"github.com/raibee/backend/internal/models"
	"github.com/raibee/backend/internal/playtoken"
	"github.com/raibee/backend/internal/purchases"
)

// UserStore captures the persistence operations required by the auth handlers.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
}

// SessionManager issues and refreshes authentication tokens for users.
type SessionManager interface {
	Issue(ctx context.Context, user models.User) (models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
}

// VideoStore captures persistence for uploaded videos.
type VideoStore interface {
	Create(ctx context.Context, video models.Video) error
	FindByID(ctx context.Context, id string) (models.Video, error)
	List(ctx context.Context) ([]models.Video, error)
}

// BlobWriter persists encrypted containers.
type BlobWriter interface {
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// Encrypter seals media before it is written to storage.
type Encrypter interface {
	Encrypt(plaintext []byte) ([]byte, error)
}

// Authorizer decides whether a requester may watch a video.
type Authorizer interface {
	Authorize(ctx context.Context, video models.Video, requester access.Requester) (access.Decision, error)
}

// PlayTokenIssuer mints short-lived playback capabilities.
type PlayTokenIssuer interface {
	Issue(videoID, userID string) (playtoken.Token, error)
}

// Streamer serves decrypted media for a verified play token.
type Streamer interface {
	Serve(w http.ResponseWriter, r *http.Request, videoID, token string)
}

// PurchaseRecorder validates and stores purchases.
type PurchaseRecorder interface {
	Record(ctx context.Context, req purchases.Request, source string) (models.Purchase, error)
}

// VideoObserver counts upload outcomes and issued play tokens.
type VideoObserver interface {
	ObserveUpload(outcome string)
	PlayTokenIssued()
}
