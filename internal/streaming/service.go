// Package streaming serves decrypted media to holders of a valid play token.
//
// A request moves through RECEIVED, TOKEN_VERIFIED, VIDEO_LOOKED_UP,
// FILE_READ, DECRYPTED and STREAMED, or stops in FAILED at any stage. The
// token is validated once at the start; a stream that has begun is allowed to
// finish after the token expires.
package streaming

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/raibee/backend/internal/logging"
	"github.com/raibee/backend/internal/mediacipher"
	"github.com/raibee/backend/internal/models"
	"github.com/raibee/backend/internal/playtoken"
	"github.com/raibee/backend/internal/repositories"
	"github.com/raibee/backend/internal/storage"
)

// Stage names a step of the stream pipeline.
type Stage string

const (
	StageReceived      Stage = "RECEIVED"
	StageTokenVerified Stage = "TOKEN_VERIFIED"
	StageVideoLookedUp Stage = "VIDEO_LOOKED_UP"
	StageFileRead      Stage = "FILE_READ"
	StageDecrypted     Stage = "DECRYPTED"
	StageStreamed      Stage = "STREAMED"
	StageFailed        Stage = "FAILED"
)

// Client-facing failure reasons.
const (
	ReasonUnauthorized     = "unauthorized"
	ReasonNotFound         = "not found"
	ReasonFileMissing      = "file missing"
	ReasonDecryptionFailed = "decryption failed"
	ReasonInternal         = "internal server error"
)

// CacheControl forbids every cache between the service and the player.
const CacheControl = "no-store, no-cache, must-revalidate, private, max-age=0"

// TokenVerifier validates play tokens.
type TokenVerifier interface {
	Verify(token string) (playtoken.Claims, error)
}

// VideoFinder loads video records.
type VideoFinder interface {
	FindByID(ctx context.Context, id string) (models.Video, error)
}

// BlobReader loads encrypted containers.
type BlobReader interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// Decrypter opens encrypted containers.
type Decrypter interface {
	Decrypt(container []byte) ([]byte, error)
}

// Observer receives stream outcomes. *metrics.Metrics satisfies it.
type Observer interface {
	ObserveStream(outcome string, bytes int)
	ObserveDecrypt(d time.Duration)
}

// Failure describes why a stream request stopped. Stage is the last stage
// reached before the failure.
type Failure struct {
	Stage   Stage
	Status  int
	Reason  string
	Outcome string
	Err     error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("stream failed after %s: %s", f.Stage, f.Reason)
	}
	return fmt.Sprintf("stream failed after %s: %s: %v", f.Stage, f.Reason, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Media is decrypted content ready to be written to a client.
type Media struct {
	VideoID string
	UserID  string
	TokenID string
	Data    []byte
}

// Service runs the stream pipeline.
type Service struct {
	tokens   TokenVerifier
	videos   VideoFinder
	blobs    BlobReader
	cipher   Decrypter
	observer Observer
}

// NewService constructs a Service. observer may be nil.
func NewService(tokens TokenVerifier, videos VideoFinder, blobs BlobReader, cipher Decrypter, observer Observer) *Service {
	return &Service{tokens: tokens, videos: videos, blobs: blobs, cipher: cipher, observer: observer}
}

// Open verifies the token, loads the video and decrypts its container. Any
// error it returns is a *Failure. The cipher is only invoked once every
// earlier stage has succeeded.
func (s *Service) Open(ctx context.Context, videoID, token string) (Media, error) {
	logger := logging.FromContext(ctx)
	stage := StageReceived

	if token == "" {
		return Media{}, &Failure{Stage: stage, Status: http.StatusUnauthorized, Reason: ReasonUnauthorized, Outcome: "unauthorized", Err: errors.New("missing token")}
	}

	claims, err := s.tokens.Verify(token)
	if err != nil {
		outcome := "unauthorized"
		if errors.Is(err, playtoken.ErrExpired) {
			outcome = "expired"
		}
		return Media{}, &Failure{Stage: stage, Status: http.StatusUnauthorized, Reason: ReasonUnauthorized, Outcome: outcome, Err: err}
	}
	if claims.VideoID != videoID {
		return Media{}, &Failure{Stage: stage, Status: http.StatusUnauthorized, Reason: ReasonUnauthorized, Outcome: "unauthorized",
			Err: fmt.Errorf("token issued for video %s", claims.VideoID)}
	}
	stage = StageTokenVerified
	logger.Debug("stream stage", "stage", stage, "jti", claims.ID)

	video, err := s.videos.FindByID(ctx, videoID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return Media{}, &Failure{Stage: stage, Status: http.StatusNotFound, Reason: ReasonNotFound, Outcome: "not_found", Err: err}
		}
		return Media{}, &Failure{Stage: stage, Status: http.StatusInternalServerError, Reason: ReasonInternal, Outcome: "lookup_error", Err: err}
	}
	stage = StageVideoLookedUp

	container, err := s.blobs.Get(ctx, video.StorageRef)
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			return Media{}, &Failure{Stage: stage, Status: http.StatusNotFound, Reason: ReasonFileMissing, Outcome: "file_missing", Err: err}
		}
		if ctx.Err() != nil {
			return Media{}, &Failure{Stage: stage, Status: 499, Reason: ReasonInternal, Outcome: "canceled", Err: ctx.Err()}
		}
		return Media{}, &Failure{Stage: stage, Status: http.StatusInternalServerError, Reason: ReasonInternal, Outcome: "read_error", Err: err}
	}
	stage = StageFileRead

	if err := ctx.Err(); err != nil {
		return Media{}, &Failure{Stage: stage, Status: 499, Reason: ReasonInternal, Outcome: "canceled", Err: err}
	}

	start := time.Now()
	plaintext, err := s.cipher.Decrypt(container)
	if s.observer != nil {
		s.observer.ObserveDecrypt(time.Since(start))
	}
	if err != nil {
		reason := ReasonInternal
		if errors.Is(err, mediacipher.ErrIntegrity) {
			reason = ReasonDecryptionFailed
		}
		return Media{}, &Failure{Stage: stage, Status: http.StatusInternalServerError, Reason: reason, Outcome: "decrypt_failed", Err: err}
	}

	return Media{VideoID: video.ID, UserID: claims.UserID, TokenID: claims.ID, Data: plaintext}, nil
}

// Serve runs the pipeline for one request and writes either the media or a
// JSON error body.
func (s *Service) Serve(w http.ResponseWriter, r *http.Request, videoID, token string) {
	ctx, span := logging.StartSpan(r.Context(), "stream")
	defer span.End()
	logger := logging.FromContext(ctx).With("video_id", videoID)

	media, err := s.Open(ctx, videoID, token)
	if err != nil {
		var failure *Failure
		if !errors.As(err, &failure) {
			failure = &Failure{Stage: StageReceived, Status: http.StatusInternalServerError, Reason: ReasonInternal, Outcome: "error", Err: err}
		}
		if failure.Status >= http.StatusInternalServerError {
			span.Fail(failure)
		}
		span.Annotate("outcome", failure.Outcome)
		s.fail(ctx, w, logger, failure)
		return
	}
	logger = logger.With("user_id", media.UserID, "jti", media.TokenID)
	logger.Debug("stream stage", "stage", StageDecrypted, "bytes", len(media.Data))

	if err := ctx.Err(); err != nil {
		logger.Info("client went away before stream started", "stage", StageDecrypted)
		s.observe("canceled", 0)
		return
	}

	WriteHeaders(w.Header(), len(media.Data))
	w.WriteHeader(http.StatusOK)
	n, err := w.Write(media.Data)
	if err != nil {
		logger.Warn("stream interrupted", "stage", StageDecrypted, "written", n, "error", err)
		s.observe("write_error", n)
		return
	}

	span.Annotate("outcome", "streamed", "bytes", n)
	logger.Info("stream completed", "stage", StageStreamed, "bytes", n)
	s.observe("streamed", n)
}

func (s *Service) fail(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, failure *Failure) {
	s.observe(failure.Outcome, 0)

	attrs := []any{"stage", StageFailed, "after", failure.Stage, "outcome", failure.Outcome, "error", failure.Err}
	switch {
	case failure.Outcome == "canceled":
		logger.Info("stream aborted by client", attrs...)
		return
	case failure.Status >= http.StatusInternalServerError:
		logger.Error("stream failed", attrs...)
	case failure.Outcome == "expired":
		logger.Info("stream rejected: play token expired", attrs...)
	default:
		logger.Warn("stream rejected", attrs...)
	}

	if ctx.Err() != nil {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", CacheControl)
	w.WriteHeader(failure.Status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": failure.Reason})
}

func (s *Service) observe(outcome string, bytes int) {
	if s.observer != nil {
		s.observer.ObserveStream(outcome, bytes)
	}
}

// WriteHeaders sets the response headers for a media body of size bytes.
func WriteHeaders(h http.Header, size int) {
	h.Set("Content-Type", "video/mp4")
	h.Set("Content-Length", strconv.Itoa(size))
	h.Set("Cache-Control", CacheControl)
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	h.Set("X-Content-Type-Options", "nosniff")
}
