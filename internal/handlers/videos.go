package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/raibee/backend/internal/access"
	"github.com/raibee/backend/internal/auth"
	"github.com/raibee/backend/internal/logging"
	"github.com/raibee/backend/internal/models"
	"github.com/raibee/backend/internal/repositories"
	"github.com/raibee/backend/internal/storage"
)

// DefaultPlatform is appended to watermarks when no platform name is configured.
const DefaultPlatform = "Rai Bee Exclusive"

// DefaultMaxUploadBytes bounds multipart uploads when MaxUploadBytes is unset.
const DefaultMaxUploadBytes int64 = 512 << 20

// multipart parts beyond this size spill to temporary files.
const uploadMemory = 32 << 20

// Upload outcomes reported to the VideoObserver.
const (
	uploadCreated    = "created"
	uploadForbidden  = "forbidden"
	uploadInvalid    = "invalid"
	uploadTooLarge   = "too_large"
	uploadEncryptErr = "encrypt_error"
	uploadStoreErr   = "store_error"
)

// VideoHandler serves the upload, catalogue, watch and stream endpoints.
type VideoHandler struct {
	Videos         VideoStore
	Blobs          BlobWriter
	Cipher         Encrypter
	Access         Authorizer
	Tokens         PlayTokenIssuer
	Streams        Streamer
	Observer       VideoObserver
	Platform       string
	MaxUploadBytes int64
	NowFunc        func() time.Time
}

type videoResponse struct {
	ID         string            `json:"id"`
	OwnerID    string            `json:"ownerId"`
	OwnerName  string            `json:"ownerName,omitempty"`
	OwnerEmail string            `json:"ownerEmail,omitempty"`
	Title      string            `json:"title"`
	Price      string            `json:"price"`
	Visibility models.Visibility `json:"visibility"`
	CreatedAt  time.Time         `json:"createdAt"`
}

func newVideoResponse(v models.Video) videoResponse {
	return videoResponse{
		ID:         v.ID,
		OwnerID:    v.OwnerID,
		OwnerName:  v.OwnerName,
		OwnerEmail: v.OwnerEmail,
		Title:      v.Title,
		Price:      v.Price(),
		Visibility: v.Visibility,
		CreatedAt:  v.CreatedAt,
	}
}

type watchResponse struct {
	PlayURL   string    `json:"playUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
	Watermark string    `json:"watermark"`
}

// Upload handles POST /api/videos/upload. The file is encrypted in memory and
// only the sealed container reaches blob storage.
func (h VideoHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx, span := logging.StartSpan(r.Context(), "videos.upload")
	defer span.End()
	logger := logging.FromContext(ctx)

	if h.Videos == nil || h.Blobs == nil || h.Cipher == nil {
		logger.Error("upload dependencies unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "upload service unavailable")
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if identity.Role != models.RoleCreator {
		h.observeUpload(uploadForbidden)
		respondError(ctx, w, http.StatusForbidden, "creator role required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes())
	if err := r.ParseMultipartForm(uploadMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.observeUpload(uploadTooLarge)
			respondError(ctx, w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		if errors.Is(err, http.ErrNotMultipart) {
			h.observeUpload(uploadInvalid)
			respondError(ctx, w, http.StatusBadRequest, "no file")
			return
		}
		logger.Warn("parse upload form", "error", err)
		h.observeUpload(uploadInvalid)
		respondError(ctx, w, http.StatusBadRequest, "invalid upload")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.observeUpload(uploadInvalid)
		respondError(ctx, w, http.StatusBadRequest, "no file")
		return
	}
	defer file.Close()

	video, err := h.videoFromForm(r.MultipartForm, header, identity)
	if err != nil {
		h.observeUpload(uploadInvalid)
		respondError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	plaintext, err := io.ReadAll(file)
	if err != nil {
		logger.Error("read uploaded file", "error", err)
		h.observeUpload(uploadInvalid)
		respondError(ctx, w, http.StatusBadRequest, "invalid upload")
		return
	}

	container, err := h.Cipher.Encrypt(plaintext)
	clear(plaintext)
	if err != nil {
		logger.Error("encrypt upload", "error", err)
		h.observeUpload(uploadEncryptErr)
		respondError(ctx, w, http.StatusInternalServerError, "internal server error")
		return
	}

	// The temporary plaintext parts are released before the record is persisted.
	file.Close()
	if err := r.MultipartForm.RemoveAll(); err != nil {
		logger.Warn("remove multipart temp files", "error", err)
	}

	video.StorageRef = storage.NewRef()
	if err := h.Blobs.Put(ctx, video.StorageRef, container); err != nil {
		logger.Error("store encrypted container", "error", err, "storageRef", video.StorageRef)
		h.observeUpload(uploadStoreErr)
		respondError(ctx, w, http.StatusInternalServerError, "internal server error")
		return
	}

	if err := h.Videos.Create(ctx, video); err != nil {
		if delErr := h.Blobs.Delete(ctx, video.StorageRef); delErr != nil {
			logger.Error("remove orphaned container", "error", delErr, "storageRef", video.StorageRef)
		}
		status, msg := http.StatusInternalServerError, "internal server error"
		if errors.Is(err, repositories.ErrNotFound) {
			status, msg = http.StatusUnauthorized, "unauthorized"
		}
		logger.Error("create video record", "error", err, "videoId", video.ID)
		h.observeUpload(uploadStoreErr)
		respondError(ctx, w, status, msg)
		return
	}

	logger.Info("video uploaded",
		slog.String("videoId", video.ID),
		slog.String("visibility", string(video.Visibility)),
		slog.Int("bytes", len(container)),
	)
	span.Annotate("videoId", video.ID)
	h.observeUpload(uploadCreated)
	respondJSON(ctx, w, http.StatusCreated, map[string]videoResponse{"video": newVideoResponse(video)})
}

func (h VideoHandler) videoFromForm(form *multipart.Form, header *multipart.FileHeader, identity auth.Identity) (models.Video, error) {
	title := strings.TrimSpace(formValue(form, "title"))
	if title == "" {
		title = filepath.Base(header.Filename)
	}
	if title == "" || title == "." {
		title = "untitled"
	}
	if len(title) > 300 {
		return models.Video{}, errors.New("title must be at most 300 characters")
	}

	visibility := models.VisibilitySubscribers
	if raw := strings.TrimSpace(formValue(form, "visibility")); raw != "" {
		visibility = models.Visibility(raw)
		if !visibility.Valid() {
			return models.Video{}, fmt.Errorf("visibility must be one of: %s %s %s",
				models.VisibilityPublic, models.VisibilitySubscribers, models.VisibilityForSale)
		}
	}

	cents, err := models.ParseCents(formValue(form, "price"))
	if err != nil {
		return models.Video{}, errors.New("invalid price")
	}

	return models.Video{
		ID:         uuid.NewString(),
		OwnerID:    identity.UserID,
		OwnerName:  identity.Name,
		OwnerEmail: identity.Email,
		Title:      title,
		PriceCents: cents,
		Visibility: visibility,
		CreatedAt:  h.now(),
	}, nil
}

func formValue(form *multipart.Form, key string) string {
	if form == nil || len(form.Value[key]) == 0 {
		return ""
	}
	return form.Value[key][0]
}

// List handles GET /api/videos.
func (h VideoHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.Videos == nil {
		respondError(ctx, w, http.StatusInternalServerError, "video service unavailable")
		return
	}

	videos, err := h.Videos.List(ctx)
	if err != nil {
		logging.FromContext(ctx).Error("list videos", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]videoResponse, 0, len(videos))
	for _, v := range videos {
		out = append(out, newVideoResponse(v))
	}
	respondJSON(ctx, w, http.StatusOK, map[string][]videoResponse{"videos": out})
}

// Watch handles GET /api/videos/watch/{id}. An allowed requester receives a
// short-lived play URL and a watermark naming them.
func (h VideoHandler) Watch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Videos == nil || h.Access == nil || h.Tokens == nil {
		logger.Error("watch dependencies unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "video service unavailable")
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "unauthorized")
		return
	}

	videoID := pathID(r)
	video, err := h.Videos.FindByID(ctx, videoID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "not found")
			return
		}
		logger.Error("load video", "error", err, "videoId", videoID)
		respondError(ctx, w, http.StatusInternalServerError, "internal server error")
		return
	}

	decision, err := h.Access.Authorize(ctx, video, access.Requester{
		ID:   identity.UserID,
		Name: identity.DisplayName(),
		Role: identity.Role,
	})
	if err != nil {
		logger.Error("authorize watch", "error", err, "videoId", video.ID)
		respondError(ctx, w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !decision.Allowed {
		respondError(ctx, w, http.StatusForbidden, decision.Message())
		return
	}

	token, err := h.Tokens.Issue(video.ID, identity.UserID)
	if err != nil {
		logger.Error("issue play token", "error", err, "videoId", video.ID)
		respondError(ctx, w, http.StatusInternalServerError, "internal server error")
		return
	}
	if h.Observer != nil {
		h.Observer.PlayTokenIssued()
	}

	logger.Info("play token issued",
		slog.String("videoId", video.ID),
		slog.String("reason", decision.Reason),
		slog.String("jti", token.ID),
	)
	respondJSON(ctx, w, http.StatusOK, watchResponse{
		PlayURL:   PlayURL(video.ID, token.Value),
		ExpiresAt: token.ExpiresAt,
		Watermark: h.watermark(identity),
	})
}

// Stream handles GET /api/videos/stream/{id}?t=<play token>.
func (h VideoHandler) Stream(w http.ResponseWriter, r *http.Request) {
	if h.Streams == nil {
		respondError(r.Context(), w, http.StatusInternalServerError, "stream service unavailable")
		return
	}
	h.Streams.Serve(w, r, pathID(r), r.URL.Query().Get("t"))
}

func pathID(r *http.Request) string {
	return strings.TrimSpace(r.PathValue("id"))
}

// PlayURL builds the stream location carrying a play token.
func PlayURL(videoID, token string) string {
	return "/api/videos/stream/" + url.PathEscape(videoID) + "?t=" + url.QueryEscape(token)
}

func (h VideoHandler) watermark(identity auth.Identity) string {
	platform := strings.TrimSpace(h.Platform)
	if platform == "" {
		platform = DefaultPlatform
	}
	return identity.DisplayName() + " • " + platform
}

func (h VideoHandler) maxUploadBytes() int64 {
	if h.MaxUploadBytes > 0 {
		return h.MaxUploadBytes
	}
	return DefaultMaxUploadBytes
}

func (h VideoHandler) observeUpload(outcome string) {
	if h.Observer != nil {
		h.Observer.ObserveUpload(outcome)
	}
}

func (h VideoHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}
