// Package storage persists encrypted media containers. Containers are written
// once under an opaque key and never mutated.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrBlobNotFound indicates no container exists for the key.
	ErrBlobNotFound = errors.New("blob not found")
	// ErrBlobExists indicates a container was already written for the key.
	ErrBlobExists = errors.New("blob already exists")
	// ErrInvalidKey indicates a key that could escape the store namespace.
	ErrInvalidKey = errors.New("invalid blob key")
)

// ContainerExt is appended to every generated storage reference.
const ContainerExt = ".enc"

// BlobStore reads and writes encrypted containers.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// NewRef returns a fresh storage reference unrelated to any uploaded filename.
func NewRef() string {
	return uuid.NewString() + ContainerExt
}

func validateKey(key string) error {
	switch {
	case strings.TrimSpace(key) == "":
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	case strings.ContainsAny(key, `/\`):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidKey, key)
	case key == "." || key == ".." || strings.HasPrefix(key, "."):
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
