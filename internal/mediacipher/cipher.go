// Package mediacipher seals uploaded media into the at-rest container format
// and opens it again for streaming.
//
// Container layout:
//
//	nonce (12 bytes) | tag (16 bytes) | ciphertext
//
// The cipher is AES-256-GCM under a single process-wide key.
package mediacipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

const (
	// KeySize is the required key length in bytes.
	KeySize = 32
	// NonceSize is the length of the random nonce that prefixes a container.
	NonceSize = 12
	// TagSize is the length of the GCM authentication tag.
	TagSize = 16
	// HeaderSize is the number of bytes before the ciphertext.
	HeaderSize = NonceSize + TagSize
)

var (
	// ErrInvalidKey indicates the configured key is not 32 bytes long.
	ErrInvalidKey = errors.New("media cipher: key must be 32 bytes")
	// ErrIntegrity indicates the container failed authentication or is truncated.
	ErrIntegrity = errors.New("media cipher: container failed integrity check")
)

// Cipher encrypts and decrypts media containers. It is safe for concurrent use.
type Cipher struct {
	aead cipher.AEAD
	rand io.Reader
}

// New constructs a Cipher for the provided 256-bit key.
func New(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}

	aead, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return nil, fmt.Errorf("create GCM cipher: %w", err)
	}

	return &Cipher{aead: aead, rand: rand.Reader}, nil
}

// Encrypt seals plaintext under a fresh random nonce and returns the container.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(c.rand, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	// Seal appends the tag after the ciphertext; the container stores it first.
	sealed := c.aead.Seal(nil, nonce, plaintext, nil)
	ciphertext, tag := sealed[:len(sealed)-TagSize], sealed[len(sealed)-TagSize:]

	out := make([]byte, 0, HeaderSize+len(ciphertext))
	out = append(out, nonce...)
	out = append(out, tag...)
	out = append(out, ciphertext...)
	return out, nil
}

// Decrypt opens a container produced by Encrypt. On any failure it returns
// ErrIntegrity and no plaintext.
func (c *Cipher) Decrypt(container []byte) ([]byte, error) {
	if len(container) < HeaderSize {
		return nil, fmt.Errorf("%w: container is %d bytes", ErrIntegrity, len(container))
	}

	nonce := container[:NonceSize]
	tag := container[NonceSize:HeaderSize]
	ciphertext := container[HeaderSize:]

	sealed := make([]byte, 0, len(ciphertext)+TagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIntegrity, err)
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}
