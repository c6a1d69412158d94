// Package secrets provides the process-wide key material used by the
// security layers.
//
// This package defines a Provider interface for obtaining the symmetric key
// and obfuscation salt. Material can come from environment variables, a
// local file (development), or 1Password Connect (production). Whatever the
// source, exactly one key/salt pair exists per process lifetime.
package secrets

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the symmetric key length in bytes (AES-256).
const KeySize = 32

// DefaultSaltSize is the salt length used for generated and derived material.
const DefaultSaltSize = 16

// Material is a symmetric key plus obfuscation salt. Both are fixed for the
// process lifetime once handed to a security context.
type Material struct {
	Key       []byte    `json:"-"`
	Salt      []byte    `json:"-"`
	Source    string    `json:"source"` // "env", "local", "1password", "generated"
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the material is usable by the security layers.
func (m *Material) Validate() error {
	if len(m.Key) != KeySize {
		return fmt.Errorf("key must be %d bytes, got %d", KeySize, len(m.Key))
	}
	if len(m.Salt) == 0 {
		return fmt.Errorf("salt must not be empty")
	}
	return nil
}

// Provider yields key material for the security context.
type Provider interface {
	// Material returns the key/salt pair, creating it if the backing store
	// has none yet. Repeated calls return the same material.
	Material(ctx context.Context) (*Material, error)

	// Close releases any resources held by the provider.
	Close() error
}

// Generate creates fresh random material from a cryptographically secure
// source.
func Generate() (*Material, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}
	salt := make([]byte, DefaultSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	return &Material{
		Key:       key,
		Salt:      salt,
		Source:    "generated",
		CreatedAt: time.Now(),
	}, nil
}

// Derive expands a master secret (e.g. an operator passphrase) into key and
// salt using HKDF-SHA256. The same secret always yields the same material,
// so independently configured devices can interoperate.
func Derive(masterSecret []byte) (*Material, error) {
	if len(masterSecret) == 0 {
		return nil, fmt.Errorf("master secret is empty")
	}

	kdf := hkdf.New(sha256.New, masterSecret, []byte("fieldlink-v1"), []byte("key+salt"))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}
	salt := make([]byte, DefaultSaltSize)
	if _, err := io.ReadFull(kdf, salt); err != nil {
		return nil, fmt.Errorf("deriving salt: %w", err)
	}
	return &Material{
		Key:       key,
		Salt:      salt,
		Source:    "derived",
		CreatedAt: time.Now(),
	}, nil
}

// DecodeKey decodes a URL-safe base64 key and checks its length.
func DecodeKey(encoded string) ([]byte, error) {
	key, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding key: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	return key, nil
}

// EncodeKey encodes a key for storage in env vars or vault fields.
func EncodeKey(key []byte) string {
	return base64.URLEncoding.EncodeToString(key)
}
