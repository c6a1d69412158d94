// Package security provides the two reversible transforms shared by every
// communication path: XOR-with-salt obfuscation and AES-256-CFB encryption.
//
// # Layering
//
// Obfuscation is lightweight and non-cryptographic; it obscures payload
// shape before encryption. Encryption produces a self-contained base64
// token: a fresh 16-byte IV followed by the ciphertext. The two layers are
// independent and composed by the communications gateway, never here.
//
// # Key ownership
//
// A Context owns the symmetric key and salt for the process lifetime. Both
// are read-only after construction, so concurrent Obfuscate/Encrypt/Decrypt
// calls need no locking; only the one-time process-wide initialization is
// guarded.
package security

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/gridsense/fieldlink/internal/secrets"
)

// ErrBadToken marks a malformed or truncated token on decrypt, including
// transport-decode failures.
var ErrBadToken = errors.New("bad token")

// Context holds the process key material and exposes the obfuscation and
// encryption layers.
type Context struct {
	key  []byte
	salt []byte
}

// NewContext builds a security context from key material. The material is
// copied, so later mutation of the provider's buffers cannot affect the
// context.
func NewContext(mat *secrets.Material) (*Context, error) {
	if mat == nil {
		return nil, fmt.Errorf("key material is nil")
	}
	if err := mat.Validate(); err != nil {
		return nil, fmt.Errorf("key material: %w", err)
	}

	c := &Context{
		key:  make([]byte, len(mat.Key)),
		salt: make([]byte, len(mat.Salt)),
	}
	copy(c.key, mat.Key)
	copy(c.salt, mat.Salt)
	return c, nil
}

// Obfuscate XORs each byte of data against the salt, cycling the salt when
// it is shorter than data. XOR is self-inverse, so the same call reverses
// the transform.
func (c *Context) Obfuscate(data []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ c.salt[i%len(c.salt)]
	}
	return out
}

// Deobfuscate reverses Obfuscate. It is the identical operation; round-trip
// correctness holds by construction.
func (c *Context) Deobfuscate(data []byte) []byte {
	return c.Obfuscate(data)
}

// Encrypt encrypts data under the process key with AES-256-CFB and returns
// base64(iv || ciphertext). A fresh random IV is drawn inside this function
// on every call; callers cannot reuse one.
func (c *Context) Encrypt(data []byte) (string, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}

	buf := make([]byte, aes.BlockSize+len(data))
	iv := buf[:aes.BlockSize]
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generating iv: %w", err)
	}

	stream := cipher.NewCFBEncrypter(block, iv)
	stream.XORKeyStream(buf[aes.BlockSize:], data)

	return base64.StdEncoding.EncodeToString(buf), nil
}

// Decrypt transport-decodes a token, splits the leading IV from the
// ciphertext, and decrypts. Truncated or undecodable tokens fail with
// ErrBadToken.
func (c *Context) Decrypt(token string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadToken, err)
	}
	if len(raw) < aes.BlockSize {
		return nil, fmt.Errorf("%w: token shorter than iv (%d bytes)", ErrBadToken, len(raw))
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	iv, ciphertext := raw[:aes.BlockSize], raw[aes.BlockSize:]
	out := make([]byte, len(ciphertext))
	stream := cipher.NewCFBDecrypter(block, iv)
	stream.XORKeyStream(out, ciphertext)
	return out, nil
}

var (
	processMu  sync.Mutex
	processCtx *Context
)

// Process returns the process-wide security context, creating it on first
// use from environment-supplied (or generated) key material. Initialization
// is idempotent under concurrent first access: the mutex around the
// check-and-create step guarantees exactly one key/salt pair.
//
// New code should prefer constructing a Context explicitly and passing it
// down; Process exists for components without access to the wiring in main.
func Process() (*Context, error) {
	processMu.Lock()
	defer processMu.Unlock()

	if processCtx != nil {
		return processCtx, nil
	}

	mat, err := secrets.NewEnvProvider().Material(context.Background())
	if err != nil {
		return nil, fmt.Errorf("resolving key material: %w", err)
	}
	c, err := NewContext(mat)
	if err != nil {
		return nil, err
	}
	processCtx = c
	return c, nil
}

// SetProcess installs an explicitly constructed context as the process-wide
// one. It is a no-op if the process context was already initialized, and
// reports whether the install took effect.
func SetProcess(c *Context) bool {
	processMu.Lock()
	defer processMu.Unlock()
	if processCtx != nil {
		return false
	}
	processCtx = c
	return true
}
