package secrets

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// Environment variables read by EnvProvider.
const (
	// EnvMasterKey holds a URL-safe base64 encoded 32-byte key.
	EnvMasterKey = "FIELDLINK_MASTER_KEY"
	// EnvSalt holds the obfuscation salt as a plain string.
	EnvSalt = "FIELDLINK_SALT"
	// EnvMasterSecret holds a passphrase to derive both key and salt from.
	// Ignored when EnvMasterKey is set.
	EnvMasterSecret = "FIELDLINK_MASTER_SECRET"
)

// EnvProvider sources key material from environment variables. Missing
// pieces are generated, so a bare process still gets a working (but
// non-interoperable) key.
type EnvProvider struct {
	mu       sync.Mutex
	material *Material
}

// NewEnvProvider creates an environment-backed provider.
func NewEnvProvider() *EnvProvider {
	return &EnvProvider{}
}

// Material resolves material from the environment on first call and caches
// it for the process lifetime.
func (p *EnvProvider) Material(ctx context.Context) (*Material, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.material != nil {
		return p.material, nil
	}

	mat, err := materialFromEnv()
	if err != nil {
		return nil, err
	}
	p.material = mat
	return mat, nil
}

// Close releases any resources.
func (p *EnvProvider) Close() error {
	return nil
}

func materialFromEnv() (*Material, error) {
	if encoded := os.Getenv(EnvMasterKey); encoded != "" {
		key, err := DecodeKey(encoded)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvMasterKey, err)
		}
		salt := []byte(os.Getenv(EnvSalt))
		if len(salt) == 0 {
			generated, err := Generate()
			if err != nil {
				return nil, err
			}
			salt = generated.Salt
		}
		mat := &Material{Key: key, Salt: salt, Source: "env"}
		if err := mat.Validate(); err != nil {
			return nil, err
		}
		return mat, nil
	}

	if secret := os.Getenv(EnvMasterSecret); secret != "" {
		mat, err := Derive([]byte(secret))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvMasterSecret, err)
		}
		mat.Source = "env"
		return mat, nil
	}

	return Generate()
}
