package secrets

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// materialFileName is the single material file kept in the base directory.
const materialFileName = "material.json"

// LocalProvider stores key material on the local filesystem.
// This is intended for development and single-device deployments.
//
// Material is stored as a single JSON file:
//
//	<base_dir>/material.json  (0600, key and salt base64 encoded)
type LocalProvider struct {
	baseDir string
	logger  *slog.Logger

	mu       sync.Mutex
	material *Material
}

// materialFile is the on-disk JSON structure.
type materialFile struct {
	Key       string    `json:"key"`
	Salt      string    `json:"salt"`
	CreatedAt time.Time `json:"created_at"`
}

// NewLocalProvider creates a filesystem-backed provider.
// If baseDir is empty, it defaults to ~/.fieldlink/keys.
func NewLocalProvider(baseDir string, logger *slog.Logger) (*LocalProvider, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".fieldlink", "keys")
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("creating key directory: %w", err)
	}

	logger.Info("using local key material store", "path", baseDir)

	return &LocalProvider{
		baseDir: baseDir,
		logger:  logger,
	}, nil
}

// Material returns the stored key/salt pair, creating one if the material
// file doesn't exist yet.
func (p *LocalProvider) Material(ctx context.Context) (*Material, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.material != nil {
		return p.material, nil
	}

	mat, err := p.load()
	if err != nil {
		return nil, fmt.Errorf("loading key material: %w", err)
	}

	if mat == nil {
		p.logger.Info("creating new key material", "path", p.baseDir)
		mat, err = Generate()
		if err != nil {
			return nil, fmt.Errorf("generating key material: %w", err)
		}
		mat.Source = "local"
		if err := p.save(mat); err != nil {
			return nil, fmt.Errorf("saving key material: %w", err)
		}
	}

	p.material = mat
	return mat, nil
}

// Close releases any resources.
func (p *LocalProvider) Close() error {
	p.mu.Lock()
	p.material = nil
	p.mu.Unlock()
	return nil
}

func (p *LocalProvider) load() (*Material, error) {
	path := filepath.Join(p.baseDir, materialFileName)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading material file: %w", err)
	}

	var file materialFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing material file: %w", err)
	}

	key, err := DecodeKey(file.Key)
	if err != nil {
		return nil, err
	}
	salt, err := base64.URLEncoding.DecodeString(file.Salt)
	if err != nil {
		return nil, fmt.Errorf("decoding salt: %w", err)
	}

	mat := &Material{Key: key, Salt: salt, Source: "local", CreatedAt: file.CreatedAt}
	if err := mat.Validate(); err != nil {
		return nil, err
	}
	return mat, nil
}

func (p *LocalProvider) save(mat *Material) error {
	path := filepath.Join(p.baseDir, materialFileName)

	file := materialFile{
		Key:       EncodeKey(mat.Key),
		Salt:      base64.URLEncoding.EncodeToString(mat.Salt),
		CreatedAt: mat.CreatedAt,
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling material: %w", err)
	}

	// Restrictive permissions; the file holds the raw key.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing material file: %w", err)
	}
	return nil
}
