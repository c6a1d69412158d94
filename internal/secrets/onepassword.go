package secrets

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/1Password/connect-sdk-go/connect"
	"github.com/1Password/connect-sdk-go/onepassword"
)

// DefaultItemTitle is the 1Password item holding the process key material.
const DefaultItemTitle = "fieldlink-material"

// OnePasswordProvider stores key material in 1Password using the Connect API.
//
// Configuration is via environment variables:
//   - OP_CONNECT_HOST: URL of the 1Password Connect server
//   - OP_CONNECT_TOKEN: Access token for the Connect server
//   - OP_VAULT_ID: UUID of the vault to store material in
type OnePasswordProvider struct {
	client  connect.Client
	vaultID string
	logger  *slog.Logger

	mu       sync.Mutex
	material *Material
}

// OnePasswordConfig holds configuration for 1Password Connect.
type OnePasswordConfig struct {
	Host    string // OP_CONNECT_HOST
	Token   string // OP_CONNECT_TOKEN
	VaultID string // OP_VAULT_ID
}

// NewOnePasswordProvider creates a 1Password-backed provider.
func NewOnePasswordProvider(cfg OnePasswordConfig, logger *slog.Logger) (*OnePasswordProvider, error) {
	if cfg.Host == "" || cfg.Token == "" || cfg.VaultID == "" {
		return nil, fmt.Errorf("1Password configuration incomplete: host, token, and vault_id are required")
	}

	client := connect.NewClientWithUserAgent(cfg.Host, cfg.Token, "fieldlink")

	return &OnePasswordProvider{
		client:  client,
		vaultID: cfg.VaultID,
		logger:  logger,
	}, nil
}

// Material returns the vault's key material, creating it if the item
// doesn't exist yet.
func (p *OnePasswordProvider) Material(ctx context.Context) (*Material, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.material != nil {
		return p.material, nil
	}

	mat, err := p.fromVault()
	if err != nil {
		return nil, fmt.Errorf("checking for existing material: %w", err)
	}

	if mat == nil {
		p.logger.Info("creating new key material in 1Password", "item", DefaultItemTitle)

		mat, err = Generate()
		if err != nil {
			return nil, fmt.Errorf("generating material: %w", err)
		}
		mat.Source = "1password"

		if err := p.storeInVault(mat); err != nil {
			return nil, fmt.Errorf("storing material in 1Password: %w", err)
		}
	}

	p.material = mat
	return mat, nil
}

// Close releases any resources.
func (p *OnePasswordProvider) Close() error {
	p.mu.Lock()
	p.material = nil
	p.mu.Unlock()
	return nil
}

// fromVault retrieves the material item from 1Password, or nil if absent.
func (p *OnePasswordProvider) fromVault() (*Material, error) {
	items, err := p.client.GetItemsByTitle(DefaultItemTitle, p.vaultID)
	if err != nil {
		if isNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing items: %w", err)
	}
	if len(items) == 0 {
		return nil, nil
	}

	item, err := p.client.GetItem(items[0].ID, p.vaultID)
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}

	return itemToMaterial(item)
}

// storeInVault stores new material in 1Password.
func (p *OnePasswordProvider) storeInVault(mat *Material) error {
	item := &onepassword.Item{
		Title:    DefaultItemTitle,
		Category: onepassword.Password,
		Vault:    onepassword.ItemVault{ID: p.vaultID},
		Fields: []*onepassword.ItemField{
			{
				ID:    "key",
				Label: "key",
				Type:  "CONCEALED",
				Value: EncodeKey(mat.Key),
			},
			{
				ID:    "salt",
				Label: "salt",
				Type:  "CONCEALED",
				Value: base64.URLEncoding.EncodeToString(mat.Salt),
			},
			{
				ID:    "created_at",
				Label: "created_at",
				Type:  "STRING",
				Value: mat.CreatedAt.Format(time.RFC3339),
			},
		},
	}

	if _, err := p.client.CreateItem(item, p.vaultID); err != nil {
		return fmt.Errorf("creating item: %w", err)
	}
	return nil
}

// itemToMaterial converts a 1Password item back to key material.
func itemToMaterial(item *onepassword.Item) (*Material, error) {
	mat := &Material{Source: "1password"}

	for _, field := range item.Fields {
		switch field.ID {
		case "key":
			key, err := DecodeKey(field.Value)
			if err != nil {
				return nil, fmt.Errorf("item %q: %w", item.Title, err)
			}
			mat.Key = key
		case "salt":
			salt, err := base64.URLEncoding.DecodeString(field.Value)
			if err != nil {
				return nil, fmt.Errorf("item %q: decoding salt: %w", item.Title, err)
			}
			mat.Salt = salt
		case "created_at":
			if t, err := time.Parse(time.RFC3339, field.Value); err == nil {
				mat.CreatedAt = t
			}
		}
	}

	if err := mat.Validate(); err != nil {
		return nil, fmt.Errorf("item %q: %w", item.Title, err)
	}
	return mat, nil
}

// isNotFoundError checks if an error from the Connect API is a 404.
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "404") || strings.Contains(msg, "not found")
}
