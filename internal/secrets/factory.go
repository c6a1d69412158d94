package secrets

import (
	"fmt"
	"log/slog"
	"os"
)

// Config holds configuration for the key-material backend.
type Config struct {
	// Backend specifies which backend to use: "1password", "local", "env",
	// or "auto". "auto" (default) uses 1Password if configured, then the
	// environment if a key or master secret is set, otherwise local storage.
	Backend string

	// 1Password Connect configuration
	// Set via environment: OP_CONNECT_HOST, OP_CONNECT_TOKEN, OP_VAULT_ID
	OnePassword OnePasswordConfig

	// Local storage directory (default: ~/.fieldlink/keys)
	LocalKeyDir string
}

// ConfigFromEnv creates a Config from environment variables.
func ConfigFromEnv() Config {
	return Config{
		Backend: getEnv("FIELDLINK_SECRETS_BACKEND", "auto"),
		OnePassword: OnePasswordConfig{
			Host:    os.Getenv("OP_CONNECT_HOST"),
			Token:   os.Getenv("OP_CONNECT_TOKEN"),
			VaultID: os.Getenv("OP_VAULT_ID"),
		},
		LocalKeyDir: os.Getenv("FIELDLINK_KEY_DIR"),
	}
}

// NewProvider creates a Provider based on configuration.
func NewProvider(cfg Config, logger *slog.Logger) (Provider, error) {
	backend := cfg.Backend
	if backend == "" {
		backend = "auto"
	}

	switch backend {
	case "1password":
		return NewOnePasswordProvider(cfg.OnePassword, logger)

	case "env":
		return NewEnvProvider(), nil

	case "local":
		return NewLocalProvider(cfg.LocalKeyDir, logger)

	case "auto":
		if cfg.OnePassword.Token != "" {
			p, err := NewOnePasswordProvider(cfg.OnePassword, logger)
			if err != nil {
				logger.Warn("failed to initialize 1Password, falling back",
					"error", err)
			} else {
				return p, nil
			}
		}
		if os.Getenv(EnvMasterKey) != "" || os.Getenv(EnvMasterSecret) != "" {
			return NewEnvProvider(), nil
		}
		logger.Info("no external key material configured, using local storage")
		return NewLocalProvider(cfg.LocalKeyDir, logger)

	default:
		return nil, fmt.Errorf("unknown secrets backend: %s", backend)
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
