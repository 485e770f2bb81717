package secrets

import (
	"context"
	"fmt"

	"brokerdesk/internal/platform/config"
)

// SourceSecretsManager is the database URL source reported when the URL came from a secret.
const SourceSecretsManager = "secretsmanager"

// ApplyToConfig fills APP_KEY and the database URL from their secrets when a
// secret ID is configured. Values already present in the environment win.
func ApplyToConfig(ctx context.Context, p Provider, cfg *config.Config) error {
	if cfg.App.Key == "" && cfg.App.KeySecretID != "" {
		v, err := Resolve(ctx, p, cfg.App.KeySecretID, "app_key")
		if err != nil {
			return fmt.Errorf("app key: %w", err)
		}
		cfg.App.Key = v
	}

	if cfg.DB.URLSource == "default" && cfg.DB.URLSecretID != "" {
		v, err := Resolve(ctx, p, cfg.DB.URLSecretID, "database_url")
		if err != nil {
			return fmt.Errorf("database url: %w", err)
		}
		cfg.DB.URL = v
		cfg.DB.URLSource = SourceSecretsManager
	}
	return nil
}

// NeedsProvider reports whether cfg references any secret that is not already set.
func NeedsProvider(cfg *config.Config) bool {
	return (cfg.App.Key == "" && cfg.App.KeySecretID != "") ||
		(cfg.DB.URLSource == "default" && cfg.DB.URLSecretID != "")
}
