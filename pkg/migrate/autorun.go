package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/beatstore-backend/pkg/config"
	"github.com/angelmondragon/beatstore-backend/pkg/db"
	"github.com/angelmondragon/beatstore-backend/pkg/logger"
)

// MaybeRunDev applies the embedded migrations on boot, but only in the dev
// environment with BEATSTORE_AUTO_MIGRATE set. Other environments run
// cmd/migrate explicitly.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("unwrap sql.DB: %w", err)
	}
	if err := ValidateEmbedded(); err != nil {
		return fmt.Errorf("embedded migrations invalid: %w", err)
	}
	m, err := NewMigrator(sqlDB, "")
	if err != nil {
		return err
	}
	before, err := m.Version(ctx)
	if err != nil {
		return err
	}
	applied, err := m.Up(ctx)
	if err != nil {
		return err
	}
	logg.Info(logg.WithFields(ctx, map[string]any{
		"from_version": before,
		"applied":      len(applied),
	}), "migrate.autorun.done")
	return nil
}
