package beats

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/beatstore-backend/pkg/db/models"
	"github.com/angelmondragon/beatstore-backend/pkg/logger"
	"github.com/angelmondragon/beatstore-backend/pkg/storage"
)

// MigrationOptions narrow an asset copy run.
type MigrationOptions struct {
	DryRun      bool
	BeatID      *uuid.UUID
	SkipOnError bool
}

// MigrationReport counts what a run did, per asset key.
type MigrationReport struct {
	Beats   int
	Copied  int
	Skipped int
	Missing int
	Failed  int
}

// AssetMigrator copies catalog assets between two stores, leaving keys that
// already exist on the destination untouched.
type AssetMigrator struct {
	repo Repository
	src  storage.Store
	dst  storage.Store
	logg *logger.Logger
}

func NewAssetMigrator(repo Repository, src, dst storage.Store, logg *logger.Logger) (*AssetMigrator, error) {
	if repo == nil {
		return nil, fmt.Errorf("beats repository required")
	}
	if src == nil || dst == nil {
		return nil, fmt.Errorf("source and destination stores required")
	}
	return &AssetMigrator{repo: repo, src: src, dst: dst, logg: logg}, nil
}

// Run walks the catalog, or a single beat, and copies each missing asset.
// Without SkipOnError the first failing beat aborts the run; with it every
// failure is collected and returned together.
func (m *AssetMigrator) Run(ctx context.Context, opts MigrationOptions) (MigrationReport, error) {
	var (
		report MigrationReport
		errs   error
	)

	visit := func(beat models.Beat) error {
		report.Beats++
		err := m.migrateBeat(ctx, beat, opts.DryRun, &report)
		if err == nil {
			return nil
		}
		if !opts.SkipOnError {
			return err
		}
		errs = multierr.Append(errs, err)
		return nil
	}

	if opts.BeatID != nil {
		beat, err := m.repo.FindByID(ctx, *opts.BeatID)
		if err != nil {
			return report, err
		}
		if beat == nil {
			return report, fmt.Errorf("beat %s not found", opts.BeatID)
		}
		if err := visit(*beat); err != nil {
			return report, err
		}
		return report, errs
	}

	if err := m.repo.All(ctx, visit); err != nil {
		return report, err
	}
	return report, errs
}

func (m *AssetMigrator) migrateBeat(ctx context.Context, beat models.Beat, dryRun bool, report *MigrationReport) error {
	var errs error
	for _, key := range beat.AssetKeys() {
		keyCtx := ctx
		if m.logg != nil {
			keyCtx = m.logg.WithFields(m.logg.WithBeatID(ctx, beat.ID.String()), map[string]any{"key": key})
		}

		exists, err := m.dst.Exists(ctx, key)
		if err != nil {
			report.Failed++
			errs = multierr.Append(errs, fmt.Errorf("beat %s: check %s: %w", beat.ID, key, err))
			continue
		}
		if exists {
			report.Skipped++
			continue
		}

		present, err := m.src.Exists(ctx, key)
		if err != nil {
			report.Failed++
			errs = multierr.Append(errs, fmt.Errorf("beat %s: check source %s: %w", beat.ID, key, err))
			continue
		}
		if !present {
			report.Missing++
			if m.logg != nil {
				m.logg.Warn(keyCtx, "assets.migrate.source_missing")
			}
			continue
		}

		if dryRun {
			report.Copied++
			if m.logg != nil {
				m.logg.Info(keyCtx, "assets.migrate.would_copy")
			}
			continue
		}

		if err := m.copy(ctx, key); err != nil {
			report.Failed++
			errs = multierr.Append(errs, fmt.Errorf("beat %s: copy %s: %w", beat.ID, key, err))
			continue
		}
		report.Copied++
		if m.logg != nil {
			m.logg.Info(keyCtx, "assets.migrate.copied")
		}
	}
	return errs
}

func (m *AssetMigrator) copy(ctx context.Context, key string) error {
	obj, err := m.src.Open(ctx, key)
	if err != nil {
		return err
	}
	defer obj.Body.Close()

	body, ok := obj.Body.(io.ReadSeeker)
	if !ok {
		buf, err := io.ReadAll(obj.Body)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}
	return m.dst.Put(ctx, key, body, obj.Size, obj.ContentType)
}
