package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/beatstore-backend/internal/beats"
	"github.com/angelmondragon/beatstore-backend/pkg/config"
	"github.com/angelmondragon/beatstore-backend/pkg/db"
	"github.com/angelmondragon/beatstore-backend/pkg/logger"
	"github.com/angelmondragon/beatstore-backend/pkg/storage"
	"github.com/google/uuid"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "asset-migrator"})

	_ = godotenv.Load()

	dryRun := flag.Bool("dry-run", false, "report what would be copied without writing to S3")
	beatID := flag.String("beat-id", "", "copy the assets of a single beat")
	skipOnError := flag.Bool("skip-on-error", false, "keep going past failing beats and report them at the end")
	flag.Parse()

	opts := beats.MigrationOptions{DryRun: *dryRun, SkipOnError: *skipOnError}
	if *beatID != "" {
		id, err := uuid.Parse(*beatID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -beat-id: %v\n", err)
			os.Exit(1)
		}
		opts.BeatID = &id
	}

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "asset-migrator",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":     cfg.App.Env,
		"dry_run": *dryRun,
		"bucket":  cfg.Storage.S3Bucket,
	})

	if !cfg.Storage.HasS3() {
		requireResource(ctx, logg, "s3 bucket", fmt.Errorf("%s is not set", config.EnvS3Bucket))
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	src, err := storage.NewLocal(cfg.Storage.LocalRoot)
	requireResource(ctx, logg, "local storage", err)

	dst, err := storage.NewS3(ctx, cfg.Storage, logg)
	requireResource(ctx, logg, "s3 storage", err)

	migrator, err := beats.NewAssetMigrator(beats.NewRepository(dbClient.DB()), src, dst, logg)
	requireResource(ctx, logg, "asset migrator", err)

	report, err := migrator.Run(ctx, opts)
	summary := logg.WithFields(ctx, map[string]any{
		"beats":   report.Beats,
		"copied":  report.Copied,
		"skipped": report.Skipped,
		"missing": report.Missing,
		"failed":  report.Failed,
	})
	if err != nil {
		logg.Error(summary, "asset migration finished with errors", err)
		os.Exit(1)
	}
	logg.Info(summary, "asset migration finished")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
