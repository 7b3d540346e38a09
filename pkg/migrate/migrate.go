// Package migrate owns the schema: the embedded goose migrations, the
// helpers cmd/migrate drives, and the dev-only autorun on API boot.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/pressly/goose/v3"
)

const DefaultDir = "pkg/migrate/migrations"

const embeddedDir = "migrations"

//go:embed migrations/*.sql
var Embedded embed.FS

// Command names accepted by Run.
const (
	CommandUp     = "up"
	CommandDown   = "down"
	CommandRedo   = "redo"
	CommandStatus = "status"
)

var errNoDB = errors.New("migrate: db is required")

// Result is one applied or rolled back migration.
type Result struct {
	Version   int64
	Path      string
	Direction string
}

// Status is the applied state of one known migration.
type Status struct {
	Version int64
	Path    string
	Applied bool
}

// Migrator runs goose against a single database and migration source.
type Migrator struct {
	provider *goose.Provider
}

// NewMigrator opens a goose provider over dir, or over Embedded when dir is
// empty.
func NewMigrator(db *sql.DB, dir string) (*Migrator, error) {
	if db == nil {
		return nil, errNoDB
	}
	fsys, err := source(dir)
	if err != nil {
		return nil, err
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Migrator{provider: provider}, nil
}

func source(dir string) (fs.FS, error) {
	if dir == "" {
		sub, err := fs.Sub(Embedded, embeddedDir)
		if err != nil {
			return nil, fmt.Errorf("embedded migrations: %w", err)
		}
		return sub, nil
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("migrations dir %q: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("migrations dir %q is not a directory", dir)
	}
	return os.DirFS(dir), nil
}

// Version reports the highest applied migration.
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	v, err := m.provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("get db version: %w", err)
	}
	return v, nil
}

// Up applies every pending migration.
func (m *Migrator) Up(ctx context.Context) ([]Result, error) {
	res, err := m.provider.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("goose up: %w", err)
	}
	return toResults(res...), nil
}

// Down rolls back the most recent migration.
func (m *Migrator) Down(ctx context.Context) ([]Result, error) {
	res, err := m.provider.Down(ctx)
	if err != nil {
		return nil, fmt.Errorf("goose down: %w", err)
	}
	return toResults(res), nil
}

// Redo rolls back the most recent migration and applies it again.
func (m *Migrator) Redo(ctx context.Context) ([]Result, error) {
	down, err := m.Down(ctx)
	if err != nil {
		return nil, err
	}
	up, err := m.provider.UpByOne(ctx)
	if err != nil {
		return down, fmt.Errorf("goose redo: %w", err)
	}
	return append(down, toResults(up)...), nil
}

// To moves the schema up or down until target is the current version.
func (m *Migrator) To(ctx context.Context, target int64) ([]Result, error) {
	current, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}
	switch {
	case current == target:
		return nil, nil
	case current < target:
		res, err := m.provider.UpTo(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("goose up-to %d: %w", target, err)
		}
		return toResults(res...), nil
	default:
		res, err := m.provider.DownTo(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("goose down-to %d: %w", target, err)
		}
		return toResults(res...), nil
	}
}

// Status lists every known migration with its applied flag.
func (m *Migrator) Status(ctx context.Context) ([]Status, error) {
	rows, err := m.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("goose status: %w", err)
	}
	out := make([]Status, 0, len(rows))
	for _, row := range rows {
		if row == nil || row.Source == nil {
			continue
		}
		out = append(out, Status{
			Version: row.Source.Version,
			Path:    row.Source.Path,
			Applied: row.State == goose.StateApplied,
		})
	}
	return out, nil
}

func toResults(res ...*goose.MigrationResult) []Result {
	out := make([]Result, 0, len(res))
	for _, r := range res {
		if r == nil || r.Source == nil {
			continue
		}
		out = append(out, Result{
			Version:   r.Source.Version,
			Path:      r.Source.Path,
			Direction: r.Direction,
		})
	}
	return out
}

// Run executes one named command and prints what changed. An empty dir runs
// the embedded migrations.
func Run(ctx context.Context, db *sql.DB, dir string, command string) error {
	m, err := NewMigrator(db, dir)
	if err != nil {
		return err
	}

	var results []Result
	switch command {
	case CommandUp:
		results, err = m.Up(ctx)
	case CommandDown:
		results, err = m.Down(ctx)
	case CommandRedo:
		results, err = m.Redo(ctx)
	case CommandStatus:
		rows, err := m.Status(ctx)
		if err != nil {
			return err
		}
		for _, row := range rows {
			state := "pending"
			if row.Applied {
				state = "applied"
			}
			fmt.Printf("%-8s %d %s\n", state, row.Version, row.Path)
		}
		return nil
	default:
		return fmt.Errorf("unknown migrate command %q", command)
	}
	if err != nil {
		return err
	}
	printResults(results)
	return nil
}

// MigrateToVersion parses a YYYYMMDDHHMMSS version and moves the schema to it.
func MigrateToVersion(ctx context.Context, db *sql.DB, dir string, targetVersion string) error {
	target, err := ParseVersion(targetVersion)
	if err != nil {
		return err
	}
	m, err := NewMigrator(db, dir)
	if err != nil {
		return err
	}
	results, err := m.To(ctx, target)
	if err != nil {
		return err
	}
	printResults(results)
	return nil
}

// ParseVersion accepts a positive goose version number.
func ParseVersion(raw string) (int64, error) {
	if raw == "" {
		return 0, errors.New("target version is required")
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS)", raw)
	}
	return v, nil
}

func printResults(results []Result) {
	if len(results) == 0 {
		fmt.Println("no migrations to run")
		return
	}
	for _, r := range results {
		fmt.Printf("%-4s %d %s\n", r.Direction, r.Version, r.Path)
	}
}
