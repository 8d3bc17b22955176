// Package migrate ships the SQL schema inside every binary and applies it
// with goose.
package migrate

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"strings"

	"github.com/pressly/goose/v3"
	"go.uber.org/multierr"

	"github.com/angelmondragon/familyhub-backend/pkg/config"
	"github.com/angelmondragon/familyhub-backend/pkg/db"
	"github.com/angelmondragon/familyhub-backend/pkg/logger"
)

// SourceDir is where new migrations are scaffolded, relative to the repo root.
const SourceDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Migrations returns the embedded migration files at the root of the FS.
func Migrations() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Check reports every malformed migration in fsys: names must carry a
// positive numeric version that no other file uses, and each file needs
// both goose sections.
func Check(fsys fs.FS) error {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return err
	}
	var errs error
	versions := map[int64]string{}
	for _, name := range names {
		version, err := goose.NumericComponent(name)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		if prior, dup := versions[version]; dup {
			errs = multierr.Append(errs, fmt.Errorf("%s: version %d already used by %s", name, version, prior))
		}
		versions[version] = name

		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		for _, section := range []string{"-- +goose Up", "-- +goose Down"} {
			if !strings.Contains(string(body), section) {
				errs = multierr.Append(errs, fmt.Errorf("%s: missing %q", name, section))
			}
		}
	}
	return errs
}

// Runner applies the embedded migrations to one database.
type Runner struct {
	p *goose.Provider
}

func NewRunner(client *db.Client, driver string) (*Runner, error) {
	pool, err := client.DB().DB()
	if err != nil {
		return nil, err
	}
	dialect := goose.DialectPostgres
	if driver == db.DriverSQLite {
		dialect = goose.DialectSQLite3
	}
	p, err := goose.NewProvider(dialect, pool, Migrations())
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Runner{p: p}, nil
}

func (r *Runner) Up(ctx context.Context) ([]*goose.MigrationResult, error) {
	return r.p.Up(ctx)
}

// Down rolls back the most recent migration only.
func (r *Runner) Down(ctx context.Context) (*goose.MigrationResult, error) {
	return r.p.Down(ctx)
}

// To migrates up or down until version is the newest applied migration.
func (r *Runner) To(ctx context.Context, version int64) ([]*goose.MigrationResult, error) {
	current, err := r.p.GetDBVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("read db version: %w", err)
	}
	switch {
	case version > current:
		return r.p.UpTo(ctx, version)
	case version < current:
		return r.p.DownTo(ctx, version)
	}
	return nil, nil
}

func (r *Runner) Status(ctx context.Context) ([]*goose.MigrationStatus, error) {
	return r.p.Status(ctx)
}

// AutoMigrate applies pending migrations at boot when running in dev with
// FAMILYHUB_DB_AUTO_MIGRATE set. Other environments run cmd/migrate.
func AutoMigrate(ctx context.Context, cfg *config.Config, client *db.Client, logg *logger.Logger) error {
	if !cfg.App.IsDev() || !cfg.DB.AutoMigrate {
		return nil
	}
	runner, err := NewRunner(client, cfg.DB.Driver)
	if err != nil {
		return err
	}
	applied, err := runner.Up(ctx)
	if err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	logg.Info(logg.WithField(ctx, "applied", len(applied)), "dev migrations applied")
	return nil
}
