package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed files/sqlite/*.sql files/postgres/*.sql
var migrationFS embed.FS

var dialects = map[string]struct {
	goose string
	dir   string
}{
	"sqlite":   {goose: "sqlite3", dir: "files/sqlite"},
	"postgres": {goose: "postgres", dir: "files/postgres"},
}

// Up applies every pending migration for driver ("sqlite" or "postgres").
func Up(ctx context.Context, db *sql.DB, driver string) error {
	d, ok := dialects[driver]
	if !ok {
		return fmt.Errorf("no migrations for driver %q", driver)
	}
	goose.SetBaseFS(migrationFS)
	if err := goose.SetDialect(d.goose); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, d.dir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Files lists the embedded migration files for driver.
func Files(driver string) ([]string, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("no migrations for driver %q", driver)
	}
	return fs.Glob(migrationFS, d.dir+"/*.sql")
}
