package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
)

// Dir is the migrations directory inside the embedded filesystem.
const Dir = "migrations"

//go:embed migrations/*.sql
var migrationsFS embed.FS

var gooseMu sync.Mutex

// Up applies every pending embedded migration using the given goose dialect
// (sqlite3 or postgres).
func Up(ctx context.Context, db *sql.DB, dialect string) error {
	if err := ValidateEmbedded(); err != nil {
		return err
	}
	return withGoose(db, dialect, func() error {
		if err := goose.UpContext(ctx, db, Dir); err != nil {
			return fmt.Errorf("goose up: %w", err)
		}
		return nil
	})
}

// Down rolls back the most recent migration.
func Down(ctx context.Context, db *sql.DB, dialect string) error {
	return withGoose(db, dialect, func() error {
		if err := goose.DownContext(ctx, db, Dir); err != nil {
			return fmt.Errorf("goose down: %w", err)
		}
		return nil
	})
}

// Version reports the current schema version.
func Version(db *sql.DB, dialect string) (int64, error) {
	var version int64
	err := withGoose(db, dialect, func() error {
		v, err := goose.GetDBVersion(db)
		if err != nil {
			return fmt.Errorf("get db version: %w", err)
		}
		version = v
		return nil
	})
	return version, err
}

// ValidateEmbedded checks the migrations compiled into the binary.
func ValidateEmbedded() error {
	return ValidateFS(migrationsFS, Dir)
}

// withGoose serializes access to goose, which keeps its base FS and dialect
// in package globals.
func withGoose(db *sql.DB, dialect string, fn func() error) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	if dialect == "" {
		return fmt.Errorf("dialect is required")
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return fn()
}
