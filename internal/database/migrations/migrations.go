// Package migrations holds the versioned schema changes applied by goose.
// Each migration opens GORM over the goose transaction so the same code runs on every driver.
package migrations

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type step func(ctx context.Context, db *gorm.DB) error

type migration struct {
	version int64
	up      step
	down    step
}

// registry is append-only; never renumber a released version.
var registry = []migration{
	{version: 1, up: upInit, down: downInit},
	{version: 2, up: upReplyIndex, down: downReplyIndex},
}

// GooseDialect maps a DB_DRIVER value to the goose dialect.
func GooseDialect(driver string) (goose.Dialect, error) {
	switch driver {
	case "postgres":
		return goose.DialectPostgres, nil
	case "mysql":
		return goose.DialectMySQL, nil
	case "sqlite":
		return goose.DialectSQLite3, nil
	default:
		return "", fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}
}

// OverTx opens a GORM session on top of an existing transaction.
func OverTx(driver string, tx *sql.Tx) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.New(postgres.Config{Conn: tx})
	case "mysql":
		dialector = mysql.New(mysql.Config{Conn: tx, SkipInitializeWithVersion: true})
	case "sqlite":
		dialector = sqlite.New(sqlite.Config{Conn: tx})
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}
	return gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
}

// GoMigrations returns the registry bound to driver, ready for goose.WithGoMigrations.
func GoMigrations(driver string) []*goose.Migration {
	out := make([]*goose.Migration, 0, len(registry))
	for _, m := range registry {
		out = append(out, goose.NewGoMigration(m.version,
			&goose.GoFunc{RunTx: bind(driver, m.up)},
			&goose.GoFunc{RunTx: bind(driver, m.down)},
		))
	}
	return out
}

func bind(driver string, s step) func(context.Context, *sql.Tx) error {
	return func(ctx context.Context, tx *sql.Tx) error {
		db, err := OverTx(driver, tx)
		if err != nil {
			return err
		}
		return s(ctx, db.WithContext(ctx))
	}
}
