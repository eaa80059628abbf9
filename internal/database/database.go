// Package database opens the GORM connection and owns the schema migrations.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"egaku/internal/config"
	"egaku/internal/middleware"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Supported DB_DRIVER values.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

const (
	defaultPoolSize = 20
	connMaxLifetime = 5 * time.Minute
	pingTimeout     = 2 * time.Second
)

// Dialector builds the GORM dialector for cfg.DBDriver.
func Dialector(cfg *config.Config) (gorm.Dialector, error) {
	switch cfg.DBDriver {
	case DriverMySQL:
		return mysql.Open(MySQLDSN(cfg)), nil
	case DriverPostgres:
		return postgres.Open(PostgresDSN(cfg)), nil
	case DriverSQLite:
		path := cfg.DBPath
		if path == "" {
			path = "egaku.db"
		}
		return sqlite.Open(path), nil
	}
	return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
}

// MySQLDSN renders the go-sql-driver DSN with utf8mb4, parseTime and clientFoundRows on.
func MySQLDSN(cfg *config.Config) string {
	mc := mysqldriver.NewConfig()
	mc.User = cfg.DBUser
	mc.Passwd = cfg.DBPassword
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.DBHost, cfg.DBPort)
	mc.DBName = cfg.DBName
	mc.ParseTime = true
	// RowsAffected must count matched rows for the conditional token and status updates.
	mc.ClientFoundRows = true
	mc.Loc = time.UTC
	mc.Params = map[string]string{"charset": "utf8mb4"}
	return mc.FormatDSN()
}

// PostgresDSN renders a libpq keyword DSN; DB_SSLMODE defaults to disable.
func PostgresDSN(cfg *config.Config) string {
	sslMode := cfg.DBSSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, sslMode)
}

// Connect opens and pings the configured database. Migrations are left to the
// caller (bootstrap.InitRuntime or cmd/migrate).
func Connect(cfg *config.Config) (*gorm.DB, error) {
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  newQueryLogger(middleware.Logger),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.DBDriver, err)
	}
	if err := configurePool(db, cfg); err != nil {
		return nil, err
	}
	if err := Ping(context.Background(), db); err != nil {
		return nil, fmt.Errorf("ping %s database: %w", cfg.DBDriver, err)
	}

	middleware.Logger.Info("database connected", slog.String("driver", cfg.DBDriver))
	return db, nil
}

// configurePool caps open connections at DB_POOL_SIZE and keeps a quarter of them idle.
func configurePool(db *gorm.DB, cfg *config.Config) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("access sql.DB: %w", err)
	}
	size := cfg.DBPoolSize
	if size <= 0 {
		size = defaultPoolSize
	}
	sqlDB.SetMaxOpenConns(size)
	sqlDB.SetMaxIdleConns(max(size/4, 1))
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	return nil
}

// Ping checks the connection with a short timeout.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return sqlDB.PingContext(ctx)
}
