// Package bootstrap prepares the database, cache and tracing shared by the commands.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"egaku/internal/cache"
	"egaku/internal/config"
	"egaku/internal/database"
	"egaku/internal/middleware"
	"egaku/internal/models"
	"egaku/internal/observability"
	"egaku/internal/repository"
	"egaku/internal/service"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// Migrate applies pending schema migrations before anything else reads the database.
	Migrate bool
	// Tracing installs the OpenTelemetry provider described by the config.
	Tracing bool
}

// Runtime is what InitRuntime established. Close releases it in reverse order.
type Runtime struct {
	DB    *gorm.DB
	Redis *redis.Client

	shutdownTracing func(context.Context) error
}

// InitRuntime connects to DB and Redis, overlays database-managed credentials onto cfg
// and ensures the development root admin when enabled.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	rt := &Runtime{shutdownTracing: func(context.Context) error { return nil }}

	if opts.Tracing {
		shutdown, err := observability.InitTracing(ctx, observability.TracingConfig{
			Environment:  cfg.Env,
			Enabled:      cfg.TracingEnabled,
			Exporter:     cfg.TracingExporter,
			OTLPEndpoint: cfg.OTLPEndpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("tracing init failed: %w", err)
		}
		rt.shutdownTracing = shutdown
	}

	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	rt.DB = db

	if opts.Migrate {
		if _, err := database.MigrateUp(ctx, db, cfg.DBDriver); err != nil {
			return nil, fmt.Errorf("migrations failed: %w", err)
		}
	}

	// Init Redis (may result in nil client if unreachable)
	cache.InitRedis(cfg.RedisURL)
	rt.Redis = cache.GetClient()

	if err := ApplyServiceConfig(ctx, cfg, repository.NewServiceConfigRepository(db)); err != nil {
		return nil, fmt.Errorf("service config overlay failed: %w", err)
	}

	if err := ensureDevRootAdmin(ctx, cfg, db); err != nil {
		return nil, fmt.Errorf("failed to bootstrap development root admin: %w", err)
	}

	return rt, nil
}

// ShutdownTracing flushes pending spans. Servers that close DB and Redis themselves call
// this instead of Close.
func (r *Runtime) ShutdownTracing(ctx context.Context) error {
	return r.shutdownTracing(ctx)
}

// Close flushes traces and closes the database and Redis connections.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error
	if err := r.ShutdownTracing(ctx); err != nil {
		errs = append(errs, err)
	}
	if r.DB != nil {
		if sqlDB, err := r.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	if r.Redis != nil {
		errs = append(errs, r.Redis.Close())
	}
	return errors.Join(errs...)
}

// ApplyServiceConfig fills SMTP and moderation settings that the environment left empty
// from the service_config row. Environment values always win.
func ApplyServiceConfig(ctx context.Context, cfg *config.Config, repo repository.ServiceConfigRepository) error {
	row, err := repo.Get(ctx)
	if err != nil {
		return err
	}
	if row == nil {
		return nil
	}

	fill := func(dst *string, v string) {
		if strings.TrimSpace(*dst) == "" && v != "" {
			*dst = v
		}
	}
	fill(&cfg.SMTPHost, row.SMTPServer)
	fill(&cfg.SMTPUser, row.SenderEmail)
	fill(&cfg.SMTPPassword, row.SenderPassword)
	fill(&cfg.ModerationAPIKey, row.APIKey)
	fill(&cfg.ModerationSecretKey, row.SecretKey)
	if cfg.SMTPPort == 0 && row.SMTPPort != 0 {
		cfg.SMTPPort = row.SMTPPort
	}
	if row.SenderEmail != "" && (cfg.MailFrom == "" || cfg.MailFrom == config.DefaultMailFrom) {
		cfg.MailFrom = row.SenderEmail
	}

	middleware.Logger.InfoContext(ctx, "service config overlay applied",
		slog.Bool("smtp", cfg.MailEnabled()),
		slog.Bool("moderation", cfg.ModerationAPIKey != "" && cfg.ModerationSecretKey != ""),
	)
	return nil
}

func ensureDevRootAdmin(ctx context.Context, cfg *config.Config, db *gorm.DB) error {
	if cfg == nil || db == nil {
		return nil
	}
	if !strings.EqualFold(cfg.Env, "development") || !cfg.DevBootstrapRoot {
		return nil
	}

	account := strings.TrimSpace(cfg.DevRootAccount)
	if account == "" {
		account = "egaku_root"
	}
	email := strings.TrimSpace(strings.ToLower(cfg.DevRootEmail))
	if email == "" {
		email = "root@egaku.local"
	}
	password := cfg.DevRootPassword
	if password == "" {
		return fmt.Errorf("DEV_ROOT_PASSWORD must be set when DEV_BOOTSTRAP_ROOT is enabled")
	}

	var rootID uint
	if err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var root models.User
		findErr := tx.Where("account = ?", account).First(&root).Error
		switch {
		case errors.Is(findErr, gorm.ErrRecordNotFound):
			root = models.User{
				Account:    account,
				Email:      email,
				Nickname:   account,
				Admin:      true,
				SignupTime: time.Now(),
			}
			if err := tx.Create(&root).Error; err != nil {
				return err
			}
		case findErr != nil:
			return findErr
		}
		rootID = root.ID

		// The password hash is salted with the id, so it can only be written once the row exists.
		return tx.Model(&models.User{}).Where("id = ?", root.ID).Updates(map[string]any{
			"admin":    true,
			"password": service.HashPassword(password, root.ID),
		}).Error
	}); err != nil {
		return err
	}
	cache.InvalidateUser(ctx, rootID)

	middleware.Logger.InfoContext(ctx, "development root admin ensured",
		slog.Uint64("user_id", uint64(rootID)), slog.String("email", email))
	return nil
}
