// Package db opens the Postgres connection and owns the schema migration.
package db

import (
	"context"
	"fmt"

	"github.com/fatflowers/payment-engine/internal/models"
	cfgpkg "github.com/fatflowers/payment-engine/pkg/config"
	gormzap "github.com/fatflowers/payment-engine/pkg/gormlog"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var ErrEmptyDSN = fmt.Errorf("%w: database.dsn is empty", gorm.ErrInvalidDB)

func gormConfig(l *zap.SugaredLogger, cfg *cfgpkg.Config) *gorm.Config {
	return &gorm.Config{
		Logger: gormzap.New(l, cfg.Env == cfgpkg.EnvDev),
		// unique violations surface as gorm.ErrDuplicatedKey
		TranslateError: true,
	}
}

func NewDB(l *zap.SugaredLogger, cfg *cfgpkg.Config) (*gorm.DB, error) {
	if cfg.Database.DSN == "" {
		return nil, ErrEmptyDSN
	}
	gdb, err := gorm.Open(postgres.Open(cfg.Database.DSN), gormConfig(l, cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	l.Infow("postgres_connected", "max_open_conns", cfg.Database.MaxOpenConns)
	return gdb, nil
}

var Module = fx.Options(
	fx.Provide(NewDB),
	fx.Invoke(AutoMigrate),
	fx.Invoke(registerDBClose),
)

// Models lists every table owned by the engine. Refunds reference payments, so
// payments migrate first.
func Models() []any {
	return []any{
		&models.Payment{},
		&models.Refund{},
		&models.ProviderEventLog{},
	}
}

func AutoMigrate(l *zap.SugaredLogger, cfg *cfgpkg.Config, gdb *gorm.DB) error {
	if !cfg.Database.AutoMigrate {
		l.Infow("automigrate_disabled")
		return nil
	}
	if err := gdb.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	l.Infow("automigrate_completed", "tables", len(Models()))
	return nil
}

func registerDBClose(lc fx.Lifecycle, l *zap.SugaredLogger, gdb *gorm.DB) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			sqlDB, err := gdb.DB()
			if err != nil {
				l.Warnw("postgres_pool_unavailable", "err", err)
				return nil
			}
			l.Infow("postgres_closing")
			return sqlDB.Close()
		},
	})
}
