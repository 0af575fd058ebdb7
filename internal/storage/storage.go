// Package storage 负责数据库连接的建立与表结构迁移。
package storage

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tooltally/internal/config"
	"tooltally/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open 按配置打开数据库并完成迁移。
//
// 生产环境使用 MySQL；driver 设为 sqlite 时退回单文件数据库，
// 便于本地开发与一次性回填脚本。TranslateError 打开后各驱动的
// 唯一约束冲突统一映射为 gorm.ErrDuplicatedKey。
func Open(cfg *config.Config, logger *slog.Logger) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if cfg.Resolver.Driver != "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("access connection pool: %w", err)
		}
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	logger.Info("database ready", "driver", cfg.Resolver.Driver)
	return db, nil
}

func dialectorFor(cfg *config.Config) (gorm.Dialector, error) {
	switch strings.ToLower(cfg.Resolver.Driver) {
	case "", "mysql":
		return mysql.Open(cfg.MySQL.DSN), nil
	case "sqlite":
		return sqlite.Open(cfg.Resolver.SQLitePath), nil
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.Resolver.Driver)
	}
}

// Migrate 执行全部表结构迁移。
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Vendor{},
		&model.Product{},
		&model.Offer{},
		&model.RawListing{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
