package database

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	// 纯 Go SQLite 驱动，注册为 "sqlite"
	_ "modernc.org/sqlite"
)

// Dialector 按驱动名返回 GORM 方言。sqlite 通过 modernc 驱动打开，不依赖 cgo。
func Dialector(driver, dsn string) (gorm.Dialector, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "sqlite3", "":
		return sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: dsn}), nil
	case "postgres", "postgresql", "pg":
		return postgres.Open(dsn), nil
	case "mysql", "mariadb":
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
}

// Open 打开数据库并包装为 PoolManager
func Open(driver, dsn string, config PoolConfig, logger *zap.Logger) (*PoolManager, error) {
	dialector, err := Dialector(driver, dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if _, ok := dialector.(*sqlite.Dialector); ok {
		// SQLite 单写者
		config.MaxOpenConns, config.MaxIdleConns = 1, 1
	}
	pm, err := NewPoolManager(db, config, logger)
	if err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return nil, err
	}
	return pm, nil
}
