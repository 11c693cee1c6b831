package migration

import (
	"context"
	"fmt"

	"github.com/BaSui01/tutorflow/config"
)

// NewMigratorFromConfig 由 URL 缓存的 SQL 配置创建迁移器
func NewMigratorFromConfig(cfg config.SQLConfig) (*DefaultMigrator, error) {
	dbType, err := ParseDatabaseType(cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("invalid database type: %w", err)
	}
	return NewMigrator(&Config{
		DatabaseType: dbType,
		DatabaseURL:  cfg.DSN,
	})
}

// UpFromConfig 执行全部迁移后关闭连接
func UpFromConfig(ctx context.Context, cfg config.SQLConfig) error {
	m, err := NewMigratorFromConfig(cfg)
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Up(ctx)
}
