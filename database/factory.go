package database

import (
	"fmt"

	"github.com/anoixa/image-resizer/config"
	"github.com/anoixa/image-resizer/database/models"
	"github.com/anoixa/image-resizer/utils"
	"go.uber.org/zap"
)

// Factory 数据库工厂 - 负责创建和管理数据库提供者
type Factory struct {
	provider Provider
}

// NewFactory 创建新的数据库工厂
func NewFactory(cfg *config.Config) (*Factory, error) {
	provider, err := NewGormProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database provider: %w", err)
	}

	utils.Logger().Info("Database provider initialized", zap.String("type", provider.Name()))

	return &Factory{
		provider: provider,
	}, nil
}

// NewFactoryWithProvider 使用现成的提供者构造工厂
func NewFactoryWithProvider(provider Provider) *Factory {
	return &Factory{provider: provider}
}

// GetProvider 获取数据库提供者
func (f *Factory) GetProvider() Provider {
	return f.provider
}

// Close 关闭数据库连接
func (f *Factory) Close() error {
	if f.provider != nil {
		return f.provider.Close()
	}
	return nil
}

// AutoMigrate 自动迁移数据库结构
func (f *Factory) AutoMigrate() error {
	if f.provider == nil {
		return fmt.Errorf("database provider not initialized")
	}
	return Migrate(f.provider)
}

// Migrate 迁移全部表结构，父表在前
func Migrate(p Provider) error {
	if err := p.AutoMigrate(
		&models.Directory{},
		&models.OriginalImage{},
		&models.DerivedImage{},
	); err != nil {
		return fmt.Errorf("failed to auto migrate database: %w", err)
	}
	return nil
}
