package database

import (
	"context"
	"database/sql"

	"gorm.io/gorm"
)

// TxFunc 事务函数类型
type TxFunc func(tx *gorm.DB) error

// Provider 数据库提供者接口
// 仓储层只依赖此接口，具体实现可以是连接池也可以是进行中的事务
type Provider interface {
	// DB 返回底层 *gorm.DB 实例
	DB() *gorm.DB

	// WithContext 返回带上下文的 *gorm.DB
	WithContext(ctx context.Context) *gorm.DB

	// Transaction 在事务中执行函数
	Transaction(fn TxFunc) error

	// TransactionWithContext 带上下文的事务执行
	TransactionWithContext(ctx context.Context, fn TxFunc) error

	// AutoMigrate 自动迁移数据库结构
	AutoMigrate(models ...interface{}) error

	// SQLDB 返回底层 sql.DB
	SQLDB() (*sql.DB, error)

	// Ping 检查数据库连接
	Ping() error

	// Close 关闭数据库连接
	Close() error

	// Name 返回数据库名称
	Name() string
}

// txProvider 绑定到一个进行中事务的 Provider
type txProvider struct {
	Provider
	tx *gorm.DB
}

// WithTx 返回绑定到事务 tx 的 Provider，嵌套事务直接复用 tx
func WithTx(p Provider, tx *gorm.DB) Provider {
	if t, ok := p.(*txProvider); ok {
		p = t.Provider
	}
	return &txProvider{Provider: p, tx: tx}
}

func (p *txProvider) DB() *gorm.DB {
	return p.tx
}

func (p *txProvider) WithContext(ctx context.Context) *gorm.DB {
	return p.tx.WithContext(ctx)
}

func (p *txProvider) Transaction(fn TxFunc) error {
	return fn(p.tx)
}

func (p *txProvider) TransactionWithContext(ctx context.Context, fn TxFunc) error {
	return fn(p.tx.WithContext(ctx))
}
