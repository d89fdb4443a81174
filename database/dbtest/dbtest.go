// Package dbtest 提供基于内存 SQLite 的测试数据库
package dbtest

import (
	"fmt"
	"testing"

	"github.com/anoixa/image-resizer/database"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewProvider 创建一个迁移完成、相互隔离的内存数据库
// 连接数限制为 1，并发调用在连接池上排队
func NewProvider(t testing.TB) database.Provider {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	p := database.WrapDB(db, "sqlite")
	require.NoError(t, database.Migrate(p))
	return p
}
