package testkit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewSQLiteDB 获取 GORM DB 实例（独立的内存数据库）
// 共享缓存的内存库在最后一个连接关闭时即被销毁，
// 因此这里固定持有一个连接直到测试结束，避免被取消的事务丢弃连接后表结构丢失。
// 生命周期由 t.Cleanup 管理
func NewSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + NewID() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err, "failed to open sqlite")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	pinned, err := sqlDB.Conn(context.Background())
	require.NoError(t, err, "failed to pin sqlite connection")
	t.Cleanup(func() {
		_ = pinned.Close()
		_ = sqlDB.Close()
	})
	return db
}

func closeDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
}
