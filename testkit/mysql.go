package testkit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewMySQLDB 使用 testcontainers 启动 MySQL 并返回 GORM 实例
// 生命周期由 t.Cleanup 管理
func NewMySQLDB(t *testing.T) *gorm.DB {
	t.Helper()
	skipIntegration(t)
	ctx := context.Background()

	container, err := tcmysql.Run(ctx, "mysql:8.0",
		tcmysql.WithDatabase("aspect_db"),
		tcmysql.WithUsername("aspect_user"),
		tcmysql.WithPassword("aspect_password"),
	)
	if err != nil {
		t.Skipf("mysql container unavailable: %v", err)
	}
	testcontainers.CleanupContainer(t, container)

	dsn, err := container.ConnectionString(ctx, "parseTime=true", "charset=utf8mb4")
	require.NoError(t, err)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err, "failed to open mysql")
	closeDB(t, db)
	return db
}
