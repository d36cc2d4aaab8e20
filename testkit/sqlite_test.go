package testkit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	ID string `gorm:"primaryKey;size:64"`
}

func TestNewSQLiteDB_SurvivesCancelledTransaction(t *testing.T) {
	db := NewSQLiteDB(t)
	require.NoError(t, db.AutoMigrate(&row{}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	tx := db.WithContext(ctx).Begin()
	require.NoError(t, tx.Error)
	require.NoError(t, tx.Create(&row{ID: "r-1"}).Error)
	<-ctx.Done()
	_ = tx.Rollback().Error

	var n int64
	require.NoError(t, db.Model(&row{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestNewSQLiteDB_Isolated(t *testing.T) {
	a := NewSQLiteDB(t)
	b := NewSQLiteDB(t)
	require.NoError(t, a.AutoMigrate(&row{}))
	assert.False(t, b.Migrator().HasTable(&row{}))
}
