package transaction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ceyewan/aspect/intercept"
	"github.com/ceyewan/aspect/testkit"
)

var place = intercept.Method{Type: "orders.Service", Name: "Place"}

type Order struct {
	ID     string `gorm:"primaryKey;size:64"`
	Amount int
}

var errDeclined = errors.New("payment declined")

func setup(t *testing.T, cfg *Config) (*intercept.Pipeline, *gorm.DB) {
	t.Helper()
	db := testkit.NewSQLiteDB(t)
	require.NoError(t, db.AutoMigrate(&Order{}))

	catalog := intercept.NewCatalog().DeclareMethod(place, cfg)
	tx, err := New(db, catalog, WithLogger(testkit.NewLogger()))
	require.NoError(t, err)
	return intercept.NewPipeline(catalog, []intercept.Interceptor{tx}), db
}

func invoke(ctx context.Context, p *intercept.Pipeline, fn func(ctx context.Context) error) error {
	_, err := p.Invoke(ctx, intercept.Call{
		Method: place,
		Fn: func(ctx context.Context, _ []any) (any, error) {
			return nil, fn(ctx)
		},
	})
	return err
}

func count(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&Order{}).Count(&n).Error)
	return n
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, Kind, cfg.Kind())
	assert.Equal(t, Required, cfg.Propagation)
	assert.Equal(t, IsolationDefault, cfg.Isolation)
	assert.Zero(t, cfg.Timeout)
}

func TestNew_NilDB(t *testing.T) {
	_, err := New(nil, nil)
	assert.ErrorIs(t, err, ErrDBNil)
}

func TestTransaction_CommitsOnSuccess(t *testing.T) {
	p, db := setup(t, NewConfig())

	err := invoke(context.Background(), p, func(ctx context.Context) error {
		tx, ok := FromContext(ctx)
		require.True(t, ok)
		return tx.Create(&Order{ID: "o-1", Amount: 10}).Error
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count(t, db))
}

func TestTransaction_RollsBackOnError(t *testing.T) {
	p, db := setup(t, NewConfig())

	err := invoke(context.Background(), p, func(ctx context.Context) error {
		tx, _ := FromContext(ctx)
		require.NoError(t, tx.Create(&Order{ID: "o-1", Amount: 10}).Error)
		return errDeclined
	})
	assert.Same(t, errDeclined, err)
	assert.Zero(t, count(t, db))
}

func TestTransaction_RollsBackOnPanic(t *testing.T) {
	p, db := setup(t, NewConfig())

	assert.Panics(t, func() {
		_ = invoke(context.Background(), p, func(ctx context.Context) error {
			tx, _ := FromContext(ctx)
			require.NoError(t, tx.Create(&Order{ID: "o-1", Amount: 10}).Error)
			panic("boom")
		})
	})
	assert.Zero(t, count(t, db))
}

func TestTransaction_RequiredJoinsActive(t *testing.T) {
	p, db := setup(t, NewConfig())
	outer := db.Session(&gorm.Session{})

	err := invoke(NewContext(context.Background(), outer), p, func(ctx context.Context) error {
		tx, ok := FromContext(ctx)
		require.True(t, ok)
		assert.Same(t, outer, tx)
		return nil
	})
	assert.NoError(t, err)
}

func TestTransaction_RequiresNew(t *testing.T) {
	cfg := NewConfig()
	cfg.Propagation = RequiresNew
	p, db := setup(t, cfg)
	outer := db.Session(&gorm.Session{})

	err := invoke(NewContext(context.Background(), outer), p, func(ctx context.Context) error {
		tx, ok := FromContext(ctx)
		require.True(t, ok)
		assert.NotSame(t, outer, tx)
		return tx.Create(&Order{ID: "o-2", Amount: 5}).Error
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count(t, db))
}

func TestTransaction_Suppress(t *testing.T) {
	cfg := NewConfig()
	cfg.Propagation = Suppress
	p, db := setup(t, cfg)

	ctx := NewContext(context.Background(), db)
	err := invoke(ctx, p, func(ctx context.Context) error {
		_, ok := FromContext(ctx)
		assert.False(t, ok)
		return nil
	})
	assert.NoError(t, err)
}

func TestTransaction_Timeout(t *testing.T) {
	cfg := NewConfig()
	cfg.Timeout = 10 * time.Millisecond
	p, db := setup(t, cfg)

	err := invoke(context.Background(), p, func(ctx context.Context) error {
		tx, _ := FromContext(ctx)
		require.NoError(t, tx.Create(&Order{ID: "o-1", Amount: 10}).Error)
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, count(t, db))
}

func TestTransaction_InvalidDeclarationSkipsPolicy(t *testing.T) {
	cfg := NewConfig()
	cfg.Isolation = "snapshot"
	p, _ := setup(t, cfg)

	err := invoke(context.Background(), p, func(ctx context.Context) error {
		_, ok := FromContext(ctx)
		assert.False(t, ok)
		return nil
	})
	assert.NoError(t, err)
}

func TestTransaction_Disabled(t *testing.T) {
	cfg := NewConfig()
	cfg.Intercept = false
	p, _ := setup(t, cfg)

	err := invoke(context.Background(), p, func(ctx context.Context) error {
		_, ok := FromContext(ctx)
		assert.False(t, ok)
		return nil
	})
	assert.NoError(t, err)
}

func TestIsolation_Level(t *testing.T) {
	for _, l := range []Isolation{"", IsolationDefault, IsolationReadUncommitted, IsolationReadCommitted, IsolationRepeatableRead, IsolationSerializable} {
		_, err := l.level()
		assert.NoError(t, err, l)
	}
	_, err := Isolation("snapshot").level()
	assert.Error(t, err)
}
