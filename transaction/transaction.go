// Package transaction 提供事务策略：按声明的传播方式、隔离级别与超时时间，
// 把一次调用包裹在 GORM 事务中。
//
// 真实方法通过 FromContext 取得当前事务：
//
//	fn := func(ctx context.Context, args []any) (any, error) {
//	    tx, ok := transaction.FromContext(ctx)
//	    if !ok {
//	        tx = db.WithContext(ctx)
//	    }
//	    return nil, tx.Create(&Order{ID: args[0].(string)}).Error
//	}
//
// 真实方法成功时提交；返回错误或 panic 时回滚，错误原样返回，panic 继续传播。
package transaction

import (
	"context"
	"database/sql"
	"time"

	"gorm.io/gorm"

	"github.com/ceyewan/aspect/clog"
	"github.com/ceyewan/aspect/intercept"
	"github.com/ceyewan/aspect/xerrors"
)

// Kind 事务策略标签
const Kind intercept.Kind = "transaction"

// Propagation 事务传播方式
type Propagation string

const (
	// Required 存在活动事务时加入，否则开启新事务
	Required Propagation = "required"
	// RequiresNew 总是开启独立的新事务
	RequiresNew Propagation = "requires_new"
	// Suppress 在没有事务的上下文中执行
	Suppress Propagation = "suppress"
)

// Isolation 事务隔离级别
type Isolation string

const (
	IsolationDefault         Isolation = "default"
	IsolationReadUncommitted Isolation = "read_uncommitted"
	IsolationReadCommitted   Isolation = "read_committed"
	IsolationRepeatableRead  Isolation = "repeatable_read"
	IsolationSerializable    Isolation = "serializable"
)

func (l Isolation) level() (sql.IsolationLevel, error) {
	switch l {
	case IsolationDefault, "":
		return sql.LevelDefault, nil
	case IsolationReadUncommitted:
		return sql.LevelReadUncommitted, nil
	case IsolationReadCommitted:
		return sql.LevelReadCommitted, nil
	case IsolationRepeatableRead:
		return sql.LevelRepeatableRead, nil
	case IsolationSerializable:
		return sql.LevelSerializable, nil
	default:
		return 0, xerrors.Wrapf(xerrors.ErrInvalidInput, "transaction: unknown isolation %q", string(l))
	}
}

// Config 事务策略配置
type Config struct {
	intercept.Options `mapstructure:",squash"`

	// Propagation 传播方式（默认：required）
	Propagation Propagation `mapstructure:"propagation"`

	// Isolation 隔离级别（默认：default，由驱动决定）
	Isolation Isolation `mapstructure:"isolation"`

	// Timeout 事务超时时间，为 0 时不额外设置截止时间
	Timeout time.Duration `mapstructure:"timeout"`
}

// NewConfig 返回默认配置
func NewConfig() *Config {
	return &Config{
		Options:     intercept.DefaultOptions(),
		Propagation: Required,
		Isolation:   IsolationDefault,
	}
}

func (c *Config) Kind() intercept.Kind { return Kind }

func (c *Config) Clone() intercept.Declaration {
	cp := *c
	return &cp
}

// marker 方法级标记
type marker struct {
	cfg         *Config
	propagation Propagation
	txOpts      *sql.TxOptions
}

func build(_ intercept.Invocation, decl intercept.Declaration) (*marker, error) {
	cfg, ok := decl.(*Config)
	if !ok {
		return nil, xerrors.Wrapf(intercept.ErrKindMismatch, "transaction: unexpected declaration %T", decl)
	}
	propagation := cfg.Propagation
	switch propagation {
	case Required, RequiresNew, Suppress:
	case "":
		propagation = Required
	default:
		return nil, xerrors.Wrapf(xerrors.ErrInvalidInput, "transaction: unknown propagation %q", string(cfg.Propagation))
	}
	level, err := cfg.Isolation.level()
	if err != nil {
		return nil, err
	}
	if cfg.Timeout < 0 {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "transaction: timeout must not be negative")
	}
	return &marker{cfg: cfg, propagation: propagation, txOpts: &sql.TxOptions{Isolation: level}}, nil
}

type txKey struct{}

// FromContext 返回当前调用所在的事务
//
// 在 Suppress 范围内或没有事务时返回 false。
func FromContext(ctx context.Context) (*gorm.DB, bool) {
	tx, _ := ctx.Value(txKey{}).(*gorm.DB)
	return tx, tx != nil
}

// NewContext 返回携带事务的上下文，tx 为 nil 时屏蔽外层事务
func NewContext(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// Interceptor 事务拦截器
type Interceptor struct {
	db       *gorm.DB
	registry *intercept.Registry[*marker]
	logger   clog.Logger
}

// New 创建事务拦截器，db 为开启事务所用的连接
func New(db *gorm.DB, source intercept.Source, opts ...Option) (*Interceptor, error) {
	if db == nil {
		return nil, ErrDBNil
	}
	o := applyOptions(opts)

	i := &Interceptor{db: db, logger: o.logger}
	i.registry = intercept.NewRegistry(Kind, source,
		func() intercept.Declaration { return NewConfig() },
		build,
		intercept.WithLogger(o.logger),
	)
	return i, nil
}

// Kind 实现 intercept.Interceptor
func (i *Interceptor) Kind() intercept.Kind { return Kind }

// Intercept 实现 intercept.Interceptor
func (i *Interceptor) Intercept(inv intercept.Invocation) error {
	m, ok := i.registry.Resolve(inv)
	if !ok {
		return inv.Proceed()
	}

	ctx := inv.Context()
	defer inv.SetContext(ctx)

	switch m.propagation {
	case Suppress:
		inv.SetContext(NewContext(ctx, nil))
		return inv.Proceed()
	case Required:
		if _, active := FromContext(ctx); active {
			i.logger.Log(ctx, m.cfg.LogLevel, "joining active transaction", intercept.MethodField(inv))
			return inv.Proceed()
		}
	}

	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.Timeout)
		defer cancel()
	}

	i.logger.Log(ctx, m.cfg.LogLevel, "transaction started",
		intercept.MethodField(inv), clog.String("isolation", string(m.cfg.Isolation)))
	err := i.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv.SetContext(NewContext(ctx, tx))
		return inv.Proceed()
	}, m.txOpts)
	if err != nil {
		i.logger.ErrorContext(ctx, "transaction cannot be completed", intercept.MethodField(inv), clog.Error(err))
		return err
	}
	i.logger.Log(ctx, m.cfg.LogLevel, "transaction completed", intercept.MethodField(inv))
	return nil
}

// SetDefault 设置未声明方法使用的默认配置
func (i *Interceptor) SetDefault(cfg *Config) error {
	if cfg == nil {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "transaction: default config is nil")
	}
	return i.registry.SetDefault(cfg)
}
