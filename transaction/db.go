package transaction

import (
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ceyewan/aspect/clog"
	"github.com/ceyewan/aspect/xerrors"
)

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// DBConfig 数据库连接配置
type DBConfig struct {
	// Driver 驱动名称：sqlite | mysql
	Driver string `mapstructure:"driver"`

	// DSN 数据源，sqlite 为文件路径，mysql 为 user:pass@tcp(host:port)/db?parseTime=True
	DSN string `mapstructure:"dsn"`

	// MaxOpenConns 最大打开连接数（默认：10）
	MaxOpenConns int `mapstructure:"max_open_conns"`

	// MaxIdleConns 最大空闲连接数（默认：5）
	MaxIdleConns int `mapstructure:"max_idle_conns"`

	// ConnMaxLifetime 连接最大存活时间（默认：1h）
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`

	// SlowThreshold 超过该耗时的 SQL 记录为慢查询（默认：200ms）
	SlowThreshold time.Duration `mapstructure:"slow_threshold"`

	// LogSQL 是否以 Debug 级别记录每一条 SQL
	LogSQL bool `mapstructure:"log_sql"`
}

func (c *DBConfig) setDefaults() {
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 10
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = time.Hour
	}
	if c.SlowThreshold == 0 {
		c.SlowThreshold = 200 * time.Millisecond
	}
}

func (c *DBConfig) validate() error {
	if c.DSN == "" {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "dsn is required")
	}
	if c.Driver != DriverSQLite && c.Driver != DriverMySQL {
		return xerrors.Wrapf(ErrUnsupportedDriver, "%q", c.Driver)
	}
	return nil
}

// Open 按配置打开 GORM 连接，SQL 日志写入 clog
func Open(cfg *DBConfig, opts ...Option) (*gorm.DB, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "transaction: db config is nil")
	}
	c := *cfg
	c.setDefaults()
	if err := c.validate(); err != nil {
		return nil, xerrors.Wrap(err, "invalid db config")
	}
	o := applyOptions(opts)

	var dialector gorm.Dialector
	switch c.Driver {
	case DriverMySQL:
		dialector = mysql.Open(c.DSN)
	default:
		dialector = sqlite.Open(c.DSN)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newGormLogger(o.logger, c.SlowThreshold, c.LogSQL),
	})
	if err != nil {
		return nil, xerrors.Wrapf(err, "transaction: open %s", c.Driver)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, xerrors.Wrap(err, "transaction: get db instance")
	}
	sqlDB.SetMaxOpenConns(c.MaxOpenConns)
	sqlDB.SetMaxIdleConns(c.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(c.ConnMaxLifetime)

	o.logger.Info("database opened", clog.String("driver", c.Driver))
	return db, nil
}
