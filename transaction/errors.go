package transaction

import "github.com/ceyewan/aspect/xerrors"

var (
	// ErrDBNil 没有提供数据库连接
	ErrDBNil = xerrors.New("transaction: db is nil")

	// ErrUnsupportedDriver DBConfig.Driver 不是 sqlite 或 mysql
	ErrUnsupportedDriver = xerrors.New("transaction: unsupported driver")
)
