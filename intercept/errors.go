package intercept

import "github.com/ceyewan/aspect/xerrors"

var (
	// ErrNoFunction Call 未提供真实方法
	ErrNoFunction = xerrors.New("intercept: call has no function")
	// ErrKindMismatch 声明的策略类型与注册表不一致
	ErrKindMismatch = xerrors.New("intercept: declaration kind mismatch")
	// ErrResultType 返回值类型与期望不符
	ErrResultType = xerrors.New("intercept: unexpected result type")
)
