package dlock

import "github.com/ceyewan/aspect/xerrors"

var (
	// ErrConfigNil 配置为空
	ErrConfigNil = xerrors.New("dlock: config is nil")

	// ErrClientNil 客户端为空
	ErrClientNil = xerrors.New("dlock: client is nil")

	// ErrLockNotHeld 锁未持有
	ErrLockNotHeld = xerrors.New("dlock: lock not held")

	// ErrLockAlreadyHeld 锁已在本地持有
	ErrLockAlreadyHeld = xerrors.New("dlock: lock already held locally")

	// ErrOwnershipLost 锁所有权丢失
	ErrOwnershipLost = xerrors.New("dlock: ownership lost")
)
