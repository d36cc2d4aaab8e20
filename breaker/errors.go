package breaker

import "github.com/ceyewan/aspect/xerrors"

// ErrOpenState 熔断器处于打开状态，真实方法没有被执行
//
// 半开状态下试探调用尚未结束时的并发调用同样返回该错误。
var ErrOpenState = xerrors.New("breaker: circuit breaker is open")
