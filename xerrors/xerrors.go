// Package xerrors 提供拦截管道统一的错误处理工具。
//
// 拦截器之间通过错误链传递失败：业务错误必须原样保留（errors.Is 可判定），
// 策略自身的失败（熔断打开、加锁超时）使用包级哨兵错误，便于调用方区分。
package xerrors

import (
	"errors"
	"fmt"
	"slices"
)

// 通用哨兵错误
var (
	// ErrNotFound 资源或配置不存在
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput 输入或配置格式无效
	ErrInvalidInput = errors.New("invalid input")
)

// Wrap 用上下文信息包装错误，保留错误链。
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf 用格式化的上下文信息包装错误。
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// WithCode 用错误码包装错误。
func WithCode(err error, code string) error {
	if err == nil {
		return nil
	}
	return &CodedError{Code: code, Cause: err}
}

// CodedError 带有机器可读错误码的错误。
type CodedError struct {
	Code  string
	Cause error
}

func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %v", e.Code, e.Cause)
	}
	return fmt.Sprintf("[%s]", e.Code)
}

func (e *CodedError) Unwrap() error {
	return e.Cause
}

// GetCode 从错误链中提取最外层的错误码。
func GetCode(err error) string {
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ""
}

// HasCode 判断错误链上的错误码是否属于 codes 之一。
func HasCode(err error, codes ...string) bool {
	code := GetCode(err)
	return code != "" && slices.Contains(codes, code)
}

// IsAny 判断 err 是否匹配 targets 中任意一个。
func IsAny(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// PanicError 将 recover() 得到的值包装为错误。
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap 当 panic 的值本身是 error 时保留错误链
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Recovered 将 recover() 的返回值转换为错误，v 为 nil 时返回 nil。
//
//	defer func() {
//	    if err := xerrors.Recovered(recover()); err != nil {
//	        logger.Error("listener panicked", clog.Error(err))
//	    }
//	}()
func Recovered(v any) error {
	if v == nil {
		return nil
	}
	return &PanicError{Value: v}
}

// Collector 收集多个错误，保留第一个。
type Collector struct {
	err error
}

func (c *Collector) Collect(err error) {
	if err != nil && c.err == nil {
		c.err = err
	}
}

func (c *Collector) Err() error {
	return c.err
}

// MultiError 合并多个错误。
type MultiError struct {
	Errors []error
}

func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}
	return fmt.Sprintf("%v (and %d more errors)", m.Errors[0], len(m.Errors)-1)
}

func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// Combine 将多个错误合并为一个，全部为 nil 时返回 nil。
func Combine(errs ...error) error {
	var nonNil []error
	for _, err := range errs {
		if err != nil {
			nonNil = append(nonNil, err)
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		return &MultiError{Errors: nonNil}
	}
}

// 标准库函数再导出
var (
	New    = errors.New
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
)
