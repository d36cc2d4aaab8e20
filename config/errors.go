package config

import "github.com/ceyewan/aspect/xerrors"

var (
	// ErrValidationFailed 配置验证失败
	ErrValidationFailed = xerrors.New("configuration validation failed")

	// ErrUnknownKind 策略声明中的 kind 没有对应的工厂
	ErrUnknownKind = xerrors.New("config: unknown policy kind")

	// ErrMalformedDeclaration 策略声明格式错误
	ErrMalformedDeclaration = xerrors.New("config: malformed policy declaration")
)

// IsNotFound 检查错误是否为配置未找到
func IsNotFound(err error) bool {
	return xerrors.Is(err, xerrors.ErrNotFound)
}

// IsInvalidInput 检查错误是否为配置格式无效或验证失败
func IsInvalidInput(err error) bool {
	return xerrors.IsAny(err, xerrors.ErrInvalidInput, ErrValidationFailed, ErrUnknownKind, ErrMalformedDeclaration)
}
