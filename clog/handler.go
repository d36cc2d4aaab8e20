package clog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// clogHandler 封装底层的 slog.Handler，并支持动态级别调整。
type clogHandler struct {
	slog.Handler
	levelVar *slog.LevelVar
	closer   io.Closer
}

// newHandler 创建并返回一个适配 clog 配置的 slog.Handler（内部使用）。
func newHandler(config *Config, o *options) (*clogHandler, error) {
	w, closer, err := resolveWriter(config, o)
	if err != nil {
		return nil, err
	}

	level, err := ParseLevel(config.Level)
	if err != nil {
		return nil, err
	}
	levelVar := new(slog.LevelVar)
	levelVar.Set(level.slogLevel())

	opts := &slog.HandlerOptions{
		AddSource:   config.AddSource,
		Level:       levelVar,
		ReplaceAttr: newReplaceAttr(config),
	}

	var handler slog.Handler
	if strings.ToLower(config.Format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &clogHandler{Handler: handler, levelVar: levelVar, closer: closer}, nil
}

func resolveWriter(config *Config, o *options) (io.Writer, io.Closer, error) {
	if o.writer != nil {
		return o.writer, nil, nil
	}
	switch strings.ToLower(config.Output) {
	case "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	default:
		f, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		return f, f, nil
	}
}

// newReplaceAttr 统一级别名称、时间格式，并将 source 改写为 caller 字段
func newReplaceAttr(config *Config) func(groups []string, a slog.Attr) slog.Attr {
	return func(_ []string, a slog.Attr) slog.Attr {
		switch a.Key {
		case slog.LevelKey:
			if level, ok := a.Value.Any().(slog.Level); ok {
				a.Value = slog.StringValue(strings.ToUpper(levelFromSlog(level).String()))
			}
		case slog.TimeKey:
			if a.Value.Kind() == slog.KindTime {
				a.Value = slog.StringValue(a.Value.Time().Format(timeFormat))
			}
		case slog.SourceKey:
			if source, ok := a.Value.Any().(*slog.Source); ok {
				return slog.String("caller", fmt.Sprintf("%s:%d", trimSourcePath(source.File, config.SourceRoot), source.Line))
			}
		}
		return a
	}
}

func trimSourcePath(fileName, sourceRoot string) string {
	if sourceRoot == "" {
		return filepath.Base(fileName)
	}
	rel, err := filepath.Rel(sourceRoot, fileName)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.Base(fileName)
	}
	return rel
}

// SetLevel 动态调整日志级别
func (h *clogHandler) SetLevel(level Level) error {
	if level < DebugLevel || level > FatalLevel {
		return fmt.Errorf("invalid log level: %d", level)
	}
	h.levelVar.Set(level.slogLevel())
	return nil
}

// Flush 对文件输出执行 Sync
func (h *clogHandler) Flush() {
	if f, ok := h.closer.(*os.File); ok {
		_ = f.Sync()
	}
}
