// Package config 提供统一的配置加载能力，基于 Viper 实现，并负责把 YAML 中的
// 策略声明解码为 intercept.Catalog。
//
// 特性：
//   - 多源配置加载：YAML/JSON 文件、环境变量、.env 文件
//   - 配置优先级：环境变量 > .env > 环境特定配置（config.<env>.yaml）> 基础配置
//   - 热更新支持：监听配置文件变化并按 key 通知
//   - 解码钩子：时长支持 "100ms" 形式，日志级别支持名称
//
// 基本使用：
//
//	loader := config.MustLoad(&config.Config{Name: "aspect", Paths: []string{"./configs"}})
//
//	catalog, err := config.Decode(loader, "interception",
//	    func() intercept.Declaration { return breaker.NewConfig() },
//	    func() intercept.Declaration { return cache.NewConfig() },
//	)
//
//	ch, _ := loader.Watch(ctx, "interception")
//	for event := range ch {
//	    logger.Info("policies changed", clog.String("key", event.Key))
//	}
package config

import (
	"context"
	"strings"
	"time"

	"github.com/ceyewan/aspect/clog"
)

// Config 加载器配置
type Config struct {
	Name      string   `mapstructure:"name"`       // 配置文件名称（不含扩展名），默认 "config"
	Paths     []string `mapstructure:"paths"`      // 配置文件搜索路径，默认 [".", "./config"]
	FileType  string   `mapstructure:"file_type"`  // 配置文件类型 (yaml, json, etc.)，默认 "yaml"
	EnvPrefix string   `mapstructure:"env_prefix"` // 环境变量前缀，默认 "ASPECT"
}

// setDefaults 设置默认值，环境变量前缀统一为大写
func (c *Config) setDefaults() {
	if c.Name == "" {
		c.Name = "config"
	}
	if c.Paths == nil {
		c.Paths = []string{".", "./config"}
	}
	if c.FileType == "" {
		c.FileType = "yaml"
	}
	if c.EnvPrefix == "" {
		c.EnvPrefix = "ASPECT"
	}
	c.EnvPrefix = strings.ToUpper(c.EnvPrefix)
}

// Loader 配置加载器：加载、解析和监听配置变化
type Loader interface {
	// Load 加载配置并开始监听配置文件
	Load(ctx context.Context) error

	// Get 获取原始配置值
	Get(key string) any

	// Unmarshal 将整个配置反序列化到结构体
	Unmarshal(v any) error

	// UnmarshalKey 将指定 Key 的配置反序列化到结构体
	UnmarshalKey(key string, v any) error

	// Watch 监听 key 的变化，ctx 取消后通道关闭
	Watch(ctx context.Context, key string) (<-chan Event, error)

	// Validate 验证当前配置的有效性
	Validate() error
}

// Event 配置变更事件
type Event struct {
	Key       string
	Value     any
	OldValue  any
	Source    string // "file"
	Timestamp time.Time
}

// Option 组件初始化选项函数
type Option func(*options)

type options struct {
	logger clog.Logger
}

// WithLogger 设置 Logger，内部会自动添加 namespace: "config"
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("config")
		}
	}
}

// New 创建配置加载器，cfg 为 nil 时使用默认配置
func New(cfg *Config, opts ...Option) (Loader, error) {
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	c.setDefaults()

	o := &options{logger: clog.Discard()}
	for _, opt := range opts {
		opt(o)
	}
	return newLoader(&c, o.logger), nil
}

// MustLoad 创建并加载配置，失败时 panic
func MustLoad(cfg *Config, opts ...Option) Loader {
	l, err := New(cfg, opts...)
	if err != nil {
		panic(err)
	}
	if err := l.Load(context.Background()); err != nil {
		panic(err)
	}
	return l
}
