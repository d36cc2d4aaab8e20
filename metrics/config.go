package metrics

// Config 指标系统的配置结构体
//
// 典型配置示例（YAML）：
//
//	metrics:
//	  enabled: true
//	  service_name: "order-service"
//	  version: "v1.2.3"
//	  port: 9090
//	  path: "/metrics"
type Config struct {
	// Enabled 为 false 时 New 返回 noop Meter
	Enabled bool `mapstructure:"enabled"`

	// ServiceName 作为 OpenTelemetry Resource 的 service.name
	ServiceName string `mapstructure:"service_name"`

	// Version 作为 OpenTelemetry Resource 的 service.version
	Version string `mapstructure:"version"`

	// Port 大于 0 且 Path 非空时启动 Prometheus HTTP 服务
	Port int `mapstructure:"port"`

	// Path Prometheus 采集路径，必须以 "/" 开头
	Path string `mapstructure:"path"`
}

// NewDevDefaultConfig 开发环境默认配置：启用指标，不启动 HTTP 服务
func NewDevDefaultConfig(serviceName string) *Config {
	return &Config{
		Enabled:     true,
		ServiceName: serviceName,
		Version:     "dev",
	}
}

// NewProdDefaultConfig 生产环境默认配置：在 9090 端口暴露 /metrics
func NewProdDefaultConfig(serviceName, version string) *Config {
	return &Config{
		Enabled:     true,
		ServiceName: serviceName,
		Version:     version,
		Port:        9090,
		Path:        "/metrics",
	}
}
