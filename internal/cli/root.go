// Package cli 实现 aspect 命令行：校验 YAML 策略声明并查看方法的拦截链。
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ceyewan/aspect/clog"
	"github.com/ceyewan/aspect/config"
)

var versionInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

// SetVersionInfo 由 main 包注入构建信息
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// globalFlags 所有子命令共享的参数
type globalFlags struct {
	configName string
	configPath []string
	envPrefix  string
	key        string
	logLevel   string
}

// loader 按全局参数创建并加载配置
func (f *globalFlags) loader(cmd *cobra.Command) (config.Loader, error) {
	logger, err := clog.New(&clog.Config{Level: f.logLevel, Format: "console", Output: "stderr"})
	if err != nil {
		return nil, err
	}
	l, err := config.New(&config.Config{
		Name:      f.configName,
		Paths:     f.configPath,
		EnvPrefix: f.envPrefix,
	}, config.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if err := l.Load(cmd.Context()); err != nil {
		return nil, err
	}
	return l, nil
}

// NewRootCommand 创建根命令
func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "aspect",
		Short:         "Inspect call-interception policy declarations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configName, "config-name", "config", "config file name without extension")
	pf.StringSliceVar(&flags.configPath, "config-path", []string{".", "./config"}, "config search paths")
	pf.StringVar(&flags.envPrefix, "env-prefix", "ASPECT", "environment variable prefix")
	pf.StringVar(&flags.key, "key", "interception", "config key holding the declaration list")
	pf.StringVar(&flags.logLevel, "log-level", "warn", "log level (debug|info|warn|error)")

	root.AddCommand(
		newValidateCommand(flags),
		newChainCommand(flags),
		newVersionCommand(),
	)
	return root
}

// Execute 执行根命令
func Execute() error {
	root := NewRootCommand()
	root.SetOut(os.Stdout)
	return root.Execute()
}
