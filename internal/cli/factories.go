package cli

import (
	"github.com/ceyewan/aspect/breaker"
	"github.com/ceyewan/aspect/cache"
	"github.com/ceyewan/aspect/config"
	"github.com/ceyewan/aspect/exception"
	"github.com/ceyewan/aspect/intercept"
	"github.com/ceyewan/aspect/invocation"
	"github.com/ceyewan/aspect/perfcounter"
	"github.com/ceyewan/aspect/stats"
	"github.com/ceyewan/aspect/synchronized"
	"github.com/ceyewan/aspect/transaction"
)

// Factories 全部内置策略的配置工厂
func Factories() []config.Factory {
	return []config.Factory{
		func() intercept.Declaration { return cache.NewConfig() },
		func() intercept.Declaration { return breaker.NewConfig() },
		func() intercept.Declaration { return exception.NewConfig() },
		func() intercept.Declaration { return invocation.NewConfig() },
		func() intercept.Declaration { return stats.NewConfig() },
		func() intercept.Declaration { return perfcounter.NewConfig() },
		func() intercept.Declaration { return synchronized.NewConfig() },
		func() intercept.Declaration { return transaction.NewConfig() },
	}
}

// kindOnly 只提供 Kind 的拦截器，用于在不连接任何后端的情况下编译拦截链
type kindOnly intercept.Kind

func (k kindOnly) Kind() intercept.Kind { return intercept.Kind(k) }

func (k kindOnly) Intercept(inv intercept.Invocation) error { return inv.Proceed() }

func placeholders() []intercept.Interceptor {
	fs := Factories()
	out := make([]intercept.Interceptor, len(fs))
	for i, f := range fs {
		out[i] = kindOnly(f().Kind())
	}
	return out
}
