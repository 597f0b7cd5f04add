package cache

import (
	"time"

	"github.com/smallbiznis/entitle/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("cache",
	fx.Provide(func(cfg config.Config) ResolverCache {
		return NewResolverCache(time.Duration(cfg.EntitlementCacheTTL) * time.Second)
	}),
)
