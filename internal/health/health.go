package health

import (
	"context"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"mailledger/backend/internal/storage"
	"mailledger/backend/internal/storage/redis"
)

// Checker 健康检查器
type Checker struct {
	health healthcheck.Handler
	store  storage.Store
	cache  *redis.Cache
	logger *zap.Logger
}

// NewChecker 创建健康检查器，cache 可为 nil。
func NewChecker(store storage.Store, cache *redis.Cache, logger *zap.Logger) *Checker {
	c := &Checker{
		health: healthcheck.NewHandler(),
		store:  store,
		cache:  cache,
		logger: logger,
	}
	c.addChecks()
	return c
}

// addChecks 添加健康检查
func (c *Checker) addChecks() {
	// 存储连接检查
	c.health.AddReadinessCheck("storage", func() error {
		return c.store.Health()
	})

	// Redis 缓存检查（启用时）
	if c.cache != nil {
		c.health.AddReadinessCheck("redis", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return c.cache.Health(ctx)
		})
	}

	// 协程数量上限检查
	c.health.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(10000))
}

// LiveEndpoint 存活探针处理函数。
func (c *Checker) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	c.health.LiveEndpoint(w, r)
}

// ReadyEndpoint 就绪探针处理函数。
func (c *Checker) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	c.health.ReadyEndpoint(w, r)
}
